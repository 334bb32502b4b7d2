package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/codeloops/internal/config"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "trace", want: TraceLevel},
		{in: "DEBUG", want: zapcore.DebugLevel},
		{in: " warn ", want: zapcore.WarnLevel},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "debug", Format: "console"}, true)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.OTEL)
	assert.False(t, cfg.Sampling.Enabled, "sampling is off for debug output")

	_, err = FromSettings(config.LoggingConfig{Level: "nope"}, false)
	assert.Error(t, err)

	_, err = FromSettings(config.LoggingConfig{Format: "xml"}, false)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Output.Stdout = false
	assert.Error(t, cfg.Validate())

	cfg.Output.Stderr = true
	assert.NoError(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Redaction.Patterns = []string{"("}
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Fields = map[string]string{"service": ""}
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.NotNil(t, logger.Underlying())

	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err, "otel output without a provider leaves no core")
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = WithProject(ctx, "demo")
	ctx = WithSessionID(ctx, "sess_1")
	ctx = WithRequestID(ctx, "req-9")

	got := map[string]zap.Field{}
	for _, f := range ContextFields(ctx) {
		got[f.Key] = f
	}
	assert.Equal(t, span.SpanContext().TraceID().String(), got["trace_id"].String)
	assert.Contains(t, got, "span_id")
	assert.Contains(t, got, "trace_sampled")
	assert.Equal(t, "demo", got["project"].String)
	assert.Equal(t, "sess_1", got["session.id"].String)
	assert.Equal(t, "req-9", got["request.id"].String)
}

func TestContextSetters_Panic(t *testing.T) {
	assert.Panics(t, func() { WithProject(context.Background(), "Not Valid") })
	assert.Panics(t, func() { WithSessionID(context.Background(), "") })
	assert.Panics(t, func() { WithRequestID(context.Background(), "a b") })
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "stored")
	tl.AssertLogged(t, zapcore.InfoLevel, "stored")
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithProject(context.Background(), "demo")

	tl.Trace(ctx, "scan line", zap.Int("line", 3))
	tl.Warn(ctx, "lock busy")

	tl.AssertLogged(t, TraceLevel, "scan line")
	tl.AssertLogged(t, zapcore.WarnLevel, "lock busy")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "lock busy")
	tl.AssertField(t, "scan line", "project", "demo")
	tl.AssertField(t, "scan line", "line", int64(3))

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestRedactingEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	require.NoError(t, err)
	logger := zap.New(zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.DebugLevel))

	logger.With(zap.String("token", "abc")).Info("calling model with Bearer xyz123",
		zap.String("api_key", "sk-live"),
		zap.String("note", "key sk-abcdefghijklmnopqrstu used"),
		zap.String("project", "demo"),
		Secret("llm_key", config.Secret("hunter2")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[REDACTED]", entry["token"])
	assert.Equal(t, "[REDACTED]", entry["api_key"])
	assert.Equal(t, "key [REDACTED] used", entry["note"])
	assert.Equal(t, "demo", entry["project"])
	assert.Equal(t, "[REDACTED:7]", entry["llm_key"])
	assert.Equal(t, "calling model with [REDACTED]", entry["msg"])
}

func TestSampling_ErrorsPassThrough(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 0
	core, err := newCore(cfg, nil)
	require.NoError(t, err)

	var infoWritten, errorWritten int
	for i := 0; i < 5; i++ {
		if ce := core.Check(zapcore.Entry{Level: zapcore.InfoLevel, Message: "same"}, nil); ce != nil {
			infoWritten++
		}
		if ce := core.Check(zapcore.Entry{Level: zapcore.ErrorLevel, Message: "same"}, nil); ce != nil {
			errorWritten++
		}
	}
	assert.Equal(t, 1, infoWritten)
	assert.Equal(t, 5, errorWritten)
}
