// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with a Trace level below Debug, stdout and OpenTelemetry
// outputs, context correlation fields and encoder-level secret redaction.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithProject(ctx, "demo")
//	logger.Info(ctx, "node appended", zap.String("node_id", id))
//
// Storage and orchestration packages take the plain *zap.Logger returned by
// Underlying; they never read loggers from globals.
//
// Sampling is level aware: entries below Error are sampled per tick, Error
// and above always pass.
package logging
