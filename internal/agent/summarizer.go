package agent

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/summarize"
)

// LLMSummarizer condenses node segments with a language model.
type LLMSummarizer struct {
	model  llms.Model
	logger *zap.Logger
}

var _ summarize.Summarizer = (*LLMSummarizer)(nil)

// NewLLMSummarizer creates an LLMSummarizer.
func NewLLMSummarizer(model llms.Model, logger *zap.Logger) *LLMSummarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMSummarizer{model: model, logger: logger.Named("summarizer")}
}

// Summarize never returns a Go error; model failures are reported in
// Result.Error.
func (s *LLMSummarizer) Summarize(ctx context.Context, nodes []graph.Node) summarize.Result {
	text, err := llms.GenerateFromSinglePrompt(ctx, s.model, summaryPrompt(nodes),
		llms.WithTemperature(0.2),
	)
	if err != nil {
		s.logger.Warn("summarizer model failed", zap.Int("segment_size", len(nodes)), zap.Error(err))
		return summarize.Result{Error: err.Error()}
	}
	return summarize.Result{Summary: text}
}
