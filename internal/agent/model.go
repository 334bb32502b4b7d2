package agent

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Providers understood by NewModel.
const (
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// ModelConfig selects the language model behind the critic and summarizer.
type ModelConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// Enabled reports whether a model is configured.
func (c ModelConfig) Enabled() bool {
	p := strings.ToLower(c.Provider)
	return p != "" && p != ProviderNone
}

// NewModel creates the configured model. OpenAI-compatible servers are
// reached through BaseURL.
func NewModel(cfg ModelConfig) (llms.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		opts := []openai.Option{}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		token := cfg.APIKey
		if token == "" {
			// The client insists on a token; local OpenAI-compatible servers ignore it.
			token = "placeholder"
		}
		opts = append(opts, openai.WithToken(token))

		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OpenAI client: %w", err)
		}
		return llm, nil
	case "", ProviderNone:
		return nil, fmt.Errorf("no LLM provider configured")
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
