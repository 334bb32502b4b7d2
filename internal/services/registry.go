package services

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/agent"
	"github.com/fyrsmithlabs/codeloops/internal/checkpoint"
	"github.com/fyrsmithlabs/codeloops/internal/config"
	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/memory"
	"github.com/fyrsmithlabs/codeloops/internal/orchestrator"
	"github.com/fyrsmithlabs/codeloops/internal/summarize"
)

// ErrNoCritic is returned by NewOrchestrator when no critic was given and no
// language model is configured.
var ErrNoCritic = errors.New("no critic available: configure llm.provider or pass a fixed verdict")

// Registry provides access to all codeloops services.
type Registry interface {
	Graph() *graph.Store
	Memory() *memory.Store
	Backups() checkpoint.Service
	Actor() *agent.GraphActor

	// Segmenter is nil when summarization is disabled or no model is
	// configured.
	Segmenter() *summarize.Segmenter

	// Model is nil when no language model is configured.
	Model() llms.Model

	// NewOrchestrator builds an actor-critic loop around critic, or around
	// the model-backed critic when critic is nil.
	NewOrchestrator(critic orchestrator.Critic) (*orchestrator.ActorCritic, error)
}

// Options configures the registry.
type Options struct {
	Config *config.Config
	Logger *zap.Logger

	// Model overrides the model built from Config.LLM.
	Model llms.Model
}

type registry struct {
	graph     *graph.Store
	memory    *memory.Store
	actor     *agent.GraphActor
	segmenter *summarize.Segmenter
	model     llms.Model
	logger    *zap.Logger
}

// NewRegistry opens the stores under Config.DataDir and wires the agents.
func NewRegistry(opts Options) (Registry, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g, err := graph.NewStore(graph.Options{
		DataDir:    cfg.DataDir,
		MaxRetries: cfg.Storage.MaxRetries,
		RetryStep:  cfg.Storage.RetryStep.Duration(),
		BackupKeep: cfg.Storage.BackupKeep,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening graph store: %w", err)
	}
	m, err := memory.NewStore(memory.Options{
		DataDir:    cfg.DataDir,
		MaxRetries: cfg.Storage.MaxRetries,
		RetryStep:  cfg.Storage.RetryStep.Duration(),
		BackupKeep: cfg.Storage.BackupKeep,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	r := &registry{
		graph:  g,
		memory: m,
		actor:  agent.NewGraphActor(g, logger),
		model:  opts.Model,
		logger: logger,
	}

	llmCfg := agent.ModelConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey.Value(),
	}
	if r.model == nil && llmCfg.Enabled() {
		if r.model, err = agent.NewModel(llmCfg); err != nil {
			return nil, err
		}
	}

	if cfg.Summarization.Enabled && r.model != nil {
		r.segmenter, err = summarize.NewSegmenter(g, agent.NewLLMSummarizer(r.model, logger), summarize.Options{
			Threshold: cfg.Summarization.Threshold,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating segmenter: %w", err)
		}
	} else if cfg.Summarization.Enabled {
		logger.Info("summarization disabled: no language model configured")
	}

	return r, nil
}

func (r *registry) Graph() *graph.Store {
	return r.graph
}

func (r *registry) Memory() *memory.Store {
	return r.memory
}

func (r *registry) Backups() checkpoint.Service {
	return r.graph.Backups()
}

func (r *registry) Actor() *agent.GraphActor {
	return r.actor
}

func (r *registry) Segmenter() *summarize.Segmenter {
	return r.segmenter
}

func (r *registry) Model() llms.Model {
	return r.model
}

func (r *registry) NewOrchestrator(critic orchestrator.Critic) (*orchestrator.ActorCritic, error) {
	if critic == nil {
		if r.model == nil {
			return nil, ErrNoCritic
		}
		critic = agent.NewLLMCritic(r.graph, r.model, r.logger)
	}
	var trigger orchestrator.SummaryTrigger
	if r.segmenter != nil {
		trigger = r.segmenter
	}
	return orchestrator.New(r.actor, critic, trigger, orchestrator.Options{
		SummarizationEnabled: r.segmenter != nil,
		Logger:               r.logger,
	})
}
