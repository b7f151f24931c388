package harness

import (
	"context"
	"database/sql"

	"github.com/ZanzyTHEbar/pitwall/pitwall/config"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	harnessConfig *config.HarnessConfig
	llmConfig     *config.LLMConfig
	db            *sql.DB // Optional, for conversation store
	logger        zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(harnessConfig *config.HarnessConfig, llmConfig *config.LLMConfig, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		harnessConfig: harnessConfig,
		llmConfig:     llmConfig,
		db:            db,
		logger:        logger,
	}
}

// CreateProvider builds the chat completions provider from the LLM config.
func (f *Factory) CreateProvider() ports.Provider {
	return adapters.NewOpenAIProvider(f.llmConfig.APIKey, f.llmConfig.BaseURL, f.llmConfig.Model)
}

// CreateOrchestrator creates a fully wired HarnessOrchestrator from config.
func (f *Factory) CreateOrchestrator(provider ports.Provider, tools ports.ToolResolver) *HarnessOrchestrator {
	tracer := f.createTracer()

	return NewHarnessOrchestrator(
		provider,
		tools,
		f.CreateExecutor(tracer),
		NewPromptBuilder(),
		f.createStore(),
		f.createRateLimiter(),
		tracer,
		f.logger,
	)
}

// CreateExecutor creates the capability executor with its worker pool.
func (f *Factory) CreateExecutor(tracer ports.Tracer) *Executor {
	return NewExecutor(f.CreateGuardrails(), f.harnessConfig.ToolConcurrency, f.harnessConfig.ToolTimeout(), tracer)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.harnessConfig.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.harnessConfig.RateLimitCapacity, f.harnessConfig.RateLimitRefillRate)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.harnessConfig.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

func (f *Factory) createStore() ports.ConversationStore {
	if f.db == nil {
		return &noOpStore{}
	}
	return adapters.NewLibSQLConversationStore(f.db)
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *Guardrails {
	guardrails := NewGuardrails()

	if f.harnessConfig.EnableGuardrails {
		for _, toolName := range f.harnessConfig.AllowedTools {
			guardrails.AddAllowedTool(toolName)
		}
	}

	return guardrails
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := &Policy{
		MaxTurns:     f.harnessConfig.MaxTurns,
		ToolTimeout:  f.harnessConfig.ToolTimeout(),
		MaxNewTokens: f.llmConfig.MaxNewTokens,
		Temperature:  f.llmConfig.Temperature,
	}

	if policy.MaxTurns < 1 {
		policy.MaxTurns = 1
		f.logger.Warn().Int("max_turns", f.harnessConfig.MaxTurns).Msg("MaxTurns clamped to minimum of 1")
	}
	if policy.MaxTurns > 20 {
		policy.MaxTurns = 20
		f.logger.Warn().Int("max_turns", f.harnessConfig.MaxTurns).Msg("MaxTurns clamped to maximum of 20")
	}
	if policy.MaxNewTokens <= 0 {
		policy.MaxNewTokens = DefaultPolicy().MaxNewTokens
	}

	return policy
}

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore implements ConversationStore interface with no-op behavior.
type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	return nil
}

func (s *noOpStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

func (s *noOpStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return nil
}

var (
	_ ports.RateLimiter       = (*noOpRateLimiter)(nil)
	_ ports.Tracer            = (*noOpTracer)(nil)
	_ ports.ConversationStore = (*noOpStore)(nil)
)
