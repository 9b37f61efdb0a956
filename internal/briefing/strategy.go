package briefing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/llm"
)

// Strategy names reported in results, metrics and the usage log.
const (
	StrategyAI       = "ai"
	StrategyTemplate = "template"
)

// Input is everything a strategy may use to write a summary.
type Input struct {
	Bundle   *ContextBundle
	Modes    ModeFlags
	Settings behavior.Settings
}

// Draft is a strategy's output.
type Draft struct {
	Text         string
	Strategy     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// SummaryStrategy turns an Input into summary text.
type SummaryStrategy interface {
	Summarize(ctx context.Context, in Input) (*Draft, error)
}

// TemplateStrategy wraps [Compose]. It never fails.
type TemplateStrategy struct{}

// Summarize implements SummaryStrategy.
func (TemplateStrategy) Summarize(_ context.Context, in Input) (*Draft, error) {
	return &Draft{
		Text:     Compose(in.Bundle, in.Modes, in.Settings),
		Strategy: StrategyTemplate,
	}, nil
}

// AIStrategy asks the generative backend for the summary. Every error
// it returns is an *llm.UnavailableError.
type AIStrategy struct {
	client llm.Client
	logger *slog.Logger
}

// NewAIStrategy creates an AI strategy. A nil client behaves as a
// backend with no credential configured.
func NewAIStrategy(client llm.Client, logger *slog.Logger) *AIStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &AIStrategy{client: client, logger: logger.With("component", "ai_strategy")}
}

// Summarize implements SummaryStrategy with a single backend call.
func (s *AIStrategy) Summarize(ctx context.Context, in Input) (draft *Draft, err error) {
	if s == nil || s.client == nil {
		return nil, &llm.UnavailableError{Reason: llm.ReasonNoCredential}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("backend call panicked", "panic", r)
			draft = nil
			err = &llm.UnavailableError{Reason: llm.ReasonTransport, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	st := in.Settings
	req := llm.BuildRequest(st.Model, buildMessages(in.Bundle, in.Modes, st), llm.Params{
		Temperature:     st.Temperature,
		MaxTokens:       st.MaxTokens,
		TopP:            st.TopP,
		PresencePenalty: st.PresencePenalty,
		Stop:            st.StopSequences,
	})

	resp, err := s.client.Chat(ctx, req)
	if err != nil {
		if llm.Reason(err) == "" {
			err = &llm.UnavailableError{Reason: llm.ReasonTransport, Err: err}
		}
		return nil, err
	}
	if resp == nil || resp.Content == "" {
		return nil, &llm.UnavailableError{Reason: llm.ReasonEmpty}
	}

	return &Draft{
		Text:         resp.Content,
		Strategy:     StrategyAI,
		Model:        st.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
