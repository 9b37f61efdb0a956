package briefing

import (
	"context"
	"errors"
	"testing"

	"github.com/nugget/daybreak/internal/behavior"
	"github.com/nugget/daybreak/internal/llm"
)

func aiInput(model string) Input {
	s := settingsWith(func(s *behavior.Settings) {
		s.Model = model
		s.TopP = 0.9
		s.PresencePenalty = 0.4
		s.StopSequences = []string{"\n\n"}
	})
	bundle := &ContextBundle{Weather: sampleWeather(72, 2, 10)}
	return Input{Bundle: bundle, Modes: Evaluate(bundle, s, monday8am, DefaultThresholds()), Settings: s}
}

func TestAIStrategy_FamilyFilter(t *testing.T) {
	tests := []struct {
		model    string
		wantTopP bool
	}{
		{"anthropic/claude-3-haiku", false},
		{"openai/gpt-4o-mini", true},
		{"google/gemini-flash-1.5", true},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			client := &fakeLLM{resp: &llm.ChatResponse{Content: "Good morning!"}}
			if _, err := NewAIStrategy(client, discardLogger()).Summarize(context.Background(), aiInput(tt.model)); err != nil {
				t.Fatalf("Summarize: %v", err)
			}

			req := client.reqs[0]
			if (req.TopP != nil) != tt.wantTopP || (req.PresencePenalty != nil) != tt.wantTopP {
				t.Errorf("top_p/presence_penalty present = %v/%v, want %v", req.TopP != nil, req.PresencePenalty != nil, tt.wantTopP)
			}
			if req.Temperature != behavior.DefaultTemperature || req.MaxTokens != behavior.DefaultMaxTokens {
				t.Errorf("sampling = %v/%d", req.Temperature, req.MaxTokens)
			}
			if len(req.Stop) != 1 || req.Stop[0] != "\n\n" {
				t.Errorf("stop = %q", req.Stop)
			}
		})
	}
}

func TestAIStrategy_ReturnsTextVerbatim(t *testing.T) {
	client := &fakeLLM{resp: &llm.ChatResponse{Content: "Good morning! Sunny and 72°.", InputTokens: 200, OutputTokens: 9}}
	d, err := NewAIStrategy(client, discardLogger()).Summarize(context.Background(), aiInput("openai/gpt-4o-mini"))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if d.Text != "Good morning! Sunny and 72°." || d.Strategy != StrategyAI {
		t.Errorf("draft = %+v", d)
	}
	if d.InputTokens != 200 || d.OutputTokens != 9 {
		t.Errorf("tokens = %d/%d", d.InputTokens, d.OutputTokens)
	}
	if n := client.calls(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestAIStrategy_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeLLM
		want   string
	}{
		{"classified error", &fakeLLM{err: &llm.UnavailableError{Reason: llm.ReasonStatus, Status: 503}}, llm.ReasonStatus},
		{"plain error", &fakeLLM{err: errors.New("dial tcp: refused")}, llm.ReasonTransport},
		{"empty text", &fakeLLM{resp: &llm.ChatResponse{}}, llm.ReasonEmpty},
		{"nil response", &fakeLLM{}, llm.ReasonEmpty},
		{"panic", &fakeLLM{panic: true}, llm.ReasonTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAIStrategy(tt.client, discardLogger()).Summarize(context.Background(), aiInput("openai/gpt-4o-mini"))
			if !errors.Is(err, llm.ErrUnavailable) {
				t.Fatalf("err = %v, want ErrUnavailable", err)
			}
			if got := llm.Reason(err); got != tt.want {
				t.Errorf("reason = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAIStrategy_NilClient(t *testing.T) {
	_, err := NewAIStrategy(nil, nil).Summarize(context.Background(), aiInput("openai/gpt-4o-mini"))
	if got := llm.Reason(err); got != llm.ReasonNoCredential {
		t.Errorf("reason = %q, want %q", got, llm.ReasonNoCredential)
	}
}

func TestTemplateStrategy(t *testing.T) {
	in := aiInput("m")
	d, err := TemplateStrategy{}.Summarize(context.Background(), in)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if d.Text != Compose(in.Bundle, in.Modes, in.Settings) || d.Strategy != StrategyTemplate {
		t.Errorf("draft = %+v", d)
	}
}
