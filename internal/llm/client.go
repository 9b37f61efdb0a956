// Package llm talks to the generative text backend that writes the
// briefing. The backend speaks the OpenAI chat completions dialect
// (OpenRouter and compatible gateways); [ClassifyModel] decides which
// optional sampling parameters the selected model may receive.
package llm

import "context"

// Client is the interface the briefing pipeline depends on.
type Client interface {
	// Chat issues exactly one completion request. Every failure is
	// returned as an *UnavailableError.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
