package llm

// ChatRequest is the wire body of a chat completion. Optional sampling
// fields are pointers so that a family which does not accept them gets
// no key at all rather than a zero value.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stop        []string  `json:"stop"`

	TopP            *float64 `json:"top_p,omitempty"`
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
}

// Params are the sampling parameters configured for a request.
type Params struct {
	Temperature     float64
	MaxTokens       int
	TopP            float64
	PresencePenalty float64
	Stop            []string
}

// BuildRequest assembles a request for model, applying the parameter
// filter for the model's family. Temperature, max tokens and stop
// sequences are always sent; top_p and presence_penalty only when the
// family accepts them.
func BuildRequest(model string, messages []Message, p Params) *ChatRequest {
	stop := p.Stop
	if stop == nil {
		stop = []string{}
	}

	req := &ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stop:        stop,
	}

	if ClassifyModel(model).SupportsExtendedSampling() {
		topP := p.TopP
		penalty := p.PresencePenalty
		req.TopP = &topP
		req.PresencePenalty = &penalty
	}
	return req
}
