package llm

import "strings"

// Family groups models by the request parameters they accept.
type Family int

const (
	// FamilyOpenAICompatible accepts the full parameter set. It is the
	// default for any model that is not recognized, so a configured
	// model is never silently dropped.
	FamilyOpenAICompatible Family = iota

	// FamilyAnthropic rejects top_p and presence_penalty when routed
	// through an OpenAI-compatible gateway.
	FamilyAnthropic
)

func (f Family) String() string {
	switch f {
	case FamilyAnthropic:
		return "anthropic"
	default:
		return "openai_compatible"
	}
}

// ClassifyModel maps a vendor-prefixed model id ("anthropic/claude-3-haiku",
// "openai/gpt-4o-mini", "google/gemini-flash-1.5") to its family. Bare
// Claude ids without a vendor prefix are recognized as well.
func ClassifyModel(model string) Family {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "anthropic/"), strings.HasPrefix(m, "claude"):
		return FamilyAnthropic
	default:
		return FamilyOpenAICompatible
	}
}

// SupportsExtendedSampling reports whether top_p and presence_penalty
// may be sent to models of this family.
func (f Family) SupportsExtendedSampling() bool {
	return f != FamilyAnthropic
}
