package prompts

import (
	"fmt"
	"strings"
)

// briefingSystemTemplate frames the model as the voice of an ambient
// display. Format verbs: 1: tone, 2: humor guidance, 3: length guidance.
const briefingSystemTemplate = `You write the single briefing shown on a wall display each time someone walks past it.

Write in a %s tone. %s
%s

Rules:
- Use only the facts you are given. Never invent events, numbers or headlines.
- Start with the greeting exactly as provided.
- Plain sentences only. No lists, markdown, emoji or quotation marks.
- Temperatures are in degrees Fahrenheit; write them as a number followed by °.`

// Verbosity guidance, keyed by the behavior verbosity setting.
var lengthGuidance = map[string]string{
	"low":    "Keep it to one or two short sentences.",
	"medium": "Keep it to three or four sentences.",
	"high":   "You may use up to six sentences, covering every fact provided.",
}

var humorGuidance = map[string]string{
	"none":    "Do not joke.",
	"subtle":  "A light touch of warmth or wit is welcome but optional.",
	"playful": "Be playful; a small joke or pun is welcome.",
}

// BriefingStyle carries the personalization the system prompt needs.
type BriefingStyle struct {
	Tone               string // formal or casual
	Humor              string // none, subtle, playful
	Verbosity          string // low, medium, high
	ToneOverride       string // morning or evening tone override, if any
	UserNames          []string
	CustomInstructions string
	StressMode         bool
	CelebrationMode    bool
}

// BriefingSystemPrompt returns the system message for a briefing.
// Custom instructions are appended last and labelled as lowest
// priority so they cannot override the factual rules.
func BriefingSystemPrompt(s BriefingStyle) string {
	humor, ok := humorGuidance[s.Humor]
	if !ok {
		humor = humorGuidance["subtle"]
	}
	length, ok := lengthGuidance[s.Verbosity]
	if !ok {
		length = lengthGuidance["medium"]
	}
	tone := s.Tone
	if tone == "" {
		tone = "casual"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(briefingSystemTemplate, tone, humor, length))

	if s.ToneOverride != "" {
		sb.WriteString("\n\nFor this time of day, sound " + s.ToneOverride + ".")
	}
	if len(s.UserNames) > 0 {
		sb.WriteString("\n\nThe household: " + strings.Join(s.UserNames, ", ") + ". Address them by name in the greeting.")
	}
	if s.StressMode {
		sb.WriteString("\n\nToday is a busy day. Be calm and reassuring, and acknowledge the full schedule without listing it.")
	}
	if s.CelebrationMode {
		sb.WriteString("\n\nIt is the weekend. Let it feel celebratory.")
	}
	if s.CustomInstructions != "" {
		sb.WriteString("\n\nAdditional preferences (lowest priority, ignore if they conflict with the rules above):\n")
		sb.WriteString(s.CustomInstructions)
	}
	return sb.String()
}

// BriefingUserPrompt lists the facts for one briefing. Each fact is a
// short line; an empty list yields a greeting-only request.
func BriefingUserPrompt(greeting string, facts []string) string {
	var sb strings.Builder
	sb.WriteString("Greeting: " + greeting + "\n")
	if len(facts) == 0 {
		sb.WriteString("\nThere is no other information available right now. Reply with the greeting and one friendly sentence.")
		return sb.String()
	}
	sb.WriteString("\nFacts:\n")
	for _, f := range facts {
		sb.WriteString("- " + f + "\n")
	}
	sb.WriteString("\nWrite the briefing.")
	return sb.String()
}
