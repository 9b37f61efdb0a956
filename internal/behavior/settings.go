// Package behavior holds the AI/behavior configuration that shapes each
// briefing: which model writes it, how it samples, and the tone and
// personalization it is written with.
//
// Settings live in the operational state store as raw string pairs.
// [FromValues] rebuilds the typed record and substitutes the documented
// default for every field that is missing, malformed or out of range,
// so a reader always gets a complete [Settings].
package behavior

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Namespace is the operational state namespace settings are stored under.
const Namespace = "behavior"

// Storage keys.
const (
	KeyModel              = "ai_model"
	KeyAIEnabled          = "ai_enabled"
	KeyTemperature        = "temperature"
	KeyMaxTokens          = "max_tokens"
	KeyTopP               = "top_p"
	KeyPresencePenalty    = "presence_penalty"
	KeyVerbosity          = "verbosity"
	KeyTone               = "tone"
	KeyHumor              = "humor"
	KeyUserNames          = "user_names"
	KeyCustomInstructions = "custom_instructions"
	KeyStopSequences      = "stop_sequences"
	KeyMorningTone        = "morning_tone"
	KeyEveningTone        = "evening_tone"
	KeyStressAware        = "stress_aware"
	KeyCelebrationMode    = "celebration_mode"
)

// Limits on list and text fields.
const (
	MaxUserNames          = 10
	MaxStopSequences      = 10
	MaxCustomInstructions = 500
)

// Documented defaults for every field.
const (
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 150
	DefaultTopP            = 1.0
	DefaultPresencePenalty = 0.0
	DefaultVerbosity       = VerbosityMedium
	DefaultTone            = ToneCasual
	DefaultHumor           = HumorSubtle
)

// Verbosity controls how long the generated summary should be.
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// Tone is the register the briefing is written in.
type Tone string

const (
	ToneFormal Tone = "formal"
	ToneCasual Tone = "casual"
)

// Humor is how much levity the generative backend may add.
type Humor string

const (
	HumorNone    Humor = "none"
	HumorSubtle  Humor = "subtle"
	HumorPlayful Humor = "playful"
)

// Settings is an immutable snapshot of the behavior configuration.
// Treat values returned by [Cache.Get] as read-only; slices are shared.
type Settings struct {
	Model           string    `json:"ai_model"`
	AIEnabled       bool      `json:"ai_enabled"`
	Temperature     float64   `json:"temperature"`
	MaxTokens       int       `json:"max_tokens"`
	TopP            float64   `json:"top_p"`
	PresencePenalty float64   `json:"presence_penalty"`
	Verbosity       Verbosity `json:"verbosity"`

	Tone               Tone     `json:"tone"`
	Humor              Humor    `json:"humor"`
	UserNames          []string `json:"user_names"`
	CustomInstructions string   `json:"custom_instructions"`
	StopSequences      []string `json:"stop_sequences"`

	MorningTone     string `json:"morning_tone"`
	EveningTone     string `json:"evening_tone"`
	StressAware     bool   `json:"stress_aware"`
	CelebrationMode bool   `json:"celebration_mode"`
}

// Defaults returns the settings used when nothing is stored.
// defaultModel comes from the deployment config.
func Defaults(defaultModel string) Settings {
	return Settings{
		Model:           defaultModel,
		AIEnabled:       true,
		Temperature:     DefaultTemperature,
		MaxTokens:       DefaultMaxTokens,
		TopP:            DefaultTopP,
		PresencePenalty: DefaultPresencePenalty,
		Verbosity:       DefaultVerbosity,
		Tone:            DefaultTone,
		Humor:           DefaultHumor,
		UserNames:       []string{},
		StopSequences:   []string{},
		StressAware:     true,
		CelebrationMode: true,
	}
}

// FromValues rebuilds typed settings from raw stored pairs. It never
// fails: each absent or unusable value silently becomes its default.
func FromValues(values map[string]string, defaultModel string) Settings {
	s := Defaults(defaultModel)

	if v := strings.TrimSpace(values[KeyModel]); v != "" {
		s.Model = v
	}
	s.AIEnabled = parseBool(values[KeyAIEnabled], s.AIEnabled)
	s.Temperature = parseFloat(values[KeyTemperature], 0, 2, s.Temperature)
	s.MaxTokens = parseInt(values[KeyMaxTokens], 50, 300, s.MaxTokens)
	s.TopP = parseFloat(values[KeyTopP], 0, 1, s.TopP)
	s.PresencePenalty = parseFloat(values[KeyPresencePenalty], -2, 2, s.PresencePenalty)

	switch v := Verbosity(strings.ToLower(strings.TrimSpace(values[KeyVerbosity]))); v {
	case VerbosityLow, VerbosityMedium, VerbosityHigh:
		s.Verbosity = v
	}
	switch v := Tone(strings.ToLower(strings.TrimSpace(values[KeyTone]))); v {
	case ToneFormal, ToneCasual:
		s.Tone = v
	}
	switch v := Humor(strings.ToLower(strings.TrimSpace(values[KeyHumor]))); v {
	case HumorNone, HumorSubtle, HumorPlayful:
		s.Humor = v
	}

	s.UserNames = parseList(values[KeyUserNames], MaxUserNames, true)
	s.StopSequences = parseList(values[KeyStopSequences], MaxStopSequences, false)
	s.CustomInstructions = truncateRunes(strings.TrimSpace(values[KeyCustomInstructions]), MaxCustomInstructions)
	s.MorningTone = strings.TrimSpace(values[KeyMorningTone])
	s.EveningTone = strings.TrimSpace(values[KeyEveningTone])
	s.StressAware = parseBool(values[KeyStressAware], s.StressAware)
	s.CelebrationMode = parseBool(values[KeyCelebrationMode], s.CelebrationMode)

	return s
}

// KnownKey reports whether key is a recognized storage key.
func KnownKey(key string) bool {
	switch key {
	case KeyModel, KeyAIEnabled, KeyTemperature, KeyMaxTokens, KeyTopP,
		KeyPresencePenalty, KeyVerbosity, KeyTone, KeyHumor, KeyUserNames,
		KeyCustomInstructions, KeyStopSequences, KeyMorningTone,
		KeyEveningTone, KeyStressAware, KeyCelebrationMode:
		return true
	}
	return false
}

// ErrInvalidUpdate is wrapped by every rejection from [EncodeUpdate].
var ErrInvalidUpdate = errors.New("invalid behavior update")

// EncodeUpdate converts an admin update payload (decoded JSON) into the
// raw string pairs the store holds. Lists are stored as JSON arrays.
// Unknown keys are rejected; value validation is left to FromValues.
func EncodeUpdate(update map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(update))
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !KnownKey(k) {
			return nil, fmt.Errorf("%w: unknown setting %q", ErrInvalidUpdate, k)
		}
		switch v := update[k].(type) {
		case string:
			out[k] = v
		case bool:
			out[k] = strconv.FormatBool(v)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			out[k] = ""
		case []any:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: encode %s: %v", ErrInvalidUpdate, k, err)
			}
			out[k] = string(data)
		default:
			return nil, fmt.Errorf("%w: unsupported value type %T for %q", ErrInvalidUpdate, v, k)
		}
	}
	return out, nil
}

func parseBool(raw string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return b
}

func parseFloat(raw string, lo, hi, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || f < lo || f > hi {
		return def
	}
	return f
}

func parseInt(raw string, lo, hi, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}

// parseList accepts a JSON array of strings or a comma-separated list.
// Empty entries are dropped and the result is capped at limit. Stop
// sequences keep their whitespace ("\n\n" is a common one), so trim
// is only set for human-readable lists.
func parseList(raw string, limit int, trim bool) []string {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}

	var items []string
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return out
		}
	} else {
		items = strings.Split(raw, ",")
	}

	for _, item := range items {
		if trim {
			item = strings.TrimSpace(item)
		}
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
