// Package prompts contains the LLM prompt templates Daybreak sends to
// the generative backend.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and can be validated by
// tests. Per-user preferences (tone, humor, names, custom instructions)
// live in the behavior settings and are passed in by the caller; this
// package only turns them into instructions.
package prompts
