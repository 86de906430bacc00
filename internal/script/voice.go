package script

import "strings"

// DefaultVoice is used when a job carries no voice assignments at all.
const DefaultVoice = "alloy"

// VoiceAssignment binds a speaker label to a provider voice id.
type VoiceAssignment struct {
	Speaker string `json:"speaker" yaml:"speaker"`
	Voice   string `json:"voice" yaml:"voice"`
}

// VoiceMap is an ordered speaker -> voice mapping. Order matters: the first
// entry is the fallback for unknown speakers and the default intro voice.
type VoiceMap []VoiceAssignment

// First returns the first assigned voice, or "" for an empty map.
func (m VoiceMap) First() string {
	for _, a := range m {
		if v := strings.TrimSpace(a.Voice); v != "" {
			return v
		}
	}
	return ""
}

// Resolver maps speaker labels to voices. It never fails.
type Resolver struct {
	Voices  VoiceMap
	Default string
}

func NewResolver(voices VoiceMap, fallback string) Resolver {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultVoice
	}
	return Resolver{Voices: voices, Default: fallback}
}

// Resolve tries exact, case-insensitive, then substring matches (either
// direction, case-insensitive) before falling back to the first mapping entry
// and finally the default voice.
func (r Resolver) Resolve(speaker string) string {
	label := strings.TrimSpace(speaker)

	for _, a := range r.Voices {
		if strings.TrimSpace(a.Speaker) == label && a.Voice != "" {
			return a.Voice
		}
	}
	for _, a := range r.Voices {
		if strings.EqualFold(strings.TrimSpace(a.Speaker), label) && a.Voice != "" {
			return a.Voice
		}
	}

	lower := strings.ToLower(label)
	if lower != "" {
		for _, a := range r.Voices {
			key := strings.ToLower(strings.TrimSpace(a.Speaker))
			if key == "" || a.Voice == "" {
				continue
			}
			if strings.Contains(lower, key) || strings.Contains(key, lower) {
				return a.Voice
			}
		}
	}

	if v := r.Voices.First(); v != "" {
		return v
	}
	return r.Default
}

// Resolve is a convenience wrapper around Resolver with the default fallback.
func Resolve(speaker string, voices VoiceMap) string {
	return NewResolver(voices, DefaultVoice).Resolve(speaker)
}
