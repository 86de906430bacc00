package podcast

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/ai-podcaster/internal/script"
)

const SettingsVersion = 1

// Settings is the configuration snapshot a job is created with. It is
// validated once at creation and never changed afterwards; a retry reuses it.
type Settings struct {
	Version       int             `json:"version" yaml:"version"`
	TargetMinutes int             `json:"target_minutes" yaml:"target_minutes"`
	Language      string          `json:"language" yaml:"language"`
	HostCount     int             `json:"host_count" yaml:"host_count"`
	HostNames     []string        `json:"host_names" yaml:"host_names"`
	Voices        script.VoiceMap `json:"voices" yaml:"voices"`
	DefaultVoice  string          `json:"default_voice" yaml:"default_voice"`
	Style         string          `json:"style" yaml:"style"`
	Tone          string          `json:"tone" yaml:"tone"`
	IntroText     string          `json:"intro_text,omitempty" yaml:"intro_text"`
	IntroVoice    string          `json:"intro_voice,omitempty" yaml:"intro_voice"`
	OutroText     string          `json:"outro_text,omitempty" yaml:"outro_text"`
	OutroVoice    string          `json:"outro_voice,omitempty" yaml:"outro_voice"`
	EmotionTags   bool            `json:"emotion_tags" yaml:"emotion_tags"`

	LLMProvider string `json:"llm_provider" yaml:"llm_provider"`
	LLMModel    string `json:"llm_model,omitempty" yaml:"llm_model"`
	MaxTokens   int    `json:"max_tokens" yaml:"max_tokens"`

	TTSProvider   string  `json:"tts_provider" yaml:"tts_provider"`
	TTSModel      string  `json:"tts_model,omitempty" yaml:"tts_model"`
	TTSSpeed      float64 `json:"tts_speed" yaml:"tts_speed"`
	MaxChunkChars int     `json:"max_chunk_chars" yaml:"max_chunk_chars"`

	SearchEnabled  bool `json:"search_enabled" yaml:"search_enabled"`
	SummaryEnabled bool `json:"summary_enabled" yaml:"summary_enabled"`
}

// DefaultSettings is the built-in baseline used when config sets nothing.
func DefaultSettings() Settings {
	return Settings{
		Version:       SettingsVersion,
		TargetMinutes: 5,
		Language:      "English",
		HostCount:     2,
		HostNames:     []string{"Alex", "Sam"},
		Voices: script.VoiceMap{
			{Speaker: "Alex", Voice: "alloy"},
			{Speaker: "Sam", Voice: "nova"},
		},
		DefaultVoice:  script.DefaultVoice,
		Style:         "conversational",
		Tone:          "friendly",
		LLMProvider:   "ollama",
		MaxTokens:     4000,
		TTSProvider:   "openai",
		TTSSpeed:      1.0,
		MaxChunkChars: script.DefaultMaxChars,
	}
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	s.HostNames = append([]string(nil), s.HostNames...)
	s.Voices = append(script.VoiceMap(nil), s.Voices...)
	return s
}

// WithDefaults fills zero-valued numeric, string and list fields from d.
// Booleans and the intro/outro fields are taken as given since false and
// empty are meaningful choices; callers wanting those from d start from a
// copy of d instead.
func (s Settings) WithDefaults(d Settings) Settings {
	if s.Version == 0 {
		s.Version = d.Version
	}
	if s.TargetMinutes == 0 {
		s.TargetMinutes = d.TargetMinutes
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.HostCount == 0 {
		s.HostCount = d.HostCount
	}
	if len(s.HostNames) == 0 {
		s.HostNames = append([]string(nil), d.HostNames...)
	}
	if len(s.Voices) == 0 {
		s.Voices = append(script.VoiceMap(nil), d.Voices...)
	}
	if s.DefaultVoice == "" {
		s.DefaultVoice = d.DefaultVoice
	}
	if s.Style == "" {
		s.Style = d.Style
	}
	if s.Tone == "" {
		s.Tone = d.Tone
	}
	if s.LLMProvider == "" {
		s.LLMProvider = d.LLMProvider
	}
	if s.LLMModel == "" {
		s.LLMModel = d.LLMModel
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = d.MaxTokens
	}
	if s.TTSProvider == "" {
		s.TTSProvider = d.TTSProvider
	}
	if s.TTSModel == "" {
		s.TTSModel = d.TTSModel
	}
	if s.TTSSpeed == 0 {
		s.TTSSpeed = d.TTSSpeed
	}
	if s.MaxChunkChars == 0 {
		s.MaxChunkChars = d.MaxChunkChars
	}
	// Host names beyond the host count are dropped so prompts and voice
	// mapping agree.
	if s.HostCount > 0 && len(s.HostNames) > s.HostCount {
		s.HostNames = s.HostNames[:s.HostCount]
	}
	return s
}

func (s Settings) Validate() error {
	var errs []error
	if s.Version != SettingsVersion {
		errs = append(errs, fmt.Errorf("unsupported settings version %d", s.Version))
	}
	if s.TargetMinutes < 1 || s.TargetMinutes > 60 {
		errs = append(errs, errors.New("target_minutes must be between 1 and 60"))
	}
	if s.HostCount < 1 || s.HostCount > 4 {
		errs = append(errs, errors.New("host_count must be between 1 and 4"))
	}
	if len(s.HostNames) != s.HostCount {
		errs = append(errs, fmt.Errorf("host_names has %d entries, host_count is %d", len(s.HostNames), s.HostCount))
	}
	for i, name := range s.HostNames {
		if strings.TrimSpace(name) == "" || strings.Contains(name, ":") {
			errs = append(errs, fmt.Errorf("host_names[%d] is invalid", i))
		}
	}
	for i, v := range s.Voices {
		if strings.TrimSpace(v.Speaker) == "" || strings.TrimSpace(v.Voice) == "" {
			errs = append(errs, fmt.Errorf("voices[%d] needs speaker and voice", i))
		}
	}
	if strings.TrimSpace(s.LLMProvider) == "" {
		errs = append(errs, errors.New("llm_provider is required"))
	}
	if strings.TrimSpace(s.TTSProvider) == "" {
		errs = append(errs, errors.New("tts_provider is required"))
	}
	if s.TTSSpeed < 0.25 || s.TTSSpeed > 4 {
		errs = append(errs, errors.New("tts_speed must be between 0.25 and 4"))
	}
	if s.MaxChunkChars < 100 || s.MaxChunkChars > 10000 {
		errs = append(errs, errors.New("max_chunk_chars must be between 100 and 10000"))
	}
	if s.MaxTokens < 0 {
		errs = append(errs, errors.New("max_tokens must not be negative"))
	}
	return errors.Join(errs...)
}

// BatchOptions maps the settings onto the segment batcher.
func (s Settings) BatchOptions() script.BatchOptions {
	return script.BatchOptions{
		Voices:       s.Voices,
		DefaultVoice: s.DefaultVoice,
		MaxChars:     s.MaxChunkChars,
		IntroText:    s.IntroText,
		IntroVoice:   s.IntroVoice,
		OutroText:    s.OutroText,
		OutroVoice:   s.OutroVoice,
		EmotionTags:  s.EmotionTags,
	}
}

func (Settings) GormDataType() string { return "text" }

func (s Settings) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Settings) Scan(src any) error {
	return scanJSON(src, s)
}
