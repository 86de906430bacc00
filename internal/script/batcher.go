package script

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars bounds the text sent in one synthesis call.
const DefaultMaxChars = 4000

const (
	SpeakerIntro = "Intro"
	SpeakerOutro = "Outro"
)

// Unit is one synthesis call: same-voice text in script order.
type Unit struct {
	Index   int    `json:"index"`
	Voice   string `json:"voice"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type BatchOptions struct {
	Voices       VoiceMap
	DefaultVoice string
	MaxChars     int
	IntroText    string
	IntroVoice   string
	OutroText    string
	OutroVoice   string
	// EmotionTags keeps a turn's emotion inline as "[emotion] text".
	EmotionTags bool
}

// Batch groups consecutive same-voice turns into units of at most MaxChars
// characters. A single turn longer than MaxChars is emitted as-is. The
// returned order is the merge order.
func Batch(turns []Turn, opts BatchOptions) []Unit {
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	resolver := NewResolver(opts.Voices, opts.DefaultVoice)

	var units []Unit
	emit := func(u Unit) {
		u.Index = len(units)
		units = append(units, u)
	}

	if intro := strings.TrimSpace(opts.IntroText); intro != "" {
		emit(Unit{Voice: edgeVoice(opts.IntroVoice, resolver), Speaker: SpeakerIntro, Text: intro})
	}

	var cur *Unit
	curLen := 0
	flush := func() {
		if cur != nil {
			emit(*cur)
			cur = nil
			curLen = 0
		}
	}

	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		if opts.EmotionTags && t.Emotion != "" {
			text = "[" + t.Emotion + "] " + text
		}
		voice := resolver.Resolve(t.Speaker)
		n := utf8.RuneCountInString(text)

		if cur != nil && cur.Voice == voice && curLen+1+n <= maxChars {
			cur.Text += " " + text
			curLen += 1 + n
			continue
		}
		flush()
		cur = &Unit{Voice: voice, Speaker: t.Speaker, Text: text}
		curLen = n
	}
	flush()

	if outro := strings.TrimSpace(opts.OutroText); outro != "" {
		emit(Unit{Voice: edgeVoice(opts.OutroVoice, resolver), Speaker: SpeakerOutro, Text: outro})
	}
	return units
}

func edgeVoice(explicit string, r Resolver) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if v := r.Voices.First(); v != "" {
		return v
	}
	return r.Default
}
