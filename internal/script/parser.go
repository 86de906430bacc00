package script

import (
	"bufio"
	"errors"
	"regexp"
	"strings"
)

// WordsPerMinute is the speaking rate used for duration estimates.
const WordsPerMinute = 150

var ErrScriptEmpty = errors.New("script is empty")

var emotionPrefix = regexp.MustCompile(`^\[(\w+)\]`)

// Turn is one line of dialogue attributed to a speaker.
type Turn struct {
	Speaker string `json:"speaker"`
	Emotion string `json:"emotion,omitempty"`
	Text    string `json:"text"`
}

// Script is the structured form of a drafted dialogue.
type Script struct {
	Raw              string  `json:"raw"`
	Turns            []Turn  `json:"turns"`
	WordCount        int     `json:"word_count"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
	HasEmotions      bool    `json:"has_emotions"`
}

// Parse turns "SPEAKER: [emotion] text" lines into turns. Lines without a
// speaker prefix are dropped; models drift from the requested format and a
// stray line should not fail the whole script.
func Parse(raw string) (Script, error) {
	out := Script{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return out, ErrScriptEmpty
	}

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		turn, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		out.Turns = append(out.Turns, turn)
		out.WordCount += len(strings.Fields(turn.Text))
		if turn.Emotion != "" {
			out.HasEmotions = true
		}
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	if len(out.Turns) == 0 {
		return out, ErrScriptEmpty
	}
	out.EstimatedMinutes = float64(out.WordCount) / WordsPerMinute
	return out, nil
}

func parseLine(line string) (Turn, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Turn{}, false
	}
	speaker, rest, ok := strings.Cut(line, ":")
	if !ok {
		return Turn{}, false
	}
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return Turn{}, false
	}

	rest = strings.TrimSpace(rest)
	var emotion string
	if m := emotionPrefix.FindStringSubmatch(rest); m != nil {
		emotion = m[1]
		rest = rest[len(m[0]):]
	}
	return Turn{
		Speaker: speaker,
		Emotion: emotion,
		Text:    strings.TrimSpace(rest),
	}, true
}
