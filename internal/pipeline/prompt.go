package pipeline

import (
	"strings"
	"text/template"

	"github.com/suPer8Hu/ai-podcaster/internal/podcast"
	"github.com/suPer8Hu/ai-podcaster/internal/script"
	"github.com/suPer8Hu/ai-podcaster/internal/search"
)

// maxSourceRunes caps how much article text goes into a prompt.
const maxSourceRunes = 12000

const systemPrompt = `You write scripts for audio podcasts. Reply with the script only: one line per turn, formatted as SPEAKER: text. No headings, stage directions or markdown.`

var scriptTmpl = template.Must(template.New("script").Parse(`Write a {{.Settings.Style}} podcast episode in {{.Settings.Language}} with a {{.Settings.Tone}} tone.

Hosts ({{len .Settings.HostNames}}): {{range $i, $h := .Settings.HostNames}}{{if $i}}, {{end}}{{$h}}{{end}}.
Every line must start with one of those names followed by a colon.
Aim for about {{.TargetWords}} words ({{.Settings.TargetMinutes}} minutes).
{{- if .Settings.EmotionTags}}
You may start a line's text with one bracketed emotion such as [excited], [laughs] or [thoughtful], e.g. "{{index .Settings.HostNames 0}}: [excited] Welcome back!".
{{- else}}
Do not use bracketed emotion tags.
{{- end}}

Source article: {{.Title}}
---
{{.Body}}
---
{{- if .Context}}

Recent context from the web:
{{range .Context}}- {{.Title}} ({{.URL}}): {{.Snippet}}
{{end}}
{{- end}}`))

var summaryTmpl = template.Must(template.New("summary").Parse(`Summarize this podcast episode in 2-3 sentences for a show-notes blurb. Reply with the summary only.

Title: {{.Title}}

{{.Transcript}}`))

type scriptPromptData struct {
	Title       string
	Body        string
	Settings    podcast.Settings
	TargetWords int
	Context     []search.Result
}

// ScriptPrompt renders the drafting prompt for one article.
func ScriptPrompt(title, body string, s podcast.Settings, enrichment []search.Result) (string, error) {
	var b strings.Builder
	err := scriptTmpl.Execute(&b, scriptPromptData{
		Title:       title,
		Body:        truncateRunes(strings.TrimSpace(body), maxSourceRunes),
		Settings:    s,
		TargetWords: s.TargetMinutes * script.WordsPerMinute,
		Context:     enrichment,
	})
	return b.String(), err
}

func SummaryPrompt(title, transcript string) (string, error) {
	var b strings.Builder
	err := summaryTmpl.Execute(&b, struct{ Title, Transcript string }{
		Title:      title,
		Transcript: truncateRunes(transcript, maxSourceRunes),
	})
	return b.String(), err
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
