package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/brokermesh/internal/util"
)

// DefaultSummaryTemplate renders the prompt-like summary handed to text
// generation. It sees a SummaryData value.
const DefaultSummaryTemplate = `📍 Location: {{default "N/A" .Location}}
🌤️ Weather: {{default "N/A" .WeatherDescription}} ({{default "N/A" .Temperature}}°C)
👤 Preferences: {{join ", " .Activities}}
🎫 Events Nearby: {{compact .Events}}
🏞️ Places Nearby: {{compact .Places}}
📰 Blogs: {{compact .Content}}
{{- if .Category}}
🧭 Context: {{.Category}}
{{- end}}
{{- if .Enrichment}}
✨ Suggested for this context: {{compact .Enrichment}}
{{- end}}

Suggest a smart activity or blog to the user with a brief natural sentence.
`

// SummaryData is the view of a Result that summary templates render.
type SummaryData struct {
	Location           string
	WeatherDescription string
	Temperature        string
	Activities         []string
	Events             []json.RawMessage
	Places             []json.RawMessage
	Content            []json.RawMessage
	Category           string
	Enrichment         []json.RawMessage
}

func newSummaryData(r *Result) SummaryData {
	d := SummaryData{
		Events:     r.Events,
		Places:     r.Places,
		Content:    r.Content,
		Enrichment: r.Enrichment,
		Category:   strings.ReplaceAll(r.Category.Name, "_", " "),
	}
	if r.Location != nil {
		d.Location = r.Location.DisplayName
	}
	if r.Weather != nil {
		d.WeatherDescription = r.Weather.Description
		d.Temperature = fmt.Sprintf("%.1f", r.Weather.Temperature)
	}
	if r.Preferences != nil {
		for _, a := range r.Preferences.Activities {
			d.Activities = append(d.Activities, a.Name)
		}
	}
	return d
}

// summarizer renders Results with a parsed template.
type summarizer struct {
	tmpl *template.Template
}

func newSummarizer(text string) (*summarizer, error) {
	if text == "" {
		text = DefaultSummaryTemplate
	}
	tmpl, err := util.ParseTemplate("summary", text)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parse summary template: %w", err)
	}
	return &summarizer{tmpl: tmpl}, nil
}

func (s *summarizer) render(r *Result) (string, error) {
	return util.RenderTemplate(s.tmpl, newSummaryData(r))
}
