package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// TemplateFuncs are the helpers available to summary templates.
var TemplateFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	// compact renders raw JSON items as a bracketed, comma separated list.
	"compact": func(items []json.RawMessage) string {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			var buf bytes.Buffer
			if err := json.Compact(&buf, it); err != nil {
				parts = append(parts, string(it))
				continue
			}
			parts = append(parts, buf.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	},
	"printf": fmt.Sprintf,
}

// ParseTemplate parses text with TemplateFuncs. Output is plain text, not
// HTML, so no escaping is applied.
func ParseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(TemplateFuncs).Option("missingkey=zero").Parse(text)
}

// RenderTemplate executes tmpl against data.
func RenderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
