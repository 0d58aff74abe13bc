package scheduler

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// notifyFuncMap is the function set available to a notify_prompt
// template: the string helpers a run summary is actually likely to need.
func notifyFuncMap() template.FuncMap {
	titleCase := cases.Title(language.Und)
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": titleCase.String,
		"trim":  strings.TrimSpace,
		"join":  strings.Join,
	}
}

// notifyVars is the data made available to a notify_prompt template.
type notifyVars struct {
	TaskName   string
	TaskID     string
	RunID      string
	Transcript string
}

// renderNotifyPrompt expands {{ .TaskName }}-style references in prompt
// against vars. A prompt with no template actions round-trips unchanged.
func renderNotifyPrompt(prompt string, vars notifyVars) (string, error) {
	if prompt == "" {
		return "", nil
	}
	tmpl, err := template.New("notify_prompt").Funcs(notifyFuncMap()).Parse(prompt)
	if err != nil {
		return "", fmt.Errorf("parse notify_prompt: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render notify_prompt: %w", err)
	}
	return buf.String(), nil
}
