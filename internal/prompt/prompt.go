// Package prompt builds the instruction string fed to the language model.
package prompt

import "strings"

// Template wraps user text in "### <User>: ...\n### <Assistant>: ".
type Template struct {
	UserLabel      string
	AssistantLabel string
}

var Default = Template{UserLabel: "User", AssistantLabel: "Ladybot"}

func (t Template) Format(text string) string {
	user, assistant := t.UserLabel, t.AssistantLabel
	if user == "" {
		user = Default.UserLabel
	}
	if assistant == "" {
		assistant = Default.AssistantLabel
	}
	return "### " + user + ": " + strings.TrimSpace(text) + "\n### " + assistant + ": "
}

// Format uses the default Ladybot labels.
func Format(text string) string {
	return Default.Format(text)
}
