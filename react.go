package lumen

import (
	"regexp"
	"strings"
)

// ParseResult is the tagged outcome of parsing one model reply:
// FinalAnswer, ToolCall, or Unparsed.
type ParseResult interface {
	parseResult()
}

// FinalAnswer ends the run with Text.
type FinalAnswer struct {
	Thought string
	Text    string
}

// ToolCall asks for Name to be invoked with Input.
type ToolCall struct {
	Thought string
	Name    string
	Input   string
}

// Unparsed is a reply that follows neither grammar.
type Unparsed struct {
	Raw    string
	Reason string
}

func (FinalAnswer) parseResult() {}
func (ToolCall) parseResult()    {}
func (Unparsed) parseResult()    {}

// Markers may be decorated with markdown (bold, headings, quotes) and vary in case.
const markerLead = `(?:^|\n)[ \t>*_#-]*`
const markerTail = `[ \t*_]*:[ \t*_]*`

var (
	finalRe       = regexp.MustCompile(`(?is)` + markerLead + `final[ \t]+answer` + markerTail + `(.*)$`)
	actionRe      = regexp.MustCompile(`(?i)` + markerLead + `action` + markerTail + `([^\n]*)`)
	actionInputRe = regexp.MustCompile(`(?is)` + markerLead + `action[ \t]+input` + markerTail + `(.*?)(?:` + markerLead + `observation` + markerTail + `|$)`)
	thoughtRe     = regexp.MustCompile(`(?i)^[ \t>*_#-]*thought` + markerTail)
	codeFenceRe   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n?(.*?)\\n?```$")
)

// ParseResponse classifies a model reply. When a reply contains both a Final
// Answer and an Action, the Final Answer wins.
func ParseResponse(text string) ParseResult {
	if m := finalRe.FindStringSubmatchIndex(text); m != nil {
		answer := strings.TrimSpace(text[m[2]:m[3]])
		if answer == "" {
			return Unparsed{Raw: text, Reason: "empty Final Answer"}
		}
		return FinalAnswer{Thought: thoughtBefore(text, m[0]), Text: answer}
	}

	am := actionRe.FindStringSubmatchIndex(text)
	if am == nil {
		return Unparsed{Raw: text, Reason: "no Action or Final Answer"}
	}
	name := cleanToolName(text[am[2]:am[3]])
	if name == "" {
		return Unparsed{Raw: text, Reason: "empty Action"}
	}
	im := actionInputRe.FindStringSubmatch(text[am[1]:])
	if im == nil {
		return Unparsed{Raw: text, Reason: "Action without Action Input"}
	}
	return ToolCall{
		Thought: thoughtBefore(text, am[0]),
		Name:    name,
		Input:   cleanInput(im[1]),
	}
}

// thoughtBefore returns the reasoning text preceding the marker at end,
// without its "Thought:" label.
func thoughtBefore(text string, end int) string {
	s := strings.TrimSpace(text[:end])
	if loc := thoughtRe.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	}
	return strings.TrimSpace(s)
}

func cleanToolName(s string) string {
	return strings.Trim(strings.TrimSpace(s), "`\"'[]*_ ")
}

func cleanInput(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '`' && last == '`') || (first == '\'' && last == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return s
}
