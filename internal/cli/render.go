package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nevindra/lumen"
	"github.com/nevindra/lumen/ingest"
	"github.com/nevindra/lumen/rag"
)

const previewRunes = 150

var (
	headerStyle      = lipgloss.NewStyle().Bold(true)
	thoughtStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	actionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	observationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	answerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderSteps writes the Thought/Action/Observation transcript of a run.
func renderSteps(w io.Writer, steps []lumen.AgentStep) {
	for i, s := range steps {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Step %d", i+1)))
		if s.Thought != "" {
			fmt.Fprintln(w, thoughtStyle.Render("Thought: "+s.Thought))
		}
		fmt.Fprintln(w, actionStyle.Render(fmt.Sprintf("Action: %s[%s]", s.Action, s.ActionInput)))
		fmt.Fprintln(w, observationStyle.Render("Observation: "+s.Observation))
	}
}

// renderRun writes the transcript and outcome of one agent run. A failed run
// still shows the steps completed before the failure.
func renderRun(w io.Writer, res lumen.RunResult, err error) {
	var runErr *lumen.RunError
	if errors.As(err, &runErr) {
		renderSteps(w, runErr.Steps)
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Failed (%s): %v", runErr.Kind, err)))
		if runErr.Raw != "" {
			fmt.Fprintln(w, thoughtStyle.Render("Last model output: "+preview(runErr.Raw, previewRunes)))
		}
		return
	}
	if err != nil {
		fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
		return
	}
	renderSteps(w, res.Steps)
	fmt.Fprintln(w, answerStyle.Render("Final Answer: "+res.Output))
	fmt.Fprintln(w, thoughtStyle.Render(fmt.Sprintf("(%d model calls, %d input / %d output tokens)",
		res.Iterations, res.Usage.InputTokens, res.Usage.OutputTokens)))
}

// renderRetrieved lists the chunks an answer was grounded on with their
// source, page and a short preview.
func renderRetrieved(w io.Writer, retrieved []rag.Retrieved) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Retrieved %d chunks", len(retrieved))))
	for i, r := range retrieved {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%d] %s (score %.3f)", i+1, describeSource(r.Metadata), r.Score)
		sb.WriteString("\n")
		sb.WriteString(preview(r.Text, previewRunes))
		fmt.Fprintln(w, sourceBoxStyle.Render(sb.String()))
	}
}

func renderAnswer(w io.Writer, ans rag.Answer) {
	renderRetrieved(w, ans.Retrieved)
	fmt.Fprintln(w, answerStyle.Render("Answer: ")+ans.Text)
}

// describeSource renders "source p.N" from chunk metadata.
func describeSource(meta map[string]string) string {
	src := meta[ingest.MetaSource]
	if src == "" {
		src = "unknown source"
	}
	if page := meta[ingest.MetaPage]; page != "" {
		src += " p." + page
	}
	return src
}

// preview flattens whitespace and truncates s to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// sortedKeys is used when echoing ingestion summaries.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
