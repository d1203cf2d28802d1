package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/tsgdraft/internal/orchestrator"
)

var (
	stageStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	sectionStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// progressPrinter renders progress events as styled status lines.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Print(ev orchestrator.ProgressEvent) {
	fmt.Fprintln(p.w, styleFor(ev).Render(orchestrator.FormatProgress(ev)))
}

func styleFor(ev orchestrator.ProgressEvent) lipgloss.Style {
	switch ev.Kind {
	case orchestrator.KindStageStart:
		return stageStyle
	case orchestrator.KindStageComplete, orchestrator.KindPipelineComplete:
		return doneStyle
	case orchestrator.KindError, orchestrator.KindCancelled:
		if ev.Fatal || ev.Kind == orchestrator.KindCancelled {
			return errorStyle
		}
		return warnStyle
	case orchestrator.KindStatus:
		if len(ev.Issues) > 0 {
			return warnStyle
		}
		return lipgloss.NewStyle()
	default:
		return dimStyle
	}
}

// printSummary writes the end-of-run summary: thread, questions, and
// unresolved reviewer warnings.
func printSummary(w io.Writer, res *orchestrator.PipelineResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Summary"))
	stages := make([]string, len(res.StagesCompleted))
	for i, s := range res.StagesCompleted {
		stages[i] = s.String()
	}
	fmt.Fprintf(w, "  stages:  %s\n", strings.Join(stages, " → "))
	fmt.Fprintf(w, "  retries: %d\n", res.RetryCount)
	if res.ContinuationToken != "" {
		fmt.Fprintf(w, "  thread:  %s\n", res.ContinuationToken)
	}

	if q := res.Questions(); q != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render("Follow-up questions"))
		fmt.Fprintln(w, sectionStyle.Render(q))
	}
	if warnings := res.Warnings(); len(warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render("Reviewer warnings"))
		for _, s := range warnings {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}
