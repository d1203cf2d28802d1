// Package export converts a finished run into a structured JSON document:
// the TSG split into sections, the follow-up questions paired with their
// placeholders, and the run's audit trail.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dusk-indust/tsgdraft/internal/orchestrator"
	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// RunExport is the top-level JSON export structure.
type RunExport struct {
	ThreadID        string           `json:"threadId,omitempty"`
	ExportedAt      string           `json:"exportedAt"`
	Success         bool             `json:"success"`
	Cancelled       bool             `json:"cancelled,omitempty"`
	Error           string           `json:"error,omitempty"`
	StagesCompleted []string         `json:"stagesCompleted"`
	RetryCount      int              `json:"retryCount"`
	Sections        []SectionExport  `json:"sections,omitempty"`
	Questions       []QuestionExport `json:"questions,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	Research        string           `json:"research,omitempty"`
	Document        string           `json:"document,omitempty"`
}

// SectionExport is one top-level heading of the document.
type SectionExport struct {
	Heading      string   `json:"heading"`
	Body         string   `json:"body"`
	Placeholders []string `json:"placeholders,omitempty"`
}

// QuestionExport pairs a placeholder with the question asked to fill it.
type QuestionExport struct {
	Placeholder string `json:"placeholder,omitempty"`
	Question    string `json:"question"`
}

// ExportRun builds a RunExport from a pipeline result.
func ExportRun(res *orchestrator.PipelineResult) *RunExport {
	export := &RunExport{
		ThreadID:   res.ContinuationToken,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Success:    res.Success,
		Cancelled:  res.Cancelled,
		Error:      res.Error,
		RetryCount: res.RetryCount,
		Warnings:   res.Warnings(),
		Research:   res.ResearchReport,
		Document:   res.TSGContent,
	}
	export.StagesCompleted = make([]string, len(res.StagesCompleted))
	for i, s := range res.StagesCompleted {
		export.StagesCompleted[i] = s.String()
	}
	export.Sections = ParseSections(strings.TrimSuffix(res.TSGContent, tsg.Signature))
	export.Questions = ParseQuestions(res.Questions())
	return export
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

var (
	// Matches: "# **Cause**"
	headingRegex = regexp.MustCompile(`^#\s+\*\*(.+?)\*\*\s*$`)
	// Matches: "- {{MISSING::Cause::hint}} -> question" (also "→" and ":" separators)
	questionRegex = regexp.MustCompile(`^\s*[-*]\s+(\{\{MISSING::.+?\}\})\s*(?:->|→|:)\s*(.+)$`)
	bulletRegex   = regexp.MustCompile(`^\s*[-*]\s+(.+)$`)
)

// ParseSections splits doc at its "# **Heading**" lines. Text before the
// first heading, such as the table of contents, is dropped.
func ParseSections(doc string) []SectionExport {
	var sections []SectionExport
	var current *SectionExport
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		current.Placeholders = tsg.Placeholders(current.Body)
		sections = append(sections, *current)
	}

	scanner := bufio.NewScanner(strings.NewReader(doc))
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &SectionExport{Heading: strings.TrimSpace(m[1])}
			body = body[:0]
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return sections
}

// ParseQuestions reads the questions block one item per line. Lines that do
// not name a placeholder are kept as free-standing questions.
func ParseQuestions(block string) []QuestionExport {
	block = strings.TrimSpace(block)
	if block == "" || block == tsg.NoMissing {
		return nil
	}

	var out []QuestionExport
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := questionRegex.FindStringSubmatch(line); m != nil {
			out = append(out, QuestionExport{Placeholder: m[1], Question: strings.TrimSpace(m[2])})
			continue
		}
		if m := bulletRegex.FindStringSubmatch(line); m != nil {
			out = append(out, QuestionExport{Question: strings.TrimSpace(m[1])})
			continue
		}
		out = append(out, QuestionExport{Question: strings.TrimSpace(line)})
	}
	return out
}
