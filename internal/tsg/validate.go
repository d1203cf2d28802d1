package tsg

import (
	"fmt"
	"strings"
)

// Validation is the outcome of a structural check on a draft. It is
// recomputed from the draft text on every check and never mutated.
type Validation struct {
	Valid            bool     `json:"valid"`
	Issues           []string `json:"issues"`
	TSGContent       string   `json:"tsgContent,omitempty"`
	QuestionsContent string   `json:"questionsContent,omitempty"`
}

// Validator checks drafts against the marker, heading, and placeholder rules.
// The zero value is ready to use.
type Validator struct{}

// Validate runs the structural checks. It is a method so the orchestrator can
// depend on an interface and tests can substitute their own rules.
func (Validator) Validate(draft string) Validation {
	return Validate(draft)
}

// Between returns the trimmed text between the first begin marker and the
// first end marker. It reports false when either marker is missing or the end
// marker precedes the begin marker.
func Between(text, begin, end string) (string, bool) {
	i := strings.Index(text, begin)
	j := strings.Index(text, end)
	if i == -1 || j == -1 || j <= i {
		return "", false
	}
	return strings.TrimSpace(text[i+len(begin) : j]), true
}

// Extract pulls the document and follow-up questions out of final stage
// output. Each pair is independent: a missing pair yields an empty string.
func Extract(final string) (doc, questions string) {
	doc, _ = Between(final, TSGBegin, TSGEnd)
	questions, _ = Between(final, QuestionsBegin, QuestionsEnd)
	return doc, questions
}

// Validate checks a raw writer response. Issues are reported in a fixed
// order: markers, document structure, then the questions block.
func Validate(draft string) Validation {
	var issues []string

	for _, m := range []struct{ marker, name string }{
		{TSGBegin, "TSG_BEGIN"},
		{TSGEnd, "TSG_END"},
		{QuestionsBegin, "QUESTIONS_BEGIN"},
		{QuestionsEnd, "QUESTIONS_END"},
	} {
		if !strings.Contains(draft, m.marker) {
			issues = append(issues, fmt.Sprintf("Missing %s marker (%s)", m.name, m.marker))
		}
	}

	doc, docOK := Between(draft, TSGBegin, TSGEnd)
	questions, questionsOK := Between(draft, QuestionsBegin, QuestionsEnd)

	if strings.Contains(draft, TSGBegin) && strings.Contains(draft, TSGEnd) && !docOK {
		issues = append(issues, "TSG_END marker appears before TSG_BEGIN; TSG content could not be extracted")
	}
	if strings.Contains(draft, QuestionsBegin) && strings.Contains(draft, QuestionsEnd) && !questionsOK {
		issues = append(issues, "QUESTIONS_END marker appears before QUESTIONS_BEGIN; questions could not be extracted")
	}

	if docOK {
		issues = append(issues, checkDocument(doc)...)
	}
	if docOK && questionsOK {
		issues = append(issues, checkQuestions(doc, questions)...)
	}

	return Validation{
		Valid:            len(issues) == 0,
		Issues:           issues,
		TSGContent:       doc,
		QuestionsContent: questions,
	}
}

func checkDocument(doc string) []string {
	var issues []string
	if !strings.HasPrefix(strings.TrimSpace(doc), RequiredTOC) {
		issues = append(issues, fmt.Sprintf("Missing table of contents: TSG must start with %s", RequiredTOC))
	}
	for _, h := range RequiredHeadings {
		if !strings.Contains(doc, h) {
			issues = append(issues, fmt.Sprintf("Missing required heading: %s", h))
		}
	}
	if !strings.Contains(doc, RequiredDiagnosisLine) {
		issues = append(issues, "Missing required diagnosis line in the Diagnosis section")
	}
	return issues
}

func checkQuestions(doc, questions string) []string {
	hasPlaceholders := strings.Contains(doc, PlaceholderPrefix)
	switch {
	case hasPlaceholders && questions == NoMissing:
		return []string{"TSG contains {{MISSING::...}} placeholders but the questions block says NO_MISSING"}
	case !hasPlaceholders && questions != NoMissing:
		return []string{"TSG has no placeholders but the questions block is not NO_MISSING"}
	case hasPlaceholders && !strings.Contains(questions, PlaceholderPrefix):
		return []string{"TSG contains placeholders but the questions block doesn't list them"}
	}
	return nil
}

// Placeholders returns every {{MISSING::...}} placeholder in doc, in order.
func Placeholders(doc string) []string {
	var out []string
	rest := doc
	for {
		i := strings.Index(rest, PlaceholderPrefix)
		if i == -1 {
			return out
		}
		j := strings.Index(rest[i:], "}}")
		if j == -1 {
			return out
		}
		out = append(out, rest[i:i+j+2])
		rest = rest[i+j+2:]
	}
}
