package tsg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WriterInput carries everything the writer stage needs.
type WriterInput struct {
	Notes       string
	Research    string
	PriorTSG    string
	UserAnswers string
	PriorReview *Review
}

// ReviewInput carries everything the reviewer stage needs.
type ReviewInput struct {
	Draft       string
	Research    string
	Notes       string
	PriorReview *Review
	UserAnswers string
}

// RepairInput carries a structurally invalid draft back to the writer.
type RepairInput struct {
	Issues   []string
	Notes    string
	Research string
	Draft    string
}

// ResearchPrompt asks the researcher to gather documentation for the notes and
// return a report between the research markers.
func ResearchPrompt(notes string) string {
	var b strings.Builder
	b.WriteString("Research the issue described in the notes below before any document is written.\n")
	b.WriteString("Search official documentation for the product, error messages, and error codes, and search\n")
	b.WriteString("community sources (GitHub issues, Stack Overflow) for workarounds and known bugs.\n\n")
	b.WriteString("Return a research report with: a summary, key findings, relevant documentation links,\n")
	b.WriteString("known workarounds, and anything that could not be verified.\n")
	fmt.Fprintf(&b, "Wrap the report between %s and %s.\n\n", ResearchBegin, ResearchEnd)
	writeSection(&b, "notes", notes)
	return b.String()
}

// ExtractResearch returns the report between the research markers, or the
// whole response when the researcher ignored them.
func ExtractResearch(response string) string {
	if report, ok := Between(response, ResearchBegin, ResearchEnd); ok && report != "" {
		return report
	}
	return strings.TrimSpace(response)
}

// WriterPrompt builds the writer prompt. Prior drafts, answers, and review
// feedback are included only when present.
func WriterPrompt(in WriterInput) string {
	var b strings.Builder
	b.WriteString("Write a Technical Support Guide from the notes and research below using the template exactly.\n")
	b.WriteString("Keep every heading in order. Where information is missing, insert a placeholder of the form\n")
	b.WriteString("{{MISSING::<SECTION>::<CONCISE_HINT>}} rather than inventing facts.\n\n")
	fmt.Fprintf(&b, "Output the document between %s and %s.\n", TSGBegin, TSGEnd)
	fmt.Fprintf(&b, "Then output follow-up questions between %s and %s: one line per placeholder formatted as\n", QuestionsBegin, QuestionsEnd)
	fmt.Fprintf(&b, "- {{MISSING::<SECTION>::<CONCISE_HINT>}} -> <question>, or exactly %s when there are no placeholders.\n\n", NoMissing)

	writeSection(&b, "template", Template)
	writeSection(&b, "notes", in.Notes)
	writeSection(&b, "research", in.Research)

	if in.PriorTSG != "" {
		writeSection(&b, "prior_tsg", in.PriorTSG)
	}

	feedback := in.PriorReview.HasFeedback()
	if feedback {
		writeSection(&b, "prior_review_feedback", reviewFeedbackJSON(in.PriorReview))
	}

	if in.UserAnswers != "" {
		writeSection(&b, "answers", in.UserAnswers)
		if feedback {
			b.WriteString("The answers respond to both the missing placeholders and the reviewer's suggestions.\n")
			b.WriteString("Replace {{MISSING::...}} placeholders with the answers, apply suggestions the user accepted, ")
			b.WriteString("and leave unchanged anything the user dismissed.\n")
		} else {
			b.WriteString("Replace {{MISSING::...}} placeholders with these answers.\n")
		}
	}
	return b.String()
}

// ReviewPrompt asks the reviewer to check the draft and reply with a JSON
// verdict between the review markers. Prior feedback is carried only on a
// follow-up where the user responded to it.
func ReviewPrompt(in ReviewInput) string {
	var b strings.Builder
	b.WriteString("Review the draft Technical Support Guide for structure, accuracy against the research,\n")
	b.WriteString("completeness against the notes, and formatting.\n")
	fmt.Fprintf(&b, "Reply with a JSON object between %s and %s with the fields:\n", ReviewBegin, ReviewEnd)
	b.WriteString(`approved (bool), structure_issues, accuracy_issues, completeness_issues, format_issues,` + "\n")
	b.WriteString(`suggestions (arrays of strings), corrected_tsg (the full corrected response including markers, or null).` + "\n\n")

	writeSection(&b, "draft", in.Draft)
	writeSection(&b, "research", in.Research)
	writeSection(&b, "notes", in.Notes)

	if in.UserAnswers != "" && in.PriorReview.HasFeedback() {
		writeSection(&b, "prior_review", reviewFeedbackJSON(in.PriorReview))
		writeSection(&b, "user_response_to_review", in.UserAnswers)
		b.WriteString("Do NOT re-raise suggestions the user explicitly dismissed. Only flag NEW issues.\n")
	}
	return b.String()
}

// RepairPrompt sends a structurally invalid draft back to the writer with the
// exact issues found.
func RepairPrompt(in RepairInput) string {
	var b strings.Builder
	b.WriteString("Your TSG had structure issues:\n")
	for _, issue := range in.Issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	b.WriteString("\nPlease fix these issues and regenerate the TSG with correct format.\n\n")
	writeSection(&b, "template", Template)
	writeSection(&b, "notes", in.Notes)
	writeSection(&b, "research", in.Research)
	writeSection(&b, "prior_tsg", in.Draft)
	return b.String()
}

func writeSection(b *strings.Builder, tag, body string) {
	fmt.Fprintf(b, "<%s>\n%s\n</%s>\n\n", tag, strings.TrimSpace(body), tag)
}

// reviewFeedbackJSON keeps only the feedback fields; approval and any
// corrected draft are irrelevant to the next iteration.
func reviewFeedbackJSON(r *Review) string {
	feedback := map[string][]string{}
	add := func(key string, items []string) {
		if len(items) > 0 {
			feedback[key] = items
		}
	}
	add("structure_issues", r.StructureIssues)
	add("accuracy_issues", r.AccuracyIssues)
	add("completeness_issues", r.CompletenessIssues)
	add("format_issues", r.FormatIssues)
	add("suggestions", r.Suggestions)
	data, _ := json.MarshalIndent(feedback, "", "  ")
	return string(data)
}
