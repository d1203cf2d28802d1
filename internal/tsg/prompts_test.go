package tsg

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sampleNotes    = "Topic: ValueError when adding multiple tools to ToolSet."
	sampleResearch = "## Research Report\nToolSet allows only one instance per tool type."
	sampleAnswers  = "No internal tooling for this issue. Apply other suggestions as you see fit."
)

func sampleReview() *Review {
	return &Review{
		Approved:       true,
		AccuracyIssues: []string{"OpenAPI/MCP scoped too broadly to knowledge tools limitation."},
		Suggestions:    []string{"Add tool scope collision check to Diagnosis."},
	}
}

func TestResearchPrompt(t *testing.T) {
	p := ResearchPrompt(sampleNotes)
	assert.Contains(t, p, sampleNotes)
	assert.Contains(t, p, ResearchBegin)
	assert.Contains(t, p, ResearchEnd)
}

func TestExtractResearch(t *testing.T) {
	assert.Equal(t, "doc found", ExtractResearch("chatter "+ResearchBegin+"\ndoc found\n"+ResearchEnd))
	assert.Equal(t, "doc found", ExtractResearch("  doc found \n"))
}

func TestWriterPrompt_Baseline(t *testing.T) {
	p := WriterPrompt(WriterInput{Notes: sampleNotes, Research: sampleResearch})

	assert.Contains(t, p, Template)
	assert.Contains(t, p, sampleNotes)
	assert.NotContains(t, p, "<prior_tsg>")
	assert.NotContains(t, p, "<prior_review_feedback>")
	assert.NotContains(t, p, "<answers>")
}

func TestWriterPrompt_AnswersWithoutReview(t *testing.T) {
	p := WriterPrompt(WriterInput{
		Notes:       sampleNotes,
		Research:    sampleResearch,
		PriorTSG:    "prior draft",
		UserAnswers: sampleAnswers,
	})

	assert.Contains(t, p, "<prior_tsg>")
	assert.Contains(t, p, "<answers>")
	assert.Contains(t, p, "Replace {{MISSING::...}} placeholders with these answers.")
	assert.NotContains(t, p, "reviewer's suggestions")
}

func TestWriterPrompt_WithReviewFeedback(t *testing.T) {
	p := WriterPrompt(WriterInput{
		Notes:       sampleNotes,
		Research:    sampleResearch,
		PriorTSG:    "prior draft",
		UserAnswers: sampleAnswers,
		PriorReview: sampleReview(),
	})

	assert.Contains(t, p, "<prior_review_feedback>")
	assert.Contains(t, p, "accuracy_issues")
	assert.Contains(t, p, "OpenAPI/MCP")
	assert.Contains(t, p, "reviewer's suggestions")
	assert.Contains(t, p, "apply suggestions the user accepted")
	assert.Contains(t, p, "leave unchanged anything the user dismissed")
	assert.NotContains(t, p, "Replace {{MISSING::...}} placeholders with these answers.\n")
}

func TestWriterPrompt_CleanReviewAddsNothing(t *testing.T) {
	p := WriterPrompt(WriterInput{
		Notes:       sampleNotes,
		UserAnswers: sampleAnswers,
		PriorReview: &Review{Approved: true},
	})
	assert.NotContains(t, p, "<prior_review_feedback>")
}

func TestReviewPrompt_Baseline(t *testing.T) {
	p := ReviewPrompt(ReviewInput{Draft: "draft", Research: sampleResearch, Notes: sampleNotes})

	assert.Contains(t, p, ReviewBegin)
	assert.NotContains(t, p, "<prior_review>")
	assert.NotContains(t, p, "Do NOT re-raise")
}

func TestReviewPrompt_PriorReviewNeedsAnswers(t *testing.T) {
	p := ReviewPrompt(ReviewInput{Draft: "draft", Notes: sampleNotes, PriorReview: sampleReview()})
	assert.NotContains(t, p, "<prior_review>")
}

func TestReviewPrompt_Suppression(t *testing.T) {
	p := ReviewPrompt(ReviewInput{
		Draft:       "draft",
		Research:    sampleResearch,
		Notes:       sampleNotes,
		PriorReview: sampleReview(),
		UserAnswers: sampleAnswers,
	})

	assert.Contains(t, p, "<user_response_to_review>")
	assert.Contains(t, p, sampleAnswers)
	assert.Contains(t, p, "Do NOT re-raise suggestions the user explicitly dismissed")
	assert.Contains(t, p, "Only flag NEW issues")

	start := strings.Index(p, "<prior_review>") + len("<prior_review>")
	end := strings.Index(p, "</prior_review>")
	require.Greater(t, end, start)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(p[start:end]), &parsed))
	assert.Contains(t, parsed, "accuracy_issues")
	assert.Contains(t, parsed, "suggestions")
}

func TestRepairPrompt(t *testing.T) {
	p := RepairPrompt(RepairInput{
		Issues:   []string{"Missing TSG_END marker", "Missing required heading: # **Cause**"},
		Notes:    sampleNotes,
		Research: sampleResearch,
		Draft:    "broken draft",
	})

	assert.Contains(t, p, "- Missing TSG_END marker\n")
	assert.Contains(t, p, "- Missing required heading: # **Cause**\n")
	assert.Contains(t, p, "<template>")
	assert.Contains(t, p, "<prior_tsg>\nbroken draft\n</prior_tsg>")
	assert.Contains(t, p, sampleResearch)
}
