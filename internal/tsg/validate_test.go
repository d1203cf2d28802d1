package tsg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() string {
	return RequiredTOC + "\n\n" + strings.Join(RequiredHeadings, "\n\n") + "\n\n" +
		RequiredDiagnosisLine + "\n\nSome content here.\n"
}

func wrap(doc, questions string) string {
	return "\n" + TSGBegin + "\n" + doc + "\n" + TSGEnd + "\n\n" +
		QuestionsBegin + "\n" + questions + "\n" + QuestionsEnd + "\n"
}

func anyContains(issues []string, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}

func TestValidate_ValidDocument(t *testing.T) {
	v := Validate(wrap(validDoc(), NoMissing))

	assert.True(t, v.Valid)
	assert.Empty(t, v.Issues)
	assert.Contains(t, v.TSGContent, RequiredTOC)
	assert.Contains(t, v.TSGContent, "# **Title**")
	assert.Equal(t, NoMissing, v.QuestionsContent)
}

func TestValidate_PlaceholdersListed(t *testing.T) {
	placeholder := "{{MISSING::Cause::What is the root cause?}}"
	doc := strings.Replace(validDoc(), "Some content here.", placeholder, 1)

	v := Validate(wrap(doc, "- "+placeholder+" -> What was the root cause of the issue?"))

	assert.True(t, v.Valid, "issues: %v", v.Issues)
}

func TestValidate_MissingMarkers(t *testing.T) {
	tests := []struct {
		name   string
		remove string
		want   string
	}{
		{"tsg begin", TSGBegin, "TSG_BEGIN"},
		{"tsg end", TSGEnd, "TSG_END"},
		{"questions begin", QuestionsBegin, "QUESTIONS_BEGIN"},
		{"questions end", QuestionsEnd, "QUESTIONS_END"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := strings.Replace(wrap(validDoc(), NoMissing), tt.remove, "", 1)
			v := Validate(draft)
			assert.False(t, v.Valid)
			assert.True(t, anyContains(v.Issues, tt.want), "issues: %v", v.Issues)
		})
	}
}

func TestValidate_EmptyResponse(t *testing.T) {
	v := Validate("")
	assert.False(t, v.Valid)
	assert.GreaterOrEqual(t, len(v.Issues), 4)
}

func TestValidate_MissingTOC(t *testing.T) {
	doc := strings.Replace(validDoc(), RequiredTOC, "", 1)
	v := Validate(wrap(doc, NoMissing))

	assert.False(t, v.Valid)
	found := false
	for _, issue := range v.Issues {
		if strings.Contains(strings.ToLower(issue), "table of contents") {
			found = true
		}
	}
	assert.True(t, found, "issues: %v", v.Issues)
}

func TestValidate_MissingHeading(t *testing.T) {
	doc := strings.Replace(validDoc(), "# **Title**", "# Something else", 1)
	v := Validate(wrap(doc, NoMissing))

	assert.False(t, v.Valid)
	assert.True(t, anyContains(v.Issues, "Title"))
}

func TestValidate_MissingDiagnosisLine(t *testing.T) {
	doc := strings.Replace(validDoc(), RequiredDiagnosisLine, "", 1)
	v := Validate(wrap(doc, NoMissing))

	assert.False(t, v.Valid)
	assert.True(t, anyContains(v.Issues, "diagnosis line"))
}

func TestValidate_QuestionsRules(t *testing.T) {
	withPlaceholder := validDoc() + "\n{{MISSING::Section::Hint}}"

	tests := []struct {
		name      string
		doc       string
		questions string
		want      string
	}{
		{"placeholder but NO_MISSING", withPlaceholder, NoMissing, "NO_MISSING"},
		{"no placeholder but questions", validDoc(), "- What version?", "not NO_MISSING"},
		{"placeholder not listed", withPlaceholder, "Just some text without the proper format", "doesn't list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(wrap(tt.doc, tt.questions))
			assert.False(t, v.Valid)
			assert.True(t, anyContains(v.Issues, tt.want), "issues: %v", v.Issues)
		})
	}
}

func TestValidate_MarkersOutOfOrder(t *testing.T) {
	draft := TSGEnd + "\n" + validDoc() + "\n" + TSGBegin + "\n" +
		QuestionsBegin + "\n" + NoMissing + "\n" + QuestionsEnd

	v := Validate(draft)

	assert.False(t, v.Valid)
	assert.Equal(t, "", v.TSGContent)
}

func TestValidate_TrimsQuestions(t *testing.T) {
	v := Validate(wrap(validDoc(), "\n\n   "+NoMissing+"   \n"))

	assert.True(t, v.Valid)
	assert.Equal(t, NoMissing, v.QuestionsContent)
}

func TestValidate_IssueOrderIsStable(t *testing.T) {
	draft := strings.Replace(wrap(validDoc(), NoMissing), QuestionsEnd, "", 1)
	draft = strings.Replace(draft, RequiredTOC, "", 1)

	first := Validate(draft)
	second := Validate(draft)

	require.NotEmpty(t, first.Issues)
	assert.Equal(t, first.Issues, second.Issues)
	assert.Contains(t, first.Issues[0], "QUESTIONS_END")
}

func TestExtract_IndependentPairs(t *testing.T) {
	final := "preamble\n" + TSGBegin + "\n doc body \n" + TSGEnd + "\ntrailer"

	doc, questions := Extract(final)

	assert.Equal(t, "doc body", doc)
	assert.Equal(t, "", questions)
}

func TestPlaceholders(t *testing.T) {
	doc := "a {{MISSING::Cause::why}} b {{MISSING::Title::error code}} c {{MISSING::broken"

	assert.Equal(t, []string{"{{MISSING::Cause::why}}", "{{MISSING::Title::error code}}"}, Placeholders(doc))
}
