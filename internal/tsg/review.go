package tsg

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoReview is returned when reviewer output carries no JSON verdict.
var ErrNoReview = errors.New("tsg: no review block in reviewer output")

//go:embed review.schema.json
var reviewSchemaJSON []byte

const reviewSchemaURL = "review.schema.json"

var (
	reviewSchemaOnce sync.Once
	reviewSchema     *jsonschema.Schema
	reviewSchemaErr  error
)

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Review is the reviewer's parsed verdict on a draft.
type Review struct {
	Approved           bool     `json:"approved"`
	StructureIssues    []string `json:"structure_issues,omitempty"`
	AccuracyIssues     []string `json:"accuracy_issues,omitempty"`
	CompletenessIssues []string `json:"completeness_issues,omitempty"`
	FormatIssues       []string `json:"format_issues,omitempty"`
	Suggestions        []string `json:"suggestions,omitempty"`
	CorrectedTSG       *string  `json:"corrected_tsg,omitempty"`
}

// HasCorrection reports whether the reviewer supplied a replacement draft.
func (r *Review) HasCorrection() bool {
	return r != nil && r.CorrectedTSG != nil && strings.TrimSpace(*r.CorrectedTSG) != ""
}

// Issues returns accuracy issues followed by structure issues.
func (r *Review) Issues() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.AccuracyIssues)+len(r.StructureIssues))
	out = append(out, r.AccuracyIssues...)
	return append(out, r.StructureIssues...)
}

// HasFeedback reports whether the review carries anything worth feeding back
// into a follow-up iteration.
func (r *Review) HasFeedback() bool {
	if r == nil {
		return false
	}
	return len(r.AccuracyIssues)+len(r.CompletenessIssues)+len(r.FormatIssues)+
		len(r.StructureIssues)+len(r.Suggestions) > 0
}

func compiledReviewSchema() (*jsonschema.Schema, error) {
	reviewSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(reviewSchemaURL, bytes.NewReader(reviewSchemaJSON)); err != nil {
			reviewSchemaErr = fmt.Errorf("tsg: add review schema: %w", err)
			return
		}
		reviewSchema, reviewSchemaErr = compiler.Compile(reviewSchemaURL)
		if reviewSchemaErr != nil {
			reviewSchemaErr = fmt.Errorf("tsg: compile review schema: %w", reviewSchemaErr)
		}
	})
	return reviewSchema, reviewSchemaErr
}

// reviewJSON locates the verdict object: the review marker pair first, then a
// fenced json block, then the whole response if it is a bare object.
func reviewJSON(text string) (string, bool) {
	if block, ok := Between(text, ReviewBegin, ReviewEnd); ok && block != "" {
		if m := jsonFence.FindStringSubmatch(block); m != nil {
			return m[1], true
		}
		return block, true
	}
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, true
	}
	return "", false
}

// ParseReview extracts and validates the reviewer's JSON verdict. Any error
// means the reviewer output is unparsable.
func ParseReview(text string) (*Review, error) {
	raw, ok := reviewJSON(text)
	if !ok {
		return nil, ErrNoReview
	}

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("tsg: decode review: %w", err)
	}
	schema, err := compiledReviewSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("tsg: review does not match schema: %w", err)
	}

	var review Review
	if err := json.Unmarshal([]byte(raw), &review); err != nil {
		return nil, fmt.Errorf("tsg: decode review: %w", err)
	}
	return &review, nil
}
