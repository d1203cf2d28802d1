// Package orchestrator runs the research, write, and review stages against
// the agent service: event classification, per-stage retries, the
// validation-driven repair loop, progress delivery, and cancellation.
package orchestrator

import (
	"context"

	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// Stage identifies a pipeline stage. Complete and Failed only tag events.
type Stage int

const (
	StageResearch Stage = iota
	StageWrite
	StageReview
	StageComplete
	StageFailed
)

func (s Stage) String() string {
	names := [...]string{
		"research",
		"write",
		"review",
		"complete",
		"failed",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Title is the capitalized stage name used in messages.
func (s Stage) Title() string {
	switch s {
	case StageResearch:
		return "Research"
	case StageWrite:
		return "Write"
	case StageReview:
		return "Review"
	case StageComplete:
		return "Complete"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Icon is the marker shown next to the stage's status lines.
func (s Stage) Icon() string {
	switch s {
	case StageResearch:
		return "🔍"
	case StageWrite:
		return "✍️"
	case StageReview:
		return "🔎"
	case StageComplete:
		return "✅"
	case StageFailed:
		return "❌"
	default:
		return "•"
	}
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StageOutcome is the product of one successful stage call.
type StageOutcome struct {
	Text              string
	ContinuationToken string
}

// StageCapture holds raw stage material kept in diagnostic mode.
type StageCapture struct {
	Prompt      string      `json:"prompt,omitempty"`
	RawResponse string      `json:"rawResponse,omitempty"`
	Extracted   string      `json:"extracted,omitempty"`
	Review      *tsg.Review `json:"review,omitempty"`
	FinalDraft  string      `json:"finalDraft,omitempty"`
}

// RunRequest is the input to one pipeline run.
type RunRequest struct {
	// Notes are the raw troubleshooting notes.
	Notes string

	// ContinuationToken resumes the writer conversation of an earlier run.
	ContinuationToken string

	// PriorTSG is the document produced by an earlier run.
	PriorTSG string

	// UserAnswers marks a follow-up run. Research is skipped when set.
	UserAnswers string

	// PriorResearch is reused on follow-ups when supplied.
	PriorResearch string

	// PriorReview feeds earlier reviewer feedback into the follow-up.
	PriorReview *tsg.Review

	// Cancel is polled at every checkpoint. Nil means the run can only be
	// stopped through its context.
	Cancel *CancelSignal
}

// FollowUp reports whether the run answers an earlier run's questions.
func (r RunRequest) FollowUp() bool {
	return r.UserAnswers != ""
}

// PipelineResult is the aggregate outcome of a run. Only the pipeline
// mutates it; callers receive it once at the end.
type PipelineResult struct {
	Success           bool                    `json:"success"`
	Cancelled         bool                    `json:"cancelled,omitempty"`
	TSGContent        string                  `json:"tsgContent"`
	QuestionsContent  string                  `json:"questionsContent"`
	ResearchReport    string                  `json:"researchReport"`
	Review            *tsg.Review             `json:"review,omitempty"`
	ContinuationToken string                  `json:"continuationToken"`
	Error             string                  `json:"error,omitempty"`
	StagesCompleted   []Stage                 `json:"stagesCompleted"`
	RetryCount        int                     `json:"retryCount"`
	StageCaptures     map[string]StageCapture `json:"stageCaptures,omitempty"`
}

// completeStage appends to the audit trail. Stages are never removed.
func (r *PipelineResult) completeStage(s Stage) {
	r.StagesCompleted = append(r.StagesCompleted, s)
}

// Questions returns the follow-up questions, or "" when nothing is missing.
func (r *PipelineResult) Questions() string {
	if r.QuestionsContent == tsg.NoMissing {
		return ""
	}
	return r.QuestionsContent
}

// Warnings lists unresolved reviewer issues carried by an accepted draft.
func (r *PipelineResult) Warnings() []string {
	if r.Review == nil || r.Review.Approved {
		return nil
	}
	return r.Review.Issues()
}

// Validator checks the structure of a draft.
type Validator interface {
	Validate(draft string) tsg.Validation
}

// Orchestrator runs a complete pipeline.
type Orchestrator interface {
	// Run executes one run, delivering progress to sink. It always returns a
	// result; failures are recorded in it.
	Run(ctx context.Context, req RunRequest, sink Sink) *PipelineResult
}
