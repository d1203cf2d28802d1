package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// Compile-time interface checks.
var (
	_ Orchestrator = (*Pipeline)(nil)
	_ Validator    = tsg.Validator{}
)

// Pipeline sequences Research, Write, and Review for one run at a time per
// call. It holds no per-run state; each Run opens its own session.
type Pipeline struct {
	dialer    agentapi.Dialer
	cfg       Config
	validator Validator
	sleep     Sleeper
	log       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithValidator replaces the structural validator.
func WithValidator(v Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithSleeper replaces the rate-limit backoff sleep.
func WithSleeper(s Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline creates a Pipeline that opens sessions through dialer.
func NewPipeline(dialer agentapi.Dialer, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		dialer:    dialer,
		cfg:       cfg,
		validator: tsg.Validator{},
		sleep:     sleepContext,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ---------------------------------------------------------------------------
// Orchestrator interface
// ---------------------------------------------------------------------------

// Run executes one run. It always returns a result: a cancelled run has
// Cancelled set, a failed run has Error set, and neither is Success.
func (p *Pipeline) Run(ctx context.Context, req RunRequest, sink Sink) *PipelineResult {
	if sink == nil {
		sink = discard
	}
	result := &PipelineResult{StagesCompleted: []Stage{}}
	if p.cfg.Diagnostic {
		result.StageCaptures = make(map[string]StageCapture)
	}
	x := &execution{
		Pipeline: p,
		req:      req,
		sink:     sink,
		result:   result,
		log:      p.log,
	}
	x.retry = &retrier{
		policy: p.cfg.policy,
		sleep:  p.sleep,
		sink:   sink,
		cancel: req.Cancel,
		log:    p.log,
	}

	err := x.execute(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		result.Success = false
		result.Cancelled = true
		p.log.Info("run cancelled", zap.Int("stages", len(result.StagesCompleted)))
		sink.Emit(ProgressEvent{
			Kind:    KindCancelled,
			Stage:   StageFailed,
			Icon:    "⏹️",
			Message: "Generation cancelled",
		})
	default:
		result.Success = false
		result.Error = err.Error()
		c := Classify(err, stageOf(err))
		p.log.Error("run failed", zap.String("error_kind", c.Kind.String()), zap.Error(err))
		sink.Emit(ProgressEvent{
			Kind:      KindError,
			Stage:     StageFailed,
			Icon:      StageFailed.Icon(),
			Message:   fmt.Sprintf("❌ Pipeline failed: %s", c.UserMessage),
			ErrorType: c.Kind.String(),
			Fatal:     true,
			Hint:      c.Hint,
		})
	}
	return result
}

// stageOf returns the stage a failure is scoped to, or Failed.
func stageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageFailed
}

// ---------------------------------------------------------------------------
// Per-run execution
// ---------------------------------------------------------------------------

// execution is the mutable state of a single run. Only its own goroutine
// touches result.
type execution struct {
	*Pipeline
	req    RunRequest
	sink   Sink
	result *PipelineResult
	runner *Runner
	retry  *retrier
	log    *zap.Logger
}

func (x *execution) execute(ctx context.Context) error {
	if err := checkpoint(ctx, x.req.Cancel); err != nil {
		return err
	}

	session, err := x.dialer.Open(ctx)
	if err != nil {
		if cerr := checkpoint(ctx, x.req.Cancel); cerr != nil {
			return cerr
		}
		return fmt.Errorf("orchestrator: open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			x.log.Warn("close session", zap.Error(cerr))
		}
	}()
	x.runner = NewRunner(session, x.sink, x.cfg.Timeouts, x.log)

	research, err := x.research(ctx)
	if err != nil {
		return err
	}

	draft, writeToken, err := x.write(ctx, research)
	if err != nil {
		return err
	}

	if err := checkpoint(ctx, x.req.Cancel); err != nil {
		return err
	}
	x.stageStart(StageReview)
	final, review, err := x.reviewLoop(ctx, draft, research, writeToken)
	if err != nil {
		return err
	}
	x.result.Review = review
	x.result.completeStage(StageReview)
	x.stageComplete(StageReview)

	doc, questions := tsg.Extract(final)
	x.result.Success = doc != ""
	if doc != "" {
		doc += tsg.Signature
	}
	x.result.TSGContent = doc
	x.result.QuestionsContent = questions
	x.capture("final", StageCapture{RawResponse: final, FinalDraft: doc})

	if !x.result.Success {
		x.result.Error = "final output contained no document between the TSG markers"
		x.log.Warn("run produced no document", zap.Int("chars", len(final)))
	}
	msg := "TSG generation complete"
	if q := x.result.Questions(); q != "" {
		msg += " (follow-up questions pending)"
	}
	x.sink.Emit(ProgressEvent{
		Kind:    KindPipelineComplete,
		Stage:   StageComplete,
		Icon:    StageComplete.Icon(),
		Message: msg,
	})
	return nil
}

// research runs the research stage, or reuses prior research on follow-ups.
func (x *execution) research(ctx context.Context) (string, error) {
	if x.req.FollowUp() {
		x.result.ResearchReport = x.req.PriorResearch
		x.status(StageResearch, "⏭️", "⏭️ Research: Skipped for follow-up", nil)
		if x.req.PriorResearch == "" {
			return tsg.ResearchUnavailable, nil
		}
		return x.req.PriorResearch, nil
	}

	if err := checkpoint(ctx, x.req.Cancel); err != nil {
		return "", err
	}
	x.stageStart(StageResearch)
	prompt := tsg.ResearchPrompt(x.req.Notes)
	out, err := x.retry.run(ctx, StageResearch, func(ctx context.Context) (StageOutcome, error) {
		return x.runner.RunStage(ctx, x.cfg.Agents.Researcher, StageResearch, prompt, "")
	})
	if err != nil {
		return "", err
	}
	research := tsg.ExtractResearch(out.Text)
	x.result.ResearchReport = research
	x.result.completeStage(StageResearch)
	x.capture(StageResearch.String(), StageCapture{Prompt: prompt, RawResponse: out.Text, Extracted: research})
	x.stageComplete(StageResearch)
	return research, nil
}

// write runs the write stage exactly once under its transient policy.
func (x *execution) write(ctx context.Context, research string) (string, string, error) {
	if err := checkpoint(ctx, x.req.Cancel); err != nil {
		return "", "", err
	}
	x.stageStart(StageWrite)
	prompt := tsg.WriterPrompt(tsg.WriterInput{
		Notes:       x.req.Notes,
		Research:    research,
		PriorTSG:    x.req.PriorTSG,
		UserAnswers: x.req.UserAnswers,
		PriorReview: x.req.PriorReview,
	})
	out, err := x.retry.run(ctx, StageWrite, func(ctx context.Context) (StageOutcome, error) {
		return x.runner.RunStage(ctx, x.cfg.Agents.Writer, StageWrite, prompt, x.req.ContinuationToken)
	})
	if err != nil {
		return "", "", err
	}
	x.result.ContinuationToken = out.ContinuationToken
	x.result.completeStage(StageWrite)
	x.capture(StageWrite.String(), StageCapture{Prompt: prompt, RawResponse: out.Text})
	x.stageComplete(StageWrite)
	return out.Text, out.ContinuationToken, nil
}

// ---------------------------------------------------------------------------
// Event helpers
// ---------------------------------------------------------------------------

func (x *execution) stageStart(s Stage) {
	x.log.Info("stage started", zap.String("stage", s.String()))
	x.sink.Emit(ProgressEvent{
		Kind:    KindStageStart,
		Stage:   s,
		Icon:    s.Icon(),
		Message: fmt.Sprintf("%s %s: Starting...", s.Icon(), s.Title()),
	})
}

func (x *execution) stageComplete(s Stage) {
	x.log.Info("stage completed", zap.String("stage", s.String()))
	x.sink.Emit(ProgressEvent{
		Kind:    KindStageComplete,
		Stage:   s,
		Icon:    "✅",
		Message: fmt.Sprintf("✅ %s: Complete", s.Title()),
	})
}

func (x *execution) status(s Stage, icon, msg string, issues []string) {
	x.sink.Emit(ProgressEvent{
		Kind:    KindStatus,
		Stage:   s,
		Status:  StatusInProgress,
		Icon:    icon,
		Message: msg,
		Issues:  issues,
	})
}

// capture records raw stage material in diagnostic mode.
func (x *execution) capture(key string, c StageCapture) {
	if x.result.StageCaptures == nil {
		return
	}
	x.result.StageCaptures[key] = c
}
