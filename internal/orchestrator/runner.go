package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
)

// longWait is the gap between stream events worth a debug line of its own.
const longWait = 5 * time.Second

// Runner executes single stage calls on one session. It never retries.
type Runner struct {
	session  agentapi.Session
	sink     Sink
	timeouts Timeouts
	now      func() time.Time
	log      *zap.Logger
}

// NewRunner creates a Runner that forwards progress to sink. Zero timeouts
// disable the corresponding check.
func NewRunner(session agentapi.Session, sink Sink, timeouts Timeouts, log *zap.Logger) *Runner {
	if sink == nil {
		sink = discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		session:  session,
		sink:     sink,
		timeouts: timeouts,
		now:      time.Now,
		log:      log,
	}
}

// RunStage opens one stream to agent, classifies and forwards every event,
// and returns the accumulated text with the continuation token. When token is
// empty the token announced by the service is captured.
func (r *Runner) RunStage(ctx context.Context, agent agentapi.AgentRef, stage Stage, prompt, token string) (StageOutcome, error) {
	// The stream and its reader goroutine end when the stage returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := r.session.OpenStream(ctx, agentapi.StreamRequest{
		Agent:             agent,
		Input:             prompt,
		ContinuationToken: token,
	})
	if err != nil {
		return StageOutcome{}, r.stageError(stage, fmt.Errorf("open stream: %w", err))
	}

	var (
		buf       TextBuffer
		timing    Timing
		lastType  string
		lastEvent = r.now()
		count     int
	)
	log := r.log.With(zap.String("stage", stage.String()), zap.String("agent", agent.String()))

	for {
		wait, toolBound := r.nextDeadline(&timing)
		var timeout <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timeout = timer.C
		}

		var (
			se agentapi.StreamEvent
			ok bool
		)
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return StageOutcome{}, r.stageError(stage, ctx.Err())

		case <-timeout:
			if toolBound {
				return StageOutcome{}, r.stageError(stage, &ToolTimeoutError{
					Tool:    timing.ToolName,
					Elapsed: r.now().Sub(timing.ToolStart),
					Limit:   r.timeouts.ToolCall,
				})
			}
			return StageOutcome{}, r.stageError(stage, &IdleTimeoutError{
				Limit:     r.timeouts.StreamIdle,
				LastEvent: lastType,
			})

		case se, ok = <-ch:
			stopTimer(timer)
		}

		if !ok {
			if err := ctx.Err(); err != nil {
				return StageOutcome{}, r.stageError(stage, err)
			}
			log.Debug("stream closed", zap.Int("events", count), zap.Int("chars", buf.Len()))
			return StageOutcome{Text: buf.String(), ContinuationToken: token}, nil
		}

		if se.Err != nil {
			if errors.Is(se.Err, agentapi.ErrMalformedEvent) {
				log.Warn("skipping malformed event", zap.Error(se.Err))
				continue
			}
			return StageOutcome{}, r.stageError(stage, fmt.Errorf("read stream: %w", se.Err))
		}

		now := r.now()
		gap := now.Sub(lastEvent)
		lastEvent = now
		count++
		lastType = se.Event.Type()
		if gap > longWait {
			log.Debug("long wait between events", zap.Duration("elapsed", gap), zap.String("event", lastType))
		}
		log.Debug("stream event", zap.String("event", lastType), zap.Duration("elapsed", gap))

		for _, pe := range ClassifyEvent(se.Event, stage, &buf, &timing, now) {
			r.sink.Emit(pe)
		}

		switch e := se.Event.(type) {
		case agentapi.Created:
			if token == "" {
				token = e.ConversationID
				if token == "" {
					token = e.ResponseID
				}
			}
		case agentapi.Failed:
			return StageOutcome{}, r.stageError(stage, &ResponseFailedError{APIError: e.Error})
		}
	}
}

// nextDeadline returns how long to wait for the next event and whether the
// running tool call, rather than stream idleness, bounds the wait.
func (r *Runner) nextDeadline(timing *Timing) (time.Duration, bool) {
	wait := r.timeouts.StreamIdle
	if r.timeouts.ToolCall > 0 && timing.ToolRunning() {
		remain := r.timeouts.ToolCall - r.now().Sub(timing.ToolStart)
		if remain <= 0 {
			remain = time.Nanosecond
		}
		if wait <= 0 || remain < wait {
			return remain, true
		}
	}
	return wait, false
}

func (r *Runner) stageError(stage Stage, err error) error {
	c := Classify(err, stage)
	r.log.Warn("stage call failed",
		zap.String("stage", stage.String()),
		zap.String("error_kind", c.Kind.String()),
		zap.Error(err))
	return &StageError{
		Stage:      stage,
		Kind:       c.Kind,
		HTTPStatus: c.HTTPStatus,
		Code:       c.Code,
		Err:        err,
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
