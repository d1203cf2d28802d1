package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retrier runs stage calls under their transient-failure policy.
type retrier struct {
	policy func(Stage) Policy
	sleep  Sleeper
	sink   Sink
	cancel *CancelSignal
	log    *zap.Logger
}

// run calls fn until it succeeds, fails with a non-retryable error, or the
// stage's retries are exhausted. Cancellation is checked before every
// attempt. Only rate limits wait between attempts.
func (r *retrier) run(ctx context.Context, stage Stage, fn func(ctx context.Context) (StageOutcome, error)) (StageOutcome, error) {
	policy := r.policy(stage)
	attempts := policy.MaxRetries + 1
	title := stage.Title()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := checkpoint(ctx, r.cancel); err != nil {
			return StageOutcome{}, err
		}
		if attempt > 0 {
			r.sink.Emit(ProgressEvent{
				Kind:    KindStatus,
				Stage:   stage,
				Status:  StatusInProgress,
				Icon:    "🔄",
				Message: fmt.Sprintf("🔄 %s: Retrying (attempt %d/%d)...", title, attempt+1, attempts),
			})
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		c := Classify(err, stage)
		if c.Kind == FailureCancelled || errors.Is(err, ErrCancelled) || r.cancel.Cancelled() {
			return StageOutcome{}, ErrCancelled
		}

		log := r.log.With(
			zap.String("stage", stage.String()),
			zap.Int("attempt", attempt+1),
			zap.String("error_kind", c.Kind.String()),
		)
		if !c.Retryable || attempt == attempts-1 {
			log.Error("stage failed", zap.Error(err))
			r.sink.Emit(ProgressEvent{
				Kind:      KindError,
				Stage:     stage,
				Icon:      "❌",
				Message:   fmt.Sprintf("❌ %s", c.UserMessage),
				ErrorType: c.Kind.String(),
				Fatal:     true,
				Hint:      c.Hint,
			})
			return StageOutcome{}, err
		}

		log.Warn("stage attempt failed, retrying", zap.Error(err))
		r.sink.Emit(ProgressEvent{
			Kind:      KindStatus,
			Stage:     stage,
			Status:    StatusInProgress,
			Icon:      "⚠️",
			Message:   fmt.Sprintf("⚠️ %s", c.UserMessage),
			ErrorType: c.Kind.String(),
			Retryable: true,
			Hint:      c.Hint,
		})

		if c.Kind == FailureRateLimit {
			wait := policy.Backoff(attempt)
			r.sink.Emit(ProgressEvent{
				Kind:    KindStatus,
				Stage:   stage,
				Status:  StatusInProgress,
				Icon:    "⏳",
				Message: fmt.Sprintf("⏳ Waiting %.0fs before retry...", wait.Seconds()),
			})
			if err := r.sleep(ctx, wait); err != nil {
				return StageOutcome{}, ErrCancelled
			}
		}
	}
	return StageOutcome{}, lastErr
}
