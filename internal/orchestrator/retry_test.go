package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRetrier(sleeper *sleepRecorder, sink Sink, sig *CancelSignal) *retrier {
	cfg := testConfig()
	return &retrier{
		policy: cfg.policy,
		sleep:  sleeper.sleep,
		sink:   sink,
		cancel: sig,
		log:    zap.NewNop(),
	}
}

func stageErr(stage Stage, kind FailureKind, msg string) error {
	return &StageError{Stage: stage, Kind: kind, Err: errors.New(msg)}
}

func TestRetrier_RateLimitBackoff(t *testing.T) {
	sleeper := &sleepRecorder{}
	rec := &recorder{}
	r := newTestRetrier(sleeper, rec, nil)

	attempts := 0
	_, err := r.run(context.Background(), StageResearch, func(context.Context) (StageOutcome, error) {
		attempts++
		return StageOutcome{}, stageErr(StageResearch, FailureRateLimit, "HTTP 429 Too Many Requests")
	})
	require.Error(t, err)

	assert.Equal(t, 4, attempts, "research allows 1 + 3 attempts")
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 90 * time.Second}, sleeper.waits)

	fatal := rec.kinds(KindError)
	require.Len(t, fatal, 1)
	assert.True(t, fatal[0].Fatal)
	assert.Equal(t, HintRateLimit, fatal[0].Hint)
}

func TestRetrier_TimeoutRetriesWithoutSleeping(t *testing.T) {
	sleeper := &sleepRecorder{}
	r := newTestRetrier(sleeper, discard, nil)

	attempts := 0
	out, err := r.run(context.Background(), StageWrite, func(context.Context) (StageOutcome, error) {
		attempts++
		if attempts < 3 {
			return StageOutcome{}, stageErr(StageWrite, FailureTransport, "request timed out")
		}
		return StageOutcome{Text: "done"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Text)
	assert.Equal(t, 3, attempts)
	assert.Empty(t, sleeper.waits)
}

func TestRetrier_WriteExhaustsAfterThreeAttempts(t *testing.T) {
	r := newTestRetrier(&sleepRecorder{}, discard, nil)

	attempts := 0
	_, err := r.run(context.Background(), StageWrite, func(context.Context) (StageOutcome, error) {
		attempts++
		return StageOutcome{}, stageErr(StageWrite, FailureTransport, "connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_NonRetryableFailsImmediately(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"auth", "HTTP 401 unauthorized"},
		{"tool source", "mcp server returned an error"},
		{"unknown", "something odd happened"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &sleepRecorder{}
			r := newTestRetrier(sleeper, discard, nil)
			attempts := 0
			_, err := r.run(context.Background(), StageResearch, func(context.Context) (StageOutcome, error) {
				attempts++
				return StageOutcome{}, errors.New(tt.msg)
			})
			require.Error(t, err)
			assert.Equal(t, 1, attempts)
			assert.Empty(t, sleeper.waits)
		})
	}
}

func TestRetrier_CancelBeforeFirstAttempt(t *testing.T) {
	sig := &CancelSignal{}
	sig.Cancel()
	r := newTestRetrier(&sleepRecorder{}, discard, sig)

	called := false
	_, err := r.run(context.Background(), StageResearch, func(context.Context) (StageOutcome, error) {
		called = true
		return StageOutcome{}, nil
	})
	require.ErrorIs(t, err, ErrCancelled)
	assert.False(t, called)
}

func TestRetrier_CancelBetweenAttempts(t *testing.T) {
	sig := &CancelSignal{}
	r := newTestRetrier(&sleepRecorder{}, discard, sig)

	attempts := 0
	_, err := r.run(context.Background(), StageResearch, func(context.Context) (StageOutcome, error) {
		attempts++
		sig.Cancel()
		return StageOutcome{}, stageErr(StageResearch, FailureTransport, "timeout")
	})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_RetryMessages(t *testing.T) {
	rec := &recorder{}
	r := newTestRetrier(&sleepRecorder{}, rec, nil)

	attempts := 0
	_, err := r.run(context.Background(), StageResearch, func(context.Context) (StageOutcome, error) {
		attempts++
		if attempts == 1 {
			return StageOutcome{}, stageErr(StageResearch, FailureRateLimit, "429")
		}
		return StageOutcome{Text: "ok"}, nil
	})
	require.NoError(t, err)

	var messages []string
	for _, ev := range rec.all() {
		messages = append(messages, ev.Message)
	}
	assert.Equal(t, []string{
		"⚠️ Research: Rate limited. Waiting to retry...",
		"⏳ Waiting 30s before retry...",
		"🔄 Research: Retrying (attempt 2/4)...",
	}, messages)
}
