package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   FailureKind
		wantStatus int
		wantHint   string
	}{
		{"nil", nil, FailureUnclassified, 0, ""},
		{"cancelled", ErrCancelled, FailureCancelled, 0, ""},
		{"context cancelled", fmt.Errorf("read: %w", context.Canceled), FailureCancelled, 0, ""},
		{"deadline", context.DeadlineExceeded, FailureTransport, 0, HintTimeout},
		{"tool timeout", &ToolTimeoutError{Tool: "docs", Elapsed: 95 * time.Second, Limit: 90 * time.Second}, FailureTransport, 0, HintTimeout},
		{"idle timeout", &IdleTimeoutError{Limit: 2 * time.Minute}, FailureTransport, 0, HintTimeout},
		{"connection text", errors.New("connection refused"), FailureTransport, 0, HintConnection},
		{"peer closed", errors.New("peer closed connection without sending complete message body"), FailureTransport, 0, HintConnection},
		{"rate limit text", errors.New("Too Many Requests"), FailureRateLimit, 0, HintRateLimit},
		{"rate limit status", &agentapi.StatusError{StatusCode: 429}, FailureRateLimit, 429, HintRateLimit},
		{"rate limit code", &ResponseFailedError{APIError: agentapi.APIError{Code: "rate_limit_exceeded", Message: "slow"}}, FailureRateLimit, 0, HintRateLimit},
		{"server error", &agentapi.StatusError{StatusCode: 500, Body: "oops"}, FailureTransport, 500, HintServiceError},
		{"auth", &agentapi.StatusError{StatusCode: 401}, FailureFatal, 401, HintAuth},
		{"not found", &agentapi.StatusError{StatusCode: 404}, FailureFatal, 404, HintNotFound},
		{"content filter", &ResponseFailedError{APIError: agentapi.APIError{Code: "content_filter", Message: "blocked"}}, FailureFatal, 0, ""},
		{"tool source", errors.New("MCP server error"), FailureToolSource, 0, HintServiceError},
		{"quota phrase", errors.New("quota exceeded for deployment"), FailureFatal, 0, HintRateLimit},
		{"unknown", errors.New("boom"), FailureFatal, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err, StageResearch)
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.Equal(t, tt.wantKind.Retryable(), c.Retryable)
			assert.Equal(t, tt.wantStatus, c.HTTPStatus)
			assert.Equal(t, tt.wantHint, c.Hint)
		})
	}
}

func TestTimeoutErrors_FormatSubSecondLimits(t *testing.T) {
	idle := &IdleTimeoutError{Limit: 200 * time.Millisecond, LastEvent: "response.created"}
	assert.Equal(t, `stream idle timeout: no events for 200ms after "response.created"`, idle.Error())

	tool := &ToolTimeoutError{Tool: "docs", Elapsed: 1500 * time.Millisecond, Limit: time.Second}
	assert.Equal(t, `tool "docs" timed out after 1.5s (limit 1s)`, tool.Error())
}

func TestClassify_TimeoutWinsOverRateLimit(t *testing.T) {
	c := Classify(errors.New("429 received, then connection timed out"), StageWrite)
	assert.Equal(t, FailureTransport, c.Kind)
}

func TestClassify_MessagesNameTheStage(t *testing.T) {
	c := Classify(&agentapi.StatusError{StatusCode: 429}, StageReview)
	assert.Equal(t, "Review: Rate limited. Waiting to retry...", c.UserMessage)

	c = Classify(errors.New("mcp rate limit hit"), StageResearch)
	assert.Equal(t, "Research: Microsoft Learn rate limited. Waiting to retry...", c.UserMessage)
}

func TestFailureKind_Retryable(t *testing.T) {
	assert.True(t, FailureTransport.Retryable())
	assert.True(t, FailureRateLimit.Retryable())
	for _, k := range []FailureKind{FailureToolSource, FailureValidation, FailureUnparsableReview, FailureCancelled, FailureFatal, FailureUnclassified} {
		assert.False(t, k.Retryable(), k.String())
	}
}

func TestStageError_Unwrap(t *testing.T) {
	inner := &agentapi.StatusError{StatusCode: 503}
	err := &StageError{Stage: StageWrite, Kind: FailureTransport, Err: inner}

	var se *agentapi.StatusError
	assert.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "write stage")
}
