package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
)

// chanSession serves one stream from a channel the test controls.
type chanSession struct {
	ch chan agentapi.StreamEvent
}

func (s *chanSession) OpenStream(context.Context, agentapi.StreamRequest) (<-chan agentapi.StreamEvent, error) {
	return s.ch, nil
}

func (s *chanSession) Close() error { return nil }

var testWriter = agentapi.AgentRef{Name: "writer", Version: "2"}

func TestRunner_RunStage_AccumulatesTextAndCapturesToken(t *testing.T) {
	session := newFakeSession(scriptedCall{events: []agentapi.Event{
		agentapi.Created{ResponseID: "resp_1", ConversationID: "conv_9"},
		agentapi.OutputTextDelta{Delta: "hello "},
		agentapi.OutputTextDelta{Delta: "world"},
		agentapi.Completed{},
	}})
	rec := &recorder{}
	r := NewRunner(session, rec, Timeouts{}, nil)

	out, err := r.RunStage(context.Background(), testWriter, StageWrite, "prompt", "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Text)
	assert.Equal(t, "conv_9", out.ContinuationToken)

	calls := session.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "prompt", calls[0].Input)
	assert.Equal(t, testWriter, calls[0].Agent)
	assert.NotEmpty(t, rec.all())
}

func TestRunner_RunStage_FallsBackToResponseID(t *testing.T) {
	session := newFakeSession(textCall("x", "resp_7"))
	r := NewRunner(session, nil, Timeouts{}, nil)

	out, err := r.RunStage(context.Background(), testWriter, StageWrite, "p", "")
	require.NoError(t, err)
	assert.Equal(t, "resp_7", out.ContinuationToken)
}

func TestRunner_RunStage_KeepsSuppliedToken(t *testing.T) {
	session := newFakeSession(textCall("x", "resp_new"))
	r := NewRunner(session, nil, Timeouts{}, nil)

	out, err := r.RunStage(context.Background(), testWriter, StageWrite, "p", "conv_old")
	require.NoError(t, err)
	assert.Equal(t, "conv_old", out.ContinuationToken)
	assert.Equal(t, "conv_old", session.calls()[0].ContinuationToken)
}

func TestRunner_RunStage_FailedEvent(t *testing.T) {
	session := newFakeSession(scriptedCall{events: []agentapi.Event{
		agentapi.Created{ResponseID: "r"},
		agentapi.Failed{Error: agentapi.APIError{Code: "rate_limit_exceeded", Message: "slow down", Status: 429}},
	}})
	rec := &recorder{}
	r := NewRunner(session, rec, Timeouts{}, nil)

	_, err := r.RunStage(context.Background(), testWriter, StageResearch, "p", "")
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageResearch, se.Stage)
	assert.Equal(t, FailureRateLimit, se.Kind)
	assert.Equal(t, 429, se.HTTPStatus)

	var failed *ResponseFailedError
	assert.ErrorAs(t, err, &failed)
	require.NotEmpty(t, rec.kinds(KindError))
}

func TestRunner_RunStage_OpenError(t *testing.T) {
	session := newFakeSession(unauthorized())
	r := NewRunner(session, nil, Timeouts{}, nil)

	_, err := r.RunStage(context.Background(), testWriter, StageWrite, "p", "")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, FailureFatal, se.Kind)
	assert.Equal(t, 401, se.HTTPStatus)
}

func TestRunner_RunStage_SkipsMalformedFrames(t *testing.T) {
	ch := make(chan agentapi.StreamEvent, 2)
	ch <- agentapi.StreamEvent{Err: fmt.Errorf("%w: bad json", agentapi.ErrMalformedEvent)}
	ch <- agentapi.StreamEvent{Event: agentapi.OutputTextDelta{Delta: "ok"}}
	close(ch)

	r := NewRunner(&chanSession{ch: ch}, nil, Timeouts{}, nil)
	out, err := r.RunStage(context.Background(), testWriter, StageWrite, "p", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
}

func TestRunner_RunStage_ReadErrorAborts(t *testing.T) {
	session := newFakeSession(scriptedCall{
		events:    []agentapi.Event{agentapi.OutputTextDelta{Delta: "partial"}},
		streamErr: errors.New("peer closed connection without sending complete message body"),
	})
	r := NewRunner(session, nil, Timeouts{}, nil)

	_, err := r.RunStage(context.Background(), testWriter, StageWrite, "p", "")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, FailureTransport, se.Kind)
	assert.True(t, se.Kind.Retryable())
}

func TestRunner_RunStage_IdleTimeout(t *testing.T) {
	ch := make(chan agentapi.StreamEvent)
	defer close(ch)
	r := NewRunner(&chanSession{ch: ch}, nil, Timeouts{StreamIdle: 20 * time.Millisecond}, nil)

	_, err := r.RunStage(context.Background(), testWriter, StageWrite, "p", "")
	var idle *IdleTimeoutError
	require.ErrorAs(t, err, &idle)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, FailureTransport, se.Kind)
}

func TestRunner_RunStage_ToolTimeout(t *testing.T) {
	ch := make(chan agentapi.StreamEvent, 1)
	defer close(ch)
	ch <- agentapi.StreamEvent{Event: agentapi.OutputItemAdded{Item: agentapi.Item{ItemType: "mcp_call", Name: "docs"}}}
	r := NewRunner(&chanSession{ch: ch}, nil, Timeouts{StreamIdle: time.Minute, ToolCall: 20 * time.Millisecond}, nil)

	_, err := r.RunStage(context.Background(), testWriter, StageResearch, "p", "")
	var tt *ToolTimeoutError
	require.ErrorAs(t, err, &tt)
	assert.Equal(t, "docs", tt.Tool)
	assert.True(t, Classify(err, StageResearch).Retryable)
}

func TestRunner_RunStage_ContextCancelled(t *testing.T) {
	ch := make(chan agentapi.StreamEvent)
	defer close(ch)
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(&chanSession{ch: ch}, nil, Timeouts{}, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.RunStage(ctx, testWriter, StageWrite, "p", "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, FailureCancelled, Classify(err, StageWrite).Kind)
}

func TestRunner_RunStage_IdleTimeoutClosesConnection(t *testing.T) {
	disconnected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"response.created\",\"response\":{\"id\":\"resp_1\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(disconnected)
	}))
	defer srv.Close()

	session, err := agentapi.NewHTTPDialer(srv.URL).Open(context.Background())
	require.NoError(t, err)
	defer session.Close()
	r := NewRunner(session, nil, Timeouts{StreamIdle: 100 * time.Millisecond}, nil)

	_, err = r.RunStage(context.Background(), testWriter, StageResearch, "p", "")
	var idle *IdleTimeoutError
	require.ErrorAs(t, err, &idle)

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("stream connection still open after the idle timeout")
	}
}
