package agentapi

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
			return out
		}
	}
}

func TestSSEWriter_WritesDataFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)
	w.Init()

	require.NoError(t, w.WriteEvent(map[string]string{"type": "keepalive"}))
	require.NoError(t, w.WriteEvent(map[string]any{"type": "status", "data": map[string]string{"stage": "research"}}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, 2)
	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: {"), "frame: %s", frame)
	}
}

func TestReadEvents_ParsesFrames(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		fmt.Fprint(pw, ": keep the proxy happy\n")
		fmt.Fprint(pw, "event: response.created\n")
		fmt.Fprint(pw, "data: {\"type\":\"response.created\",\"response\":{\"id\":\"resp_1\"}}\n\n")
		fmt.Fprint(pw, "data:{\"type\":\"response.output_text.delta\",\"delta\":\"abc\"}\n\n")
		fmt.Fprint(pw, "data: {\"type\":\"response.completed\",\n")
		fmt.Fprint(pw, "data: \"response\":{\"output_text\":\"abc\"}}\n\n")
	}()

	events := collect(t, ReadEvents(context.Background(), pr))

	require.Len(t, events, 3)
	for _, ev := range events {
		require.NoError(t, ev.Err)
	}
	assert.Equal(t, Created{ResponseID: "resp_1"}, events[0].Event)
	assert.Equal(t, OutputTextDelta{Delta: "abc"}, events[1].Event)
	assert.Equal(t, Completed{FinalText: "abc"}, events[2].Event)
}

func TestReadEvents_MalformedFrameContinues(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {not json}\n\n" +
			"data: {\"type\":\"response.in_progress\"}\n\n",
	))

	events := collect(t, ReadEvents(context.Background(), body))

	require.Len(t, events, 2)
	assert.Error(t, events[0].Err)
	assert.Equal(t, InProgress{}, events[1].Event)
}

func TestReadEvents_DoneSentinelEndsStream(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {\"type\":\"response.in_progress\"}\n\n" +
			"data: [DONE]\n\n" +
			"data: {\"type\":\"response.in_progress\"}\n\n",
	))

	events := collect(t, ReadEvents(context.Background(), body))
	assert.Len(t, events, 1)
}

func TestReadEvents_TrailingFrameWithoutBlankLine(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"type\":\"response.completed\"}"))

	events := collect(t, ReadEvents(context.Background(), body))

	require.Len(t, events, 1)
	assert.Equal(t, Completed{}, events[0].Event)
}

func TestReadEvents_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := ReadEvents(ctx, pr)

	go func() {
		fmt.Fprint(pw, "data: {\"type\":\"response.in_progress\"}\n\n")
	}()
	cancel()
	// Unblock the scanner so the goroutine observes cancellation.
	pw.CloseWithError(context.Canceled)

	collect(t, ch)
}
