package agentapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// doneSentinel terminates some streams instead of EOF.
const doneSentinel = "[DONE]"

// maxFrameSize bounds a single SSE line. Completed events repeat the whole
// output text, so the scanner default is too small.
const maxFrameSize = 4 << 20

// StreamEvent is one item delivered from a stream: a decoded event or a
// decode/read error.
type StreamEvent struct {
	Event Event
	Err   error
}

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter wrapping the given ResponseWriter.
// The ResponseWriter must implement http.Flusher for streaming to work;
// if it does not, writes will still succeed but may be buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{
		w:       w,
		flusher: f,
	}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// WriteEvent serializes v as JSON and writes it as one data frame, then
// flushes so the client receives it immediately.
func (sw *SSEWriter) WriteEvent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// ReadEvents reads SSE frames from body, decodes each into an Event, and
// delivers them on the returned channel. The channel is closed when the body
// is exhausted, a [DONE] frame arrives, a read error occurs, or ctx is
// cancelled. The body is closed when reading finishes.
//
// Framing rules:
//   - "data:" lines carry the payload; multiple lines in one frame are joined
//     with newlines.
//   - Lines starting with ":" are comments. "event:" and "id:" lines are
//     ignored because the payload carries its own type.
//   - An empty line ends a frame.
//   - A malformed payload yields a StreamEvent with Err set; reading continues.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
		var dataBuf strings.Builder

		flush := func() bool {
			if dataBuf.Len() == 0 {
				return true
			}
			payload := dataBuf.String()
			dataBuf.Reset()
			if strings.TrimSpace(payload) == doneSentinel {
				return false
			}
			return emit(ctx, ch, payload)
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					send(ctx, ch, StreamEvent{Err: fmt.Errorf("sse: read stream: %w", err)})
					return
				}
				flush()
				return
			}

			line := scanner.Text()

			switch {
			case line == "":
				if !flush() {
					return
				}

			case strings.HasPrefix(line, ":"):
				// Comment line.

			case strings.HasPrefix(line, "data:"):
				payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
				if dataBuf.Len() > 0 {
					dataBuf.WriteByte('\n')
				}
				dataBuf.WriteString(payload)

			default:
				// event:, id:, retry: and unknown fields.
			}
		}
	}()
	return ch
}

// emit decodes raw and sends it on ch. It reports false if ctx ended first.
func emit(ctx context.Context, ch chan<- StreamEvent, raw string) bool {
	ev, err := DecodeEvent([]byte(raw))
	if err != nil {
		return send(ctx, ch, StreamEvent{Err: err})
	}
	return send(ctx, ch, StreamEvent{Event: ev})
}

func send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
