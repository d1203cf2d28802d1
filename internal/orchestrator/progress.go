package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventKind classifies a ProgressEvent.
type EventKind string

const (
	KindStatus           EventKind = "status"
	KindTool             EventKind = "tool"
	KindProgress         EventKind = "progress"
	KindError            EventKind = "error"
	KindStageStart       EventKind = "stage_start"
	KindStageComplete    EventKind = "stage_complete"
	KindPipelineComplete EventKind = "pipeline_complete"
	KindCancelled        EventKind = "cancelled"
)

// Status values carried by status and tool events.
const (
	StatusInProgress = "in_progress"
	StatusRunning    = "running"
	StatusCompleted  = "completed"
)

// Error types attached to error events.
const (
	ErrorTypeRateLimit = "rate_limit"
	ErrorTypeTimeout   = "timeout"
	ErrorTypeTool      = "tool_error"
)

// ProgressEvent is a normalized, one-way notification for the consumer.
type ProgressEvent struct {
	Kind      EventKind     `json:"type"`
	Stage     Stage         `json:"stage"`
	Message   string        `json:"message"`
	Icon      string        `json:"icon,omitempty"`
	Status    string        `json:"status,omitempty"`
	ToolType  string        `json:"toolType,omitempty"`
	ToolName  string        `json:"toolName,omitempty"`
	ErrorType string        `json:"errorType,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
	Fatal     bool          `json:"fatal,omitempty"`
	Hint      string        `json:"hint,omitempty"`
	Issues    []string      `json:"issues,omitempty"`
	Chars     int           `json:"chars,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
}

// Sink receives progress events in emission order.
type Sink interface {
	Emit(ProgressEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ProgressEvent)

// Emit calls f.
func (f SinkFunc) Emit(ev ProgressEvent) { f(ev) }

// discard drops everything.
var discard = SinkFunc(func(ProgressEvent) {})

// DefaultProgressBuffer is the reporter's channel capacity.
const DefaultProgressBuffer = 256

// DefaultStallTimeout is how long Emit waits on a full buffer before the
// reader is treated as gone.
const DefaultStallTimeout = 10 * time.Second

// ProgressReporter delivers events from one writer (the run's worker) to one
// reader through a bounded channel. Closing the channel marks the end of the
// stream.
type ProgressReporter struct {
	ch       chan ProgressEvent
	detached chan struct{}
	stall    time.Duration

	mu         sync.Mutex
	closed     bool
	detachOnce sync.Once
}

// NewProgressReporter creates a ProgressReporter with the given buffer size.
// A size <= 0 uses DefaultProgressBuffer.
func NewProgressReporter(size int) *ProgressReporter {
	if size <= 0 {
		size = DefaultProgressBuffer
	}
	return &ProgressReporter{
		ch:       make(chan ProgressEvent, size),
		detached: make(chan struct{}),
		stall:    DefaultStallTimeout,
	}
}

// Emit queues an event in order. When the buffer is full Emit waits for the
// reader for at most the stall timeout, then detaches it and drops this and
// every later event. After Detach or Close, Emit returns immediately.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	select {
	case pr.ch <- event:
		return
	case <-pr.detached:
		return
	default:
	}

	timer := time.NewTimer(pr.stall)
	defer timer.Stop()
	select {
	case pr.ch <- event:
	case <-pr.detached:
	case <-timer.C:
		pr.Detach()
	}
}

// Subscribe returns a read-only channel for consuming progress events. The
// channel is closed after the last event.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Detach is called by the reader when it stops reading, so the writer never
// blocks on an abandoned stream.
func (pr *ProgressReporter) Detach() {
	pr.detachOnce.Do(func() { close(pr.detached) })
}

// Close ends the stream. It is safe to call more than once.
func (pr *ProgressReporter) Close() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.closed {
		return
	}
	pr.closed = true
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Kind {
	case KindStageStart:
		return fmt.Sprintf("● %s", event.Message)
	case KindStageComplete:
		return fmt.Sprintf("✓ %s", event.Message)
	case KindTool:
		if event.Status == StatusCompleted {
			return fmt.Sprintf("  ✓ %s", event.Message)
		}
		return fmt.Sprintf("  ○ %s", event.Message)
	case KindError:
		line := fmt.Sprintf("  ✗ %s", event.Message)
		if event.Hint != "" {
			line += " (" + event.Hint + ")"
		}
		return line
	case KindPipelineComplete:
		return fmt.Sprintf("✓ %s", event.Message)
	case KindCancelled:
		return fmt.Sprintf("✗ %s", event.Message)
	default:
		line := "  " + event.Message
		if len(event.Issues) > 0 {
			line += "\n    - " + strings.Join(event.Issues, "\n    - ")
		}
		return line
	}
}
