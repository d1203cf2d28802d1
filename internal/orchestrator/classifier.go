package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
)

// progressEvery is the approximate number of characters between progress
// events while text streams in.
const progressEvery = 500

// thinkingThreshold is how long after a tool finishes before in-progress
// messages start reporting model processing time.
const thinkingThreshold = 2 * time.Second

// Timing is the per-stage timing state threaded through ClassifyEvent by the
// stage runner. The zero value is a fresh stage.
type Timing struct {
	StageStart time.Time
	ToolStart  time.Time
	ToolEnd    time.Time
	ToolName   string
}

// ToolRunning reports whether a tool call has started and not finished.
func (t *Timing) ToolRunning() bool {
	return !t.ToolStart.IsZero()
}

// TextBuffer accumulates a stage's output text.
type TextBuffer struct {
	b strings.Builder
}

// Append adds a fragment.
func (tb *TextBuffer) Append(s string) { tb.b.WriteString(s) }

// Replace discards accumulated text in favor of s.
func (tb *TextBuffer) Replace(s string) {
	tb.b.Reset()
	tb.b.WriteString(s)
}

// Len returns the accumulated length in bytes.
func (tb *TextBuffer) Len() int { return tb.b.Len() }

func (tb *TextBuffer) String() string { return tb.b.String() }

// ClassifyEvent maps one stream event to zero or more progress events. It
// appends generated text to buf and updates timing; the result depends only
// on its arguments.
func ClassifyEvent(ev agentapi.Event, stage Stage, buf *TextBuffer, timing *Timing, now time.Time) []ProgressEvent {
	title, icon := stage.Title(), stage.Icon()

	status := func(st, msg string) ProgressEvent {
		return ProgressEvent{Kind: KindStatus, Stage: stage, Status: st, Icon: icon, Message: msg}
	}

	switch e := ev.(type) {
	case agentapi.Created:
		timing.StageStart = now
		return []ProgressEvent{status(StatusInProgress, fmt.Sprintf("%s %s: Processing...", icon, title))}

	case agentapi.InProgress:
		thinking := ""
		if !timing.ToolEnd.IsZero() {
			if d := now.Sub(timing.ToolEnd); d > thinkingThreshold {
				thinking = fmt.Sprintf(" (%.0fs model processing)", d.Seconds())
			}
		}
		return []ProgressEvent{status(StatusInProgress, fmt.Sprintf("%s %s: Model working...%s", icon, title, thinking))}

	case agentapi.OutputTextDelta:
		if e.Delta == "" {
			return nil
		}
		buf.Append(e.Delta)
		total := buf.Len()
		if total%progressEvery >= len(e.Delta) {
			return nil
		}
		return []ProgressEvent{{
			Kind:    KindProgress,
			Stage:   stage,
			Icon:    icon,
			Message: fmt.Sprintf("%s %s: Writing response... (%d chars)", icon, title, total),
			Chars:   total,
		}}

	case agentapi.OutputItemAdded:
		return itemStarted(e.Item, stage, timing, now, status)

	case agentapi.OutputItemDone:
		return itemFinished(e.Item, stage, timing, now, status)

	case agentapi.Completed:
		if e.FinalText != "" {
			buf.Replace(e.FinalText)
		}
		return []ProgressEvent{{
			Kind:    KindStatus,
			Stage:   stage,
			Status:  StatusCompleted,
			Icon:    "✅",
			Message: fmt.Sprintf("✅ %s: Complete", title),
		}}

	case agentapi.Failed:
		return []ProgressEvent{errorEvent(stage, e.Error.String())}

	case agentapi.ErrorEvent:
		return []ProgressEvent{errorEvent(stage, e.APIError.String())}

	case agentapi.Unrecognized:
		return []ProgressEvent{status(StatusInProgress, fmt.Sprintf("%s %s: Received %s", icon, title, e.RawType))}
	}

	return []ProgressEvent{status(StatusInProgress, fmt.Sprintf("%s %s: Received %s", icon, title, ev.Type()))}
}

func toolLabel(it agentapi.Item) (toolType, name, icon string) {
	switch it.Kind() {
	case agentapi.ItemDocSearch:
		name = it.Name
		if name == "" {
			name = "Microsoft Learn"
			if it.ItemType == "file_search_call" {
				name = "File Search"
			}
		}
		return "mcp", name, "📚"
	case agentapi.ItemWebSearch:
		return "web_search", "Web Search", "🌐"
	default:
		name = it.Name
		if name == "" {
			name = "function"
		}
		return "function", name, "⚙️"
	}
}

func itemStarted(it agentapi.Item, stage Stage, timing *Timing, now time.Time, status func(string, string) ProgressEvent) []ProgressEvent {
	title, icon := stage.Title(), stage.Icon()

	switch it.Kind() {
	case agentapi.ItemMessage:
		return []ProgressEvent{status(StatusInProgress, fmt.Sprintf("%s %s: Generating response...", icon, title))}
	case agentapi.ItemOther:
		return []ProgressEvent{status(StatusInProgress, fmt.Sprintf("%s %s: Processing (%s)...", icon, title, it.ItemType))}
	}

	toolType, name, toolIcon := toolLabel(it)
	timing.ToolStart = now
	timing.ToolName = name

	msg := fmt.Sprintf("%s Calling %s...", toolIcon, name)
	if it.Kind() == agentapi.ItemWebSearch {
		msg = fmt.Sprintf("%s Web Search", toolIcon)
		if q := it.Query; q != "" {
			if r := []rune(q); len(r) > 50 {
				q = string(r[:50]) + "..."
			}
			msg += ": " + q
		}
	}
	return []ProgressEvent{{
		Kind:     KindTool,
		Stage:    stage,
		Status:   StatusRunning,
		Icon:     toolIcon,
		ToolType: toolType,
		ToolName: name,
		Message:  msg,
	}}
}

func itemFinished(it agentapi.Item, stage Stage, timing *Timing, now time.Time, status func(string, string) ProgressEvent) []ProgressEvent {
	var elapsed time.Duration
	if timing.ToolRunning() {
		elapsed = now.Sub(timing.ToolStart)
		timing.ToolEnd = now
		timing.ToolStart = time.Time{}
		timing.ToolName = ""
	}

	var out []ProgressEvent
	if it.IsTool() {
		toolType, name, _ := toolLabel(it)
		msg := fmt.Sprintf("✅ %s complete", name)
		if elapsed > 0 {
			msg += fmt.Sprintf(" (%.1fs)", elapsed.Seconds())
		}
		out = append(out, ProgressEvent{
			Kind:     KindTool,
			Stage:    stage,
			Status:   StatusCompleted,
			Icon:     "✅",
			ToolType: toolType,
			ToolName: name,
			Message:  msg,
			Elapsed:  elapsed,
		})
		if it.Kind() != agentapi.ItemFunction {
			out = append(out, status(StatusInProgress,
				fmt.Sprintf("%s %s: Processing search results...", stage.Icon(), stage.Title())))
		}
	}

	if it.Failed() {
		detail := it.Error
		if detail == "" {
			detail = "unknown"
		}
		out = append(out, errorEvent(stage, detail))
	}
	return out
}

// errorEvent labels error text by substring. Rate limits and timeouts are
// marked retryable; everything else is fatal by default. The retry layer makes
// the actual decision.
func errorEvent(stage Stage, text string) ProgressEvent {
	errType := errorTypeForText(text)
	retryable := errType == ErrorTypeRateLimit || errType == ErrorTypeTimeout
	icon := "❌"
	if retryable {
		icon = "⏳"
	}
	return ProgressEvent{
		Kind:      KindError,
		Stage:     stage,
		Icon:      icon,
		Message:   fmt.Sprintf("%s %s: %s", icon, stage.Title(), text),
		ErrorType: errType,
		Retryable: retryable,
		Fatal:     !retryable,
		Hint:      Classify(errors.New(text), stage).Hint,
	}
}
