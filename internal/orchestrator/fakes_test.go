package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// scriptedCall is the canned reply to one OpenStream call.
type scriptedCall struct {
	events    []agentapi.Event
	openErr   error
	streamErr error
}

// fakeSession replays scripted calls in order and records every request.
type fakeSession struct {
	mu       sync.Mutex
	script   []scriptedCall
	requests []agentapi.StreamRequest
	closed   bool
}

func newFakeSession(calls ...scriptedCall) *fakeSession {
	return &fakeSession{script: calls}
}

func (s *fakeSession) OpenStream(_ context.Context, req agentapi.StreamRequest) (<-chan agentapi.StreamEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.script) == 0 {
		return nil, errors.New("fake: unexpected stream call")
	}
	call := s.script[0]
	s.script = s.script[1:]
	if call.openErr != nil {
		return nil, call.openErr
	}

	ch := make(chan agentapi.StreamEvent, len(call.events)+1)
	for _, ev := range call.events {
		ch <- agentapi.StreamEvent{Event: ev}
	}
	if call.streamErr != nil {
		ch <- agentapi.StreamEvent{Err: call.streamErr}
	}
	close(ch)
	return ch, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) calls() []agentapi.StreamRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agentapi.StreamRequest(nil), s.requests...)
}

// fakeDialer hands out one session.
type fakeDialer struct {
	session *fakeSession
	err     error
	opened  int
}

func (d *fakeDialer) Open(context.Context) (agentapi.Session, error) {
	d.opened++
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

// textCall is a successful stream producing text.
func textCall(text, responseID string) scriptedCall {
	return scriptedCall{events: []agentapi.Event{
		agentapi.Created{ResponseID: responseID},
		agentapi.InProgress{},
		agentapi.OutputTextDelta{Delta: text},
		agentapi.Completed{},
	}}
}

func rateLimited() scriptedCall {
	return scriptedCall{openErr: &agentapi.StatusError{StatusCode: 429, Body: "Too Many Requests"}}
}

func unauthorized() scriptedCall {
	return scriptedCall{openErr: &agentapi.StatusError{StatusCode: 401, Body: "invalid api key"}}
}

// validDraft returns writer output that passes structural validation.
func validDraft(title string) string {
	var b strings.Builder
	b.WriteString(tsg.TSGBegin + "\n")
	b.WriteString(tsg.RequiredTOC + "\n\n")
	for _, h := range tsg.RequiredHeadings {
		b.WriteString(h + "\n")
		if h == tsg.RequiredHeadings[0] {
			b.WriteString(title + "\n")
		}
		if h == "# **Diagnosis**" {
			b.WriteString(tsg.RequiredDiagnosisLine + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(tsg.TSGEnd + "\n\n")
	b.WriteString(tsg.QuestionsBegin + "\n" + tsg.NoMissing + "\n" + tsg.QuestionsEnd + "\n")
	return b.String()
}

// brokenDraft is missing the closing questions marker.
func brokenDraft(title string) string {
	return strings.Replace(validDraft(title), tsg.QuestionsEnd, "", 1)
}

// recorder collects progress events.
type recorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recorder) Emit(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...)
}

func (r *recorder) kinds(k EventKind) []ProgressEvent {
	var out []ProgressEvent
	for _, ev := range r.all() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// sleepRecorder is a Sleeper that records requested waits without sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Agents = AgentSet{
		Researcher: agentapi.AgentRef{Name: "researcher"},
		Writer:     agentapi.AgentRef{Name: "writer"},
		Reviewer:   agentapi.AgentRef{Name: "reviewer"},
	}
	return cfg
}
