package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// ErrSessionNotFound is returned for an unknown thread ID.
var ErrSessionNotFound = errors.New("session not found")

// Session is the state a follow-up run needs from the run before it.
type Session struct {
	ThreadID  string
	Notes     string
	TSG       string
	Questions string
	Research  string
	Review    *tsg.Review
	UpdatedAt time.Time
}

// SessionStore is a concurrency-safe in-memory store of sessions keyed by
// thread ID, with a slice keeping insertion order for listing.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	now      func() time.Time
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		order:    make([]string, 0),
		now:      time.Now,
	}
}

// Put stores s, replacing any session with the same thread ID.
func (st *SessionStore) Put(s Session) error {
	if s.ThreadID == "" {
		return fmt.Errorf("session: thread ID is required")
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	s.UpdatedAt = st.now()
	if _, exists := st.sessions[s.ThreadID]; !exists {
		st.order = append(st.order, s.ThreadID)
	}
	st.sessions[s.ThreadID] = &s
	return nil
}

// Get returns a copy of the session with the given thread ID.
func (st *SessionStore) Get(threadID string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrSessionNotFound)
	}
	return copySession(s), nil
}

// Delete removes a session.
func (st *SessionStore) Delete(threadID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[threadID]; !ok {
		return fmt.Errorf("thread %q: %w", threadID, ErrSessionNotFound)
	}
	delete(st.sessions, threadID)
	for i, id := range st.order {
		if id == threadID {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns copies of all sessions in insertion order.
func (st *SessionStore) List() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Session, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *copySession(st.sessions[id]))
	}
	return out
}

func copySession(src *Session) *Session {
	dst := *src
	if src.Review != nil {
		r := *src.Review
		r.StructureIssues = append([]string(nil), src.Review.StructureIssues...)
		r.AccuracyIssues = append([]string(nil), src.Review.AccuracyIssues...)
		r.CompletenessIssues = append([]string(nil), src.Review.CompletenessIssues...)
		r.FormatIssues = append([]string(nil), src.Review.FormatIssues...)
		r.Suggestions = append([]string(nil), src.Review.Suggestions...)
		if src.Review.CorrectedTSG != nil {
			c := *src.Review.CorrectedTSG
			r.CorrectedTSG = &c
		}
		dst.Review = &r
	}
	return &dst
}
