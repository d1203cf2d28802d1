// Package agentapi is the client for the remote Agent Inference Service:
// submit a prompt to a deployed agent and receive a stream of typed events.
package agentapi

import (
	"context"
	"fmt"
	"strings"
)

// AgentRef names a deployed agent configuration.
type AgentRef struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

func (a AgentRef) String() string {
	if a.Version == "" {
		return a.Name
	}
	return a.Name + "@" + a.Version
}

// StreamRequest is one streaming inference call.
type StreamRequest struct {
	Agent AgentRef
	Input string
	// ContinuationToken resumes an earlier conversation. Empty starts fresh.
	ContinuationToken string
}

// Session is a connection scope to the service. A session belongs to exactly
// one pipeline run and is closed when the run ends.
type Session interface {
	// OpenStream starts a streaming call. The returned channel is closed when
	// the stream ends; transport failures arrive as StreamEvent.Err.
	OpenStream(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error)

	// Close releases the session's connections.
	Close() error
}

// Dialer opens sessions. Each call returns an independent session.
type Dialer interface {
	Open(ctx context.Context) (Session, error)
}

// StatusError is returned when the service rejects a stream request.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("agentapi: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("agentapi: HTTP %d: %s", e.StatusCode, body)
}
