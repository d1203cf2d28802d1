package orchestrator

import (
	"time"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
)

// AgentSet names the deployed agent for each stage.
type AgentSet struct {
	Researcher agentapi.AgentRef
	Writer     agentapi.AgentRef
	Reviewer   agentapi.AgentRef
}

// Policy bounds transient-failure retries for one stage.
type Policy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	// RateLimitBackoff is multiplied by the attempt number to get the wait
	// before retrying a rate-limited call.
	RateLimitBackoff time.Duration
}

// Backoff returns the wait before the retry that follows attempt (zero-based).
func (p Policy) Backoff(attempt int) time.Duration {
	return p.RateLimitBackoff * time.Duration(attempt+1)
}

// Timeouts bound waits inside a single stream.
type Timeouts struct {
	// StreamIdle is the longest gap allowed between two stream events.
	StreamIdle time.Duration

	// ToolCall is the longest a single tool call may run.
	ToolCall time.Duration
}

// Config holds runtime configuration for the pipeline.
type Config struct {
	Agents AgentSet

	// Research, Write, and Review bound transient retries per stage.
	Research Policy
	Write    Policy
	Review   Policy

	// StructureRetries bounds writer repairs inside the review loop.
	StructureRetries int

	Timeouts Timeouts

	// Diagnostic keeps raw prompts and responses in the result.
	Diagnostic bool
}

// DefaultConfig returns the standard retry and timeout settings.
func DefaultConfig() Config {
	return Config{
		Research:         Policy{MaxRetries: 3, RateLimitBackoff: 30 * time.Second},
		Write:            Policy{MaxRetries: 2, RateLimitBackoff: 30 * time.Second},
		Review:           Policy{MaxRetries: 2, RateLimitBackoff: 30 * time.Second},
		StructureRetries: 2,
		Timeouts: Timeouts{
			StreamIdle: 120 * time.Second,
			ToolCall:   90 * time.Second,
		},
	}
}

// policy returns the transient retry policy for a stage.
func (c Config) policy(s Stage) Policy {
	switch s {
	case StageResearch:
		return c.Research
	case StageWrite:
		return c.Write
	default:
		return c.Review
	}
}
