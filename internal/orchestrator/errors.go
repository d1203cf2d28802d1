package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
)

// ErrCancelled marks a run stopped by its cancel signal. It is a normal
// termination, reported separately from failures.
var ErrCancelled = errors.New("orchestrator: run cancelled")

// FailureKind is the error taxonomy used for retry decisions.
type FailureKind int

const (
	FailureUnclassified FailureKind = iota
	FailureTransport
	FailureRateLimit
	FailureToolSource
	FailureValidation
	FailureUnparsableReview
	FailureCancelled
	FailureFatal
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "timeout"
	case FailureRateLimit:
		return "rate_limit"
	case FailureToolSource:
		return "tool_source"
	case FailureValidation:
		return "validation"
	case FailureUnparsableReview:
		return "reviewer_unparsable"
	case FailureCancelled:
		return "cancelled"
	case FailureFatal:
		return "fatal"
	default:
		return "unclassified"
	}
}

// Retryable reports whether a stage failing this way may be attempted again.
func (k FailureKind) Retryable() bool {
	return k == FailureTransport || k == FailureRateLimit
}

// User guidance attached to classified failures.
const (
	HintAuth         = "Check the API key configured for the agent service."
	HintPermission   = "Check that the credentials may invoke the configured agents."
	HintNotFound     = "Check that the researcher, writer, and reviewer agents exist with the configured names."
	HintRateLimit    = "Wait a few minutes and try again."
	HintTimeout      = "Try again with shorter input, or check your network connection."
	HintConnection   = "Check your network connection and verify the endpoint is correct."
	HintServiceError = "This is usually temporary. Try again in a moment."
)

// StageError is a failure scoped to one stage call.
type StageError struct {
	Stage      Stage
	Kind       FailureKind
	HTTPStatus int
	Code       string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ToolTimeoutError reports a tool call that started and never finished.
type ToolTimeoutError struct {
	Tool    string
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %s (limit %s)", e.Tool, e.Elapsed.Round(time.Millisecond), e.Limit)
}

// IdleTimeoutError reports a stream that went quiet for too long.
type IdleTimeoutError struct {
	Limit     time.Duration
	LastEvent string
}

func (e *IdleTimeoutError) Error() string {
	last := e.LastEvent
	if last == "" {
		last = "start"
	}
	return fmt.Sprintf("stream idle timeout: no events for %s after %q", e.Limit, last)
}

// ResponseFailedError carries a response.failed event's error.
type ResponseFailedError struct {
	agentapi.APIError
}

func (e *ResponseFailedError) Error() string {
	return "response failed: " + e.APIError.String()
}

// Classification is the retry and messaging verdict for one failure.
type Classification struct {
	Kind        FailureKind
	HTTPStatus  int
	Code        string
	Retryable   bool
	UserMessage string
	Hint        string
}

// ---------------------------------------------------------------------------
// Substring rules
// ---------------------------------------------------------------------------

var (
	timeoutTerms   = []string{"timeout", "timed out", "connection", "peer closed", "incomplete chunked"}
	rateLimitTerms = []string{"429", "too many requests", "rate limit"}
	toolTerms      = []string{"mcp", "bing", "learn.microsoft.com"}

	// Error events in the stream are labelled with a narrower set.
	eventTimeoutTerms   = []string{"timeout", "timed out", "connection"}
	eventRateLimitTerms = []string{"429", "too many requests"}
)

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// errorTypeForText labels an error message for an error ProgressEvent.
// Timeout terms win over everything else.
func errorTypeForText(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, eventTimeoutTerms):
		return ErrorTypeTimeout
	case containsAny(lower, eventRateLimitTerms):
		return ErrorTypeRateLimit
	default:
		return ErrorTypeTool
	}
}

// ---------------------------------------------------------------------------
// Structured extraction
// ---------------------------------------------------------------------------

var (
	statusPatterns = []*regexp.Regexp{
		regexp.MustCompile(`status[_\s]?code[:=\s]+(\d{3})`),
		regexp.MustCompile(`http[_\s]?(\d{3})`),
		regexp.MustCompile(`status\s+(\d{3})`),
		regexp.MustCompile(`returned\s+(\d{3})`),
		regexp.MustCompile(`error\s+(\d{3})`),
		regexp.MustCompile(`\b([45]\d{2})\b`),
	}
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"code"[:\s]*"([^"]+)"`),
		regexp.MustCompile(`'code'[:\s]*'([^']+)'`),
		regexp.MustCompile(`error_code[=:\s]+([a-z_]+)`),
		regexp.MustCompile(`code[=:\s]+([a-z_]+)`),
	}
)

// extractHTTPStatus finds a 4xx/5xx status in error text.
func extractHTTPStatus(lower string) int {
	for _, re := range statusPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			if code, err := strconv.Atoi(m[1]); err == nil && code >= 400 && code <= 599 {
				return code
			}
		}
	}
	return 0
}

// extractAPICode finds a service error code in error text.
func extractAPICode(lower string) string {
	for _, re := range codePatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			return m[1]
		}
	}
	return ""
}

type statusRule struct {
	message string
	kind    FailureKind
	hint    string
}

var httpStatusRules = map[int]statusRule{
	401: {"Authentication failed.", FailureFatal, HintAuth},
	403: {"Permission denied.", FailureFatal, HintPermission},
	404: {"Agent or resource not found.", FailureFatal, HintNotFound},
	429: {"Rate limited. Waiting to retry...", FailureRateLimit, HintRateLimit},
	500: {"Agent service error. Retrying...", FailureTransport, HintServiceError},
	502: {"Agent service gateway error. Retrying...", FailureTransport, HintServiceError},
	503: {"Agent service temporarily unavailable. Retrying...", FailureTransport, HintRateLimit},
	504: {"Agent service gateway timed out. Retrying...", FailureTransport, HintTimeout},
}

var apiCodeRules = map[string]statusRule{
	"rate_limit_exceeded":     {"Rate limited. Waiting to retry...", FailureRateLimit, HintRateLimit},
	"too_many_requests":       {"Too many requests. Waiting to retry...", FailureRateLimit, HintRateLimit},
	"server_error":            {"Agent service error. Retrying...", FailureTransport, HintServiceError},
	"internal_error":          {"Internal service error. Retrying...", FailureTransport, HintServiceError},
	"service_unavailable":     {"Service temporarily unavailable. Retrying...", FailureTransport, HintServiceError},
	"timeout":                 {"Request timed out. Retrying...", FailureTransport, HintTimeout},
	"vector_store_timeout":    {"Search timed out. Retrying...", FailureTransport, HintTimeout},
	"tool_error":              {"Tool call failed.", FailureToolSource, HintServiceError},
	"invalid_prompt":          {"Input could not be processed. Try simplifying.", FailureFatal, ""},
	"invalid_request":         {"Invalid request format.", FailureFatal, ""},
	"context_length_exceeded": {"Input too long. Try shorter notes.", FailureFatal, ""},
	"content_filter":          {"Content was filtered. Review input for policy violations.", FailureFatal, ""},
}

type phraseRule struct {
	terms   []string
	message string
	hint    string
}

var fatalPhraseRules = []phraseRule{
	{[]string{"unauthorized", "authentication failed", "invalid credentials", "invalid api key"}, "Authentication failed.", HintAuth},
	{[]string{"forbidden", "permission denied", "access denied"}, "Permission denied.", HintPermission},
	{[]string{"not found", "does not exist"}, "Agent or resource not found.", HintNotFound},
	{[]string{"quota exceeded", "quota limit", "exceeded quota"}, "Quota exceeded. Check your subscription limits.", HintRateLimit},
}

// ---------------------------------------------------------------------------
// Classify
// ---------------------------------------------------------------------------

// Classify turns a stage failure into a retry verdict and a user-facing
// message. Order: cancellation, typed timeouts, timeout text, rate limits,
// HTTP status, service error code, tool sources, known fatal phrases.
func Classify(err error, stage Stage) Classification {
	if err == nil {
		return Classification{}
	}
	name := stage.Title()

	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return Classification{Kind: FailureCancelled, UserMessage: name + ": Cancelled."}
	}

	lower := strings.ToLower(err.Error())
	c := Classification{HTTPStatus: extractHTTPStatus(lower), Code: extractAPICode(lower)}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		if stageErr.HTTPStatus != 0 {
			c.HTTPStatus = stageErr.HTTPStatus
		}
		if stageErr.Code != "" {
			c.Code = stageErr.Code
		}
	}
	var failed *ResponseFailedError
	if errors.As(err, &failed) {
		if failed.Status != 0 {
			c.HTTPStatus = failed.Status
		}
		if failed.Code != "" {
			c.Code = strings.ToLower(failed.Code)
		}
	}
	var statusErr *agentapi.StatusError
	if errors.As(err, &statusErr) {
		c.HTTPStatus = statusErr.StatusCode
	}

	var toolTimeout *ToolTimeoutError
	var idle *IdleTimeoutError
	var netErr net.Error
	switch {
	case errors.As(err, &toolTimeout):
		return c.with(FailureTransport,
			fmt.Sprintf("%s: %s timed out after %s. Retrying...", name, toolTimeout.Tool, toolTimeout.Elapsed.Round(time.Second)),
			HintTimeout)
	case errors.As(err, &idle):
		return c.with(FailureTransport,
			fmt.Sprintf("%s: Connection stalled (no response for %s). Retrying...", name, idle.Limit),
			HintTimeout)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return c.with(FailureTransport, name+" agent timed out. Retrying...", HintTimeout)
	case containsAny(lower, timeoutTerms):
		hint := HintTimeout
		if strings.Contains(lower, "connection") && !strings.Contains(lower, "timeout") {
			hint = HintConnection
		}
		return c.with(FailureTransport, name+" agent timed out. Retrying...", hint)
	case c.HTTPStatus == 429 || containsAny(lower, rateLimitTerms) || apiCodeRules[c.Code].kind == FailureRateLimit:
		msg := name + ": Rate limited. Waiting to retry..."
		if strings.Contains(lower, "mcp") {
			msg = name + ": Microsoft Learn rate limited. Waiting to retry..."
		}
		return c.with(FailureRateLimit, msg, HintRateLimit)
	}

	if rule, ok := httpStatusRules[c.HTTPStatus]; ok {
		return c.with(rule.kind, name+": "+rule.message, rule.hint)
	}
	if rule, ok := apiCodeRules[c.Code]; ok {
		return c.with(rule.kind, name+": "+rule.message, rule.hint)
	}

	if containsAny(lower, toolTerms) {
		msg := name + ": Tool error."
		switch {
		case strings.Contains(lower, "mcp"), strings.Contains(lower, "learn.microsoft.com"):
			msg = name + ": Microsoft Learn error."
		case strings.Contains(lower, "bing"):
			msg = name + ": Bing search error."
		}
		return c.with(FailureToolSource, msg, HintServiceError)
	}

	for _, rule := range fatalPhraseRules {
		if containsAny(lower, rule.terms) {
			return c.with(FailureFatal, name+": "+rule.message, rule.hint)
		}
	}

	return c.with(FailureFatal, name+" failed unexpectedly. Please try again.", "")
}

func (c Classification) with(kind FailureKind, message, hint string) Classification {
	c.Kind = kind
	c.Retryable = kind.Retryable()
	c.UserMessage = message
	c.Hint = hint
	return c
}
