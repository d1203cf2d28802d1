package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Compile-time interface checks.
var (
	_ Dialer  = (*HTTPDialer)(nil)
	_ Session = (*httpSession)(nil)
)

const (
	defaultConnectTimeout = 60 * time.Second
	maxErrorBody          = 4 << 10
)

// HTTPDialer opens sessions against the service's HTTP streaming endpoint.
type HTTPDialer struct {
	endpoint       string
	apiKey         string
	connectTimeout time.Duration
	client         *http.Client
	log            *zap.Logger
}

// DialerOption configures an HTTPDialer.
type DialerOption func(*HTTPDialer)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) DialerOption {
	return func(d *HTTPDialer) {
		d.apiKey = key
	}
}

// WithConnectTimeout bounds connection establishment. Reads are unbounded;
// stalls are detected per event by the caller.
func WithConnectTimeout(timeout time.Duration) DialerOption {
	return func(d *HTTPDialer) {
		d.connectTimeout = timeout
	}
}

// WithHTTPClient makes every session share hc instead of building its own
// transport.
func WithHTTPClient(hc *http.Client) DialerOption {
	return func(d *HTTPDialer) {
		d.client = hc
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) DialerOption {
	return func(d *HTTPDialer) {
		d.log = log
	}
}

// NewHTTPDialer creates a dialer for the service at endpoint.
func NewHTTPDialer(endpoint string, opts ...DialerOption) *HTTPDialer {
	d := &HTTPDialer{
		endpoint:       strings.TrimRight(endpoint, "/"),
		connectTimeout: defaultConnectTimeout,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open returns a session with its own connection pool.
func (d *HTTPDialer) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("agentapi: open session: %w", err)
	}
	client := d.client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   d.connectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   d.connectTimeout,
				ResponseHeaderTimeout: 10 * time.Minute,
				IdleConnTimeout:       2 * time.Minute,
				ForceAttemptHTTP2:     true,
			},
		}
	}
	return &httpSession{dialer: d, client: client}, nil
}

type httpSession struct {
	dialer *HTTPDialer
	client *http.Client
}

type agentReference struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type responseRequest struct {
	Input              string         `json:"input"`
	Stream             bool           `json:"stream"`
	Agent              agentReference `json:"agent"`
	PreviousResponseID string         `json:"previous_response_id,omitempty"`
	Conversation       string         `json:"conversation,omitempty"`
}

func newResponseRequest(req StreamRequest) responseRequest {
	body := responseRequest{
		Input:  req.Input,
		Stream: true,
		Agent: agentReference{
			Type:    "agent_reference",
			Name:    req.Agent.Name,
			Version: req.Agent.Version,
		},
	}
	// Conversation ids and response ids travel in different fields.
	switch token := req.ContinuationToken; {
	case token == "":
	case strings.HasPrefix(token, "conv_"):
		body.Conversation = token
	default:
		body.PreviousResponseID = token
	}
	return body
}

// OpenStream POSTs the request to {endpoint}/responses and returns the
// decoded event stream.
func (s *httpSession) OpenStream(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(newResponseRequest(req))
	if err != nil {
		return nil, fmt.Errorf("agentapi: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.dialer.endpoint+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("agentapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if s.dialer.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.dialer.apiKey)
	}

	s.dialer.log.Debug("agentapi: open stream",
		zap.String("agent", req.Agent.String()),
		zap.Int("input_chars", len(req.Input)),
		zap.Bool("continuation", req.ContinuationToken != ""),
	)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agentapi: send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return ReadEvents(ctx, resp.Body), nil
}

// Close drops idle connections held by the session.
func (s *httpSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
