// Package client is a typed HTTP client for the Human Pages collaborator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// DefaultHTTPTimeout bounds each call, retries included.
const DefaultHTTPTimeout = 15 * time.Second

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
	userAgent       = "humanpages-mcp/1.0"
)

// Credentials are passed explicitly on every call and never cached.
type Credentials struct {
	AgentKey     string
	PaymentProof string
	HumanKey     string
	AdminKey     string
}

// APIError is a failure reported by the collaborator. Its code and message
// are passed through unchanged.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       hiring.Code    `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the protocol error so hiring.CodeOf and errors.As see it.
func (e *APIError) Unwrap() error {
	return &hiring.Error{Code: e.Code, Message: e.Message, Details: e.Details}
}

// Client wraps the HTTP interactions with the collaborator REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry sets how often reads are attempted and the initial backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// New instantiates a client for the API rooted at rawURL.
func New(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{},
		timeout:    DefaultHTTPTimeout,
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// call is one REST request description.
type call struct {
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
}

func (c *Client) do(ctx context.Context, rc call, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload []byte
	if rc.body != nil {
		b, err := json.Marshal(rc.body)
		if err != nil {
			return hiring.Errorf(hiring.CodeInvalidInput, "encode request: %v", err)
		}
		payload = b
	}

	attempts := 1
	if rc.method == http.MethodGet {
		attempts = c.attempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := c.backoff << (i - 1)
			select {
			case <-ctx.Done():
				return transportErr(ctx, lastErr)
			case <-time.After(wait):
			}
		}
		retry, err := c.once(ctx, rc, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

// once performs a single attempt and reports whether a failure is retryable.
func (c *Client) once(ctx context.Context, rc call, payload []byte, out any) (bool, error) {
	target := c.baseURL.String() + rc.path
	if len(rc.query) > 0 {
		target += "?" + rc.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, rc.method, target, body)
	if err != nil {
		return false, hiring.Errorf(hiring.CodeInvalidInput, "build request: %v", err)
	}
	for k, vs := range rc.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, transportErr(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ctx.Err() == nil, transportErr(ctx, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode >= http.StatusInternalServerError, decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, hiring.Errorf(hiring.CodeBadUpstreamResponse, "decode %s %s response: %v", rc.method, rc.path, err)
	}
	return false, nil
}

func transportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return hiring.Errorf(hiring.CodeUpstreamTimeout, "collaborator did not answer in time")
	}
	if err == nil {
		err = ctx.Err()
	}
	if e, ok := hiring.AsError(err); ok {
		return e
	}
	return hiring.Errorf(hiring.CodeUpstreamUnavailable, "collaborator unreachable: %v", err)
}

func decodeAPIError(status int, data []byte) error {
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil && env.Error.Code != "" {
		env.Error.StatusCode = status
		return env.Error
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Code: hiring.CodeBadUpstreamResponse, Message: fmt.Sprintf("unexpected %d response: %s", status, msg)}
}

func segment(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", hiring.Invalid(field, "%s is required", field)
	}
	return url.PathEscape(v), nil
}

func agentHeader(cr Credentials) (http.Header, error) {
	if strings.TrimSpace(cr.AgentKey) == "" {
		return nil, hiring.Errorf(hiring.CodeMissingCredential, "agent_key is required")
	}
	h := http.Header{}
	h.Set("X-API-Key", cr.AgentKey)
	if cr.PaymentProof != "" {
		h.Set("X-Payment", cr.PaymentProof)
	}
	return h, nil
}

func humanHeader(cr Credentials) (http.Header, error) {
	if strings.TrimSpace(cr.HumanKey) == "" {
		return nil, hiring.Errorf(hiring.CodeMissingCredential, "human key is required")
	}
	h := http.Header{}
	h.Set("X-Human-Key", cr.HumanKey)
	return h, nil
}

func adminHeader(cr Credentials) (http.Header, error) {
	if strings.TrimSpace(cr.AdminKey) == "" {
		return nil, hiring.Errorf(hiring.CodeMissingCredential, "admin key is required")
	}
	h := http.Header{}
	h.Set("X-Admin-Key", cr.AdminKey)
	return h, nil
}
