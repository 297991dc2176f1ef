package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/locale"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultTimeout          = 10 * time.Second
	responseBodyLimit int64 = 4 << 20
)

var errBaseURLRequired = errors.New("storefront backend base url is required")

// Client talks to the remote storefront REST API on behalf of a shopper.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	metrics    *metrics.BackendMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMetrics records call latency and outcomes.
func WithMetrics(m *metrics.BackendMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// BreakerSettings tunes the circuit breaker guarding transport failures.
type BreakerSettings struct {
	MaxFailures uint32
	OpenFor     time.Duration
	Interval    time.Duration
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(settings BreakerSettings) Option {
	return func(c *Client) {
		c.breaker = newBreaker(settings)
	}
}

// NewClient builds the backend client for the given API base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.breaker == nil {
		client.breaker = newBreaker(BreakerSettings{})
	}
	return client, nil
}

func newBreaker(settings BreakerSettings) *gobreaker.CircuitBreaker[*http.Response] {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:     "storefront-backend",
		Interval: settings.Interval,
		Timeout:  settings.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Upstream status codes are not transport failures and a caller hanging up says
		// nothing about the backend's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Request describes one call to the backend.
type Request struct {
	// Operation labels the call in metrics.
	Operation  string
	Method     string
	Path       string
	Query      url.Values
	Credential auth.Credential
	// JSON is encoded as the request body when set.
	JSON any
	// Body and ContentType carry a pre-encoded payload such as multipart form data.
	Body        io.Reader
	ContentType string
}

// Response is the buffered backend reply. Non-2xx statuses are returned, not errors.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the body into dest.
func (r *Response) Decode(dest any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return io.EOF
	}
	return json.Unmarshal(r.Body, dest)
}

// Do executes the request. Transport failures come back as typed errors: CodeTimeout for
// deadlines, CodeDependency for everything else including an open circuit.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "storefront backend client not configured")
	}
	start := time.Now()

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		c.observe(req.Operation, "error", start)
		return nil, err
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		outcome, typed := classifyTransportError(err)
		c.observe(req.Operation, outcome, start)
		return nil, typed
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		outcome, typed := classifyTransportError(err)
		c.observe(req.Operation, outcome, start)
		return nil, typed
	}

	c.observe(req.Operation, statusOutcome(resp.StatusCode), start)
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	contentType := req.ContentType
	switch {
	case req.JSON != nil:
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal backend request")
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case req.Body != nil:
		body = req.Body
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(req.Path, req.Query), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build backend request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if !req.Credential.Empty() {
		httpReq.Header.Set("Authorization", req.Credential.Header())
	}
	if lang := locale.FromContext(ctx); lang != "" {
		httpReq.Header.Set("Accept-Language", lang)
	}
	return httpReq, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

func (c *Client) observe(operation, outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.Observe(operation, outcome, time.Since(start))
}

func classifyTransportError(err error) (string, *pkgerrors.Error) {
	if IsTimeout(err) {
		return "timeout", pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "storefront backend timed out")
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_open", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storefront backend unavailable")
	}
	return "error", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storefront backend request failed")
}

// IsTimeout reports whether err stems from a deadline or client timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusOutcome(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status >= 400 && status < 500:
		return "status_4xx"
	case status >= 500:
		return "status_5xx"
	}
	return "status_other"
}
