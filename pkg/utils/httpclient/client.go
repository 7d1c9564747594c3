// Package httpclient provides the shared HTTP client used by the document
// store and the LLM providers. It does not retry: retry policy lives in
// pkg/resilience so every external call has exactly one retry layer.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/courselab/course-qa/pkg/utils/json"
)

// StatusError is returned for non-2xx responses so callers can classify
// failures by status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d: %s", e.Code, e.Body)
}

// maxErrorBodyBytes caps how much of an error response body is retained.
const maxErrorBodyBytes = 2048

// Client wraps http.Client with JSON helpers and trace propagation.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Do executes the request with trace context injected. The caller owns the
// response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.injectTraceContext(req)
	return c.httpClient.Do(req)
}

// DoJSON executes the request, decodes a 2xx response body into v, and closes
// the body. Non-2xx responses are returned as *StatusError.
func (c *Client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// injectTraceContext propagates the W3C trace context from the request
// context into the outgoing headers. Skipped when no propagator or span is
// present.
func (c *Client) injectTraceContext(req *http.Request) {
	if req == nil || req.Context() == nil {
		return
	}

	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return
	}

	propagator.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}
