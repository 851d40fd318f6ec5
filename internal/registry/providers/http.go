package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kyb/pkg/platform/circuit"
)

// DefaultTimeout bounds every registry call. There is no retry inside a
// client; re-running is the orchestrator's or an operator's decision.
const DefaultTimeout = 12 * time.Second

const maxResponseBytes = 4 << 20

// HTTPClient is the shared transport for JSON registry APIs.
type HTTPClient struct {
	source  Source
	baseURL string
	client  *http.Client
	timeout time.Duration
	headers http.Header
	breaker *circuit.Breaker
	observer BreakerObserver
	tracer  trace.Tracer
}

// BreakerObserver is told when a client's circuit opens or closes.
type BreakerObserver interface {
	IncrementBreakerTransition(source string, state circuit.State)
}

type ClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithHeader(key, value string) ClientOption {
	return func(h *HTTPClient) {
		if value != "" {
			h.headers.Set(key, value)
		}
	}
}

// WithBreaker fails calls fast while the authority is known to be down.
func WithBreaker(b *circuit.Breaker) ClientOption {
	return func(h *HTTPClient) {
		h.breaker = b
	}
}

func WithBreakerObserver(o BreakerObserver) ClientOption {
	return func(h *HTTPClient) {
		h.observer = o
	}
}

func NewHTTPClient(source Source, baseURL string, opts ...ClientOption) *HTTPClient {
	h := &HTTPClient{
		source:  source,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: DefaultTimeout,
		headers: http.Header{"Accept": []string{"application/json"}},
		tracer:  otel.Tracer("kyb/registry"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPClient) Source() Source { return h.source }

// Response is a completed HTTP exchange. Status handling is left to the
// caller because each authority signals "not found" differently.
type Response struct {
	Status int
	Body   []byte
	URL    string
}

// Get performs one bounded GET. Transport failures, timeouts and 5xx/429
// statuses count against the circuit breaker.
func (h *HTTPClient) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	if h.breaker != nil && !h.breaker.Allow() {
		return nil, NewProviderError(ErrorProviderOutage, h.source, "circuit open", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	target := h.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	ctx, span := h.tracer.Start(ctx, "registry."+string(h.source)+".get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("registry.source", string(h.source)),
			attribute.String("http.path", path),
		))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NewProviderError(ErrorInternal, h.source, "build request", err)
	}
	for k, v := range h.headers {
		req.Header[k] = v
	}

	resp, err := h.client.Do(req)
	if err != nil {
		perr := ClassifyTransport(h.source, err)
		h.recordFailure()
		span.RecordError(perr)
		span.SetStatus(codes.Error, string(perr.Category))
		return nil, perr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		perr := ClassifyTransport(h.source, fmt.Errorf("read body: %w", err))
		h.recordFailure()
		span.RecordError(perr)
		span.SetStatus(codes.Error, string(perr.Category))
		return nil, perr
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		h.recordFailure()
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	} else {
		h.recordSuccess()
	}
	return &Response{Status: resp.StatusCode, Body: body, URL: target}, nil
}

func (h *HTTPClient) recordFailure() {
	if h.breaker == nil {
		return
	}
	if _, change := h.breaker.RecordFailure(); change.Opened {
		h.transition(circuit.StateOpen)
	}
}

func (h *HTTPClient) recordSuccess() {
	if h.breaker == nil {
		return
	}
	if _, change := h.breaker.RecordSuccess(); change.Closed {
		h.transition(circuit.StateClosed)
	}
}

func (h *HTTPClient) transition(state circuit.State) {
	if h.observer != nil {
		h.observer.IncrementBreakerTransition(string(h.source), state)
	}
}
