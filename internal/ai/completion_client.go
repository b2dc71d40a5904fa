package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tgautier-sma/ai-llama/internal/logger"
	"github.com/tgautier-sma/ai-llama/internal/telemetry"
)

const (
	completionsPath = "/v1/chat/completions"

	// Completion bodies larger than this are rejected as malformed.
	maxResponseBytes = 16 << 20
)

// CompletionClient posts chat-completion requests to OpenAI-compatible
// servers. Calls are never retried. Each base URL gets its own circuit
// breaker so a failing vision server does not trip the text one.
type CompletionClient struct {
	httpClient     *http.Client
	metrics        *telemetry.Metrics
	tracer         trace.Tracer
	breakerEnabled bool

	mu       sync.Mutex
	breakers map[string]*endpointBreaker
}

// endpointBreaker remembers the last upstream failure so calls rejected
// while the breaker is open still report the upstream status and body.
type endpointBreaker struct {
	cb *gobreaker.CircuitBreaker

	mu   sync.Mutex
	last *UpstreamError
}

func (b *endpointBreaker) remember(err *UpstreamError) {
	b.mu.Lock()
	b.last = err
	b.mu.Unlock()
}

func (b *endpointBreaker) rejection(err error) *UpstreamError {
	b.mu.Lock()
	last := b.last
	b.mu.Unlock()

	if last == nil {
		return &UpstreamError{Err: err}
	}
	if last.StatusCode != 0 {
		return &UpstreamError{StatusCode: last.StatusCode, Body: last.Body, Err: err}
	}
	return &UpstreamError{Err: fmt.Errorf("%w (last failure: %v)", err, last.Err)}
}

type Option func(*CompletionClient)

func WithHTTPClient(client *http.Client) Option {
	return func(c *CompletionClient) {
		c.httpClient = client
	}
}

func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(c *CompletionClient) {
		c.metrics = metrics
	}
}

func WithCircuitBreaker(enabled bool) Option {
	return func(c *CompletionClient) {
		c.breakerEnabled = enabled
	}
}

func NewCompletionClient(opts ...Option) *CompletionClient {
	c := &CompletionClient{
		// Per-call deadlines come from the context.
		httpClient:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		tracer:         otel.Tracer("llm-client"),
		breakerEnabled: true,
		breakers:       make(map[string]*endpointBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends req to {baseURL}/v1/chat/completions and returns the raw
// response body of a 2xx reply. Every failure is an *UpstreamError.
func (c *CompletionClient) Complete(ctx context.Context, baseURL string, req ChatRequest, timeout time.Duration) ([]byte, error) {
	endpoint := strings.TrimRight(baseURL, "/") + completionsPath

	ctx, span := c.tracer.Start(ctx, "llm.chat_completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.endpoint", endpoint),
		attribute.Int("llm.max_tokens", req.MaxTokens),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Float64("llm.timeout_seconds", timeout.Seconds()),
	)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	call := func() (interface{}, error) {
		return c.post(ctx, endpoint, payload)
	}

	var result interface{}
	breaker := c.breakerFor(baseURL)
	if breaker != nil {
		result, err = breaker.cb.Execute(call)
	} else {
		result, err = call()
	}

	if err != nil {
		var upstream *UpstreamError
		switch {
		case breaker != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)):
			span.SetAttributes(attribute.Bool("llm.circuit_breaker_open", true))
			upstream = breaker.rejection(err)
		case errors.As(err, &upstream):
			if breaker != nil {
				breaker.remember(upstream)
			}
		default:
			upstream = &UpstreamError{Err: err}
		}
		span.RecordError(upstream)
		span.SetStatus(codes.Error, "completion failed")
		c.metrics.RecordUpstreamFailure(baseURL, upstream.StatusCode)
		logger.Warn("Completion request failed",
			"endpoint", endpoint,
			"status", upstream.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", upstream.Error(),
		)
		return nil, upstream
	}

	body := result.([]byte)
	span.SetAttributes(attribute.Int("llm.response_bytes", len(body)))
	logger.Debug("Completion request succeeded",
		"endpoint", endpoint,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

func (c *CompletionClient) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func (c *CompletionClient) breakerFor(baseURL string) *endpointBreaker {
	if !c.breakerEnabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if breaker, ok := c.breakers[baseURL]; ok {
		return breaker
	}

	breaker := &endpointBreaker{}
	breaker.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        baseURL,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// The caller going away says nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "endpoint", name, "from", from.String(), "to", to.String())
			c.metrics.RecordCircuitBreakerState(name, to.String())
		},
	})
	c.breakers[baseURL] = breaker
	return breaker
}
