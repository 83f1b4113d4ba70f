// Package collector delivers event batches to the collection endpoint.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"blaze/internal/platform/tracing"
	"blaze/internal/telemetry/models"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/circuit"
	"blaze/pkg/platform/sentinel"
)

// Path is the collection endpoint relative to the base URL.
const Path = "/api/experiments"

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 8 * time.Second

// maxErrorBody caps how much of an error response is read into the error message.
const maxErrorBody = 512

// Client posts batches as {"events": [...]}. It is safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *circuit.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker gates deliveries behind a circuit breaker. While open, Deliver
// fails fast with sentinel.ErrCircuitOpen and the caller keeps its batch.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// New creates a client for the collector at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + Path,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver sends one batch. Any transport error, timeout or non-2xx status is a
// delivery_failure; the batch has not been acknowledged and should be retried.
func (c *Client) Deliver(ctx context.Context, events []models.Event) (err error) {
	if len(events) == 0 {
		return nil
	}

	ctx, span := tracing.Tracer().Start(ctx, "collector.deliver")
	span.SetAttributes(attribute.Int("events.count", len(events)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delivery failed")
		}
		span.End()
	}()

	if c.breaker != nil && !c.breaker.Allow() {
		return dErrors.Wrap(sentinel.ErrCircuitOpen, dErrors.CodeDelivery, "collector circuit open")
	}

	err = c.post(ctx, events)
	if c.breaker != nil {
		if err != nil {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	return err
}

func (c *Client) post(ctx context.Context, events []models.Event) error {
	body, err := json.Marshal(models.Batch{Events: events})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDelivery, "encode batch")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDelivery, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDelivery, "post batch")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return dErrors.New(dErrors.CodeDelivery, fmt.Sprintf("collector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
