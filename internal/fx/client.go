package fx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 64 << 10

var rateAPI = sonic.Config{UseNumber: true}.Froze()

type Config struct {
	BaseURL string
	// CallTimeout bounds a whole GetRate, retries and waits included.
	CallTimeout time.Duration
	Retry       RetryPolicy
	Breaker     BreakerSettings
}

type Option func(*Client)

// WithClock replaces the time source used by the circuit breaker.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// Client fetches conversion rates from the FX service behind a circuit breaker and a
// bounded retry loop. One Client should be shared by the whole process.
type Client struct {
	baseURL     string
	callTimeout time.Duration
	retry       RetryPolicy
	httpClient  *http.Client
	breaker     *CircuitBreaker
	logger      *slog.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewClient(httpClient *http.Client, cfg Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		callTimeout: cfg.CallTimeout,
		retry:       cfg.Retry,
		httpClient:  httpClient,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts <= 0 {
		c.retry.MaxAttempts = 1
	}
	c.breaker = NewCircuitBreaker(cfg.Breaker, c.now)
	return c
}

func (c *Client) BreakerState() State {
	return c.breaker.State()
}

// GetRate returns the rate converting one unit of source into destination. Failures are
// always *Error values.
func (c *Client) GetRate(ctx context.Context, source, destination string) (decimal.Decimal, error) {
	tracer := otel.Tracer("fx-client")
	ctx, span := tracer.Start(ctx, "fx-get-rate", trace.WithAttributes(
		attribute.String("fx.source", source),
		attribute.String("fx.destination", destination),
	))
	defer span.End()

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	var lastErr *Error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retry.backoff(attempt-1)); err != nil {
				break
			}
		}

		generation, ok := c.breaker.Allow()
		if !ok {
			lastErr = circuitOpen(source, destination)
			c.logger.Warn("fx circuit breaker rejected call", "source", source, "destination", destination)
			break
		}

		rate, err := c.fetch(ctx, source, destination)
		c.breaker.Record(generation, err == nil)
		if err == nil {
			span.SetAttributes(attribute.String("fx.rate", rate.String()), attribute.Int("fx.attempts", attempt))
			span.SetStatus(codes.Ok, "rate fetched")
			return rate, nil
		}

		lastErr = err
		if !err.Transient() {
			break
		}
		c.logger.Warn("fx rate attempt failed", "attempt", attempt, "source", source, "destination", destination, "error", err)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Msg)
	c.logger.Error("fx rate lookup failed", "source", source, "destination", destination, "error", lastErr)
	return decimal.Zero, lastErr
}

func (c *Client) fetch(ctx context.Context, source, destination string) (decimal.Decimal, *Error) {
	query := url.Values{"from": {source}, "to": {destination}}
	endpoint := c.baseURL + "/fx-rate?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, &Error{Kind: ErrUpstream, Msg: "Error calling FX service: " + err.Error(), Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("fetching fx rate", "url", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, unavailable(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusForbidden {
		return decimal.Zero, accessDenied()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, upstream(resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return decimal.Zero, unavailable(err)
	}
	return parseRate(body)
}

func parseRate(body []byte) (decimal.Decimal, *Error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return decimal.Zero, invalidResponse(nil)
	}

	var payload map[string]any
	if err := rateAPI.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, invalidResponse(err)
	}
	raw, ok := payload["rate"]
	if !ok {
		return decimal.Zero, invalidResponse(nil)
	}

	var (
		rate decimal.Decimal
		err  error
	)
	switch v := raw.(type) {
	case json.Number:
		rate, err = decimal.NewFromString(v.String())
	case float64:
		rate = decimal.NewFromFloat(v)
	case string:
		rate, err = decimal.NewFromString(strings.TrimSpace(v))
	default:
		return decimal.Zero, invalidRateFormat()
	}
	if err != nil {
		return decimal.Zero, invalidRateFormat()
	}

	if !rate.IsPositive() {
		return decimal.Zero, nonPositiveRate()
	}
	return rate, nil
}
