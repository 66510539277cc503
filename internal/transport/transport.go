// Package transport wraps outbound HTTP with request spacing, randomized
// jitter and 429-aware retry. Every cloud call in the process goes through
// a client built here; nothing talks to the vendor API directly.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RateLimitError is returned once the retry budget for 429 responses is
// exhausted.
type RateLimitError struct {
	Retries int
	RetryAt time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("rate limited after %d retries", e.Retries)
	}
	return fmt.Sprintf("rate limited after %d retries (retry at %s)", e.Retries, e.RetryAt.UTC().Format(time.RFC3339))
}

// Options tune the spacing and retry policy.
type Options struct {
	// MinInterval is the minimum gap between any two outbound requests.
	MinInterval time.Duration
	// RandomDelayMin/Max add a randomized delay on top of the spacing so
	// request timing does not form a recognizable pattern.
	RandomDelayMin time.Duration
	RandomDelayMax time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFactor   float64
	MaxRetries     int
	Logger         zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.MinInterval <= 0 {
		o.MinInterval = 100 * time.Millisecond
	}
	if o.RandomDelayMax <= 0 {
		o.RandomDelayMin = 100 * time.Millisecond
		o.RandomDelayMax = 1000 * time.Millisecond
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.JitterFactor <= 0 {
		o.JitterFactor = 0.2
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
}

// NewClient returns an http.Client whose transport enforces the policy.
func NewClient(base *http.Client, opts Options) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	client := *base
	inner := client.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	opts.applyDefaults()
	client.Transport = &roundTripper{
		base: inner,
		opts: opts,
	}
	return &client
}

type roundTripper struct {
	base http.RoundTripper
	opts Options

	mu       sync.Mutex
	lastSent time.Time
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if err := rt.pace(req.Context()); err != nil {
			return nil, err
		}
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := rt.base.RoundTrip(req)
		requestsTotal.Inc()

		switch {
		case err == nil && resp.StatusCode != http.StatusTooManyRequests:
			return resp, nil

		case err == nil:
			// 429: honor Retry-After when present, otherwise back off.
			rateLimitedTotal.Inc()
			delay, ok := retryAfter(resp.Header.Get("Retry-After"))
			if !ok {
				delay = rt.backoff(attempt)
			}
			resp.Body.Close()
			if attempt >= rt.opts.MaxRetries {
				return nil, RateLimitError{Retries: attempt, RetryAt: time.Now().Add(delay)}
			}
			if err := sleep(req.Context(), delay); err != nil {
				return nil, err
			}

		default:
			if attempt >= rt.opts.MaxRetries {
				return nil, err
			}
			retriesTotal.Inc()
			rt.opts.Logger.Warn().Err(err).Int("attempt", attempt+1).Msg("transport error, retrying")
			if err := sleep(req.Context(), rt.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
}

// pace blocks until the minimum inter-request interval plus the randomized
// delay has elapsed since the previous request left.
func (rt *roundTripper) pace(ctx context.Context) error {
	rt.mu.Lock()
	now := time.Now()
	wait := rt.opts.MinInterval - now.Sub(rt.lastSent)
	if wait < 0 {
		wait = 0
	}
	span := rt.opts.RandomDelayMax - rt.opts.RandomDelayMin
	if span > 0 {
		wait += rt.opts.RandomDelayMin + time.Duration(rand.Int63n(int64(span)))
	}
	rt.lastSent = now.Add(wait)
	rt.mu.Unlock()

	return sleep(ctx, wait)
}

func (rt *roundTripper) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(rt.opts.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > rt.opts.MaxDelay {
		delay = rt.opts.MaxDelay
	}
	jitter := time.Duration(float64(delay) * rt.opts.JitterFactor * rand.Float64())
	return delay + jitter
}

// retryAfter parses the Retry-After header, which is either a number of
// seconds or an HTTP date.
func retryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait, true
		}
		return 0, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}
