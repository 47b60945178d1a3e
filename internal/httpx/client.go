// Package httpx builds the HTTP clients used for JSON-RPC transport.
package httpx

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

const DefaultRetries = 2

// NewClient returns an http.Client that stamps userAgent on every request and
// retries rate-limited or temporarily unavailable responses up to retries
// times. Transport errors are returned immediately so the caller can fail over.
func NewClient(timeout time.Duration, retries int, userAgent string) *http.Client {
	if retries < 0 {
		retries = 0
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &transport{
			base:      http.DefaultTransport,
			retries:   retries,
			userAgent: userAgent,
		},
	}
}

type transport struct {
	base      http.RoundTripper
	retries   int
	userAgent string
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		clone := req.Clone(ctx)
		if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
			clone.Header.Set("User-Agent", t.userAgent)
		}
		if attempt > 0 && req.Body != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			clone.Body = body
		}

		resp, err := t.base.RoundTrip(clone)
		if err != nil {
			return nil, err
		}
		if !retryable(resp.StatusCode) || attempt >= t.retries || (req.Body != nil && req.GetBody == nil) {
			return resp, nil
		}
		_ = resp.Body.Close()
		if err := sleep(ctx, backoff(attempt+1)); err != nil {
			return nil, err
		}
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable || status == http.StatusBadGateway
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
