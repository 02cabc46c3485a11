package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrNotReady is returned when /ready answers 503 on the final attempt.
var ErrNotReady = errors.New("engine not ready")

// Probe polls an engine server's /ready endpoint.
type Probe struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type ProbeOption func(*Probe)

func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) { p.defaultTimeout = d }
}

func WithProbeRetry(max int) ProbeOption {
	return func(p *Probe) { p.retryMax = max }
}

func NewProbe(baseURL string, opts ...ProbeOption) *Probe {
	p := &Probe{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 4},
		defaultTimeout: 5 * time.Second,
		retryMax:       5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check performs one GET /ready.
func (p *Probe) Check(ctx context.Context) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(p.baseURL + "/ready")

	if err := p.http.DoDeadline(req, resp, p.computeDeadline(ctx)); err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusOK:
		return nil
	case status == fasthttp.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrNotReady, truncate(strings.TrimSpace(string(resp.Body())), 256))
	default:
		return fmt.Errorf("probe error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
	}
}

// WaitReady retries Check with exponential backoff until it succeeds or
// the attempts run out.
func (p *Probe) WaitReady(ctx context.Context) error {
	attempts := p.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = p.Check(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p *Probe) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(p.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
