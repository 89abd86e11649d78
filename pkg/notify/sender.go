package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentstation/seatwatch/pkg/constants"
)

// StatusError is returned by HTTPSender when the target answers with a
// non-2xx status.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("target returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("target returned %d", e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// HTTPSender POSTs JSON payloads.
type HTTPSender struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSender creates a sender using client, or a client with the
// default timeout when nil.
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	return &HTTPSender{client: client, userAgent: "seatwatch"}
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, target string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	serr := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		serr.RetryAfter = time.Duration(secs) * time.Second
	}
	return serr
}

// RateLimitedSender wraps a Sender with a token bucket shared by all callers.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows perSecond sends with the given burst.
func NewRateLimitedSender(next Sender, perSecond float64, burst int) *RateLimitedSender {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedSender{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send waits for a token, then delegates.
func (s *RateLimitedSender) Send(ctx context.Context, target string, payload []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Send(ctx, target, payload)
}
