package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitStatus is a snapshot of the API rate limit state
type RateLimitStatus struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimitTracker tracks rate limit state from response headers so
// requests can wait for the reset instead of burning attempts on 403s
type RateLimitTracker struct {
	mu     sync.Mutex
	status RateLimitStatus
}

// NewRateLimitTracker creates an empty tracker
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{}
}

// Update records the rate limit headers from a response
func (t *RateLimitTracker) Update(resp *http.Response) {
	if resp == nil {
		return
	}

	limit, err1 := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	remaining, err2 := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	reset, err3 := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = RateLimitStatus{
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Unix(reset, 0),
	}
}

// GetStatus returns the last observed rate limit state
func (t *RateLimitTracker) GetStatus() RateLimitStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// WaitForRateLimitReset blocks until the rate limit window resets when
// the tracker has observed an exhausted limit. Returns immediately
// when requests remain or no state has been observed yet.
func (t *RateLimitTracker) WaitForRateLimitReset(ctx context.Context) error {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()

	if status.Limit == 0 || status.Remaining > 0 {
		return nil
	}

	wait := time.Until(status.Reset)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
