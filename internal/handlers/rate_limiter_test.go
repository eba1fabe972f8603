package handlers

import (
	"testing"
	"time"
)

func TestWindowRateLimiterBlocksAfterLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter := newWindowRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("ip-1") || !limiter.Allow("ip-1") {
		t.Fatal("first two requests must pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatal("third request within the window must be blocked")
	}
	if !limiter.Allow("ip-2") {
		t.Fatal("other keys must not be affected")
	}
}

func TestWindowRateLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter := newWindowRateLimiter(1, time.Minute, func() time.Time { return now })

	if !limiter.Allow("ip-1") {
		t.Fatal("first request must pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatal("second request within the window must be blocked")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("ip-1") {
		t.Fatal("request after window expiry must pass")
	}
}

func TestWindowRateLimiterDisabledWhenMisconfigured(t *testing.T) {
	if limiter := newWindowRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatal("zero limit must disable the limiter")
	}
	if limiter := newWindowRateLimiter(10, 0, nil); limiter != nil {
		t.Fatal("zero window must disable the limiter")
	}
}
