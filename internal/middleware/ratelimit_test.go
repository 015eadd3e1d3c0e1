package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/mailadmin/internal/model"
)

func newLimitedHandler(rl *RateLimiter) http.Handler {
	return rl.AuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func postFrom(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        2,
		AuthBurst:       5,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := newLimitedHandler(rl)

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		if w := postFrom(handler, "192.0.2.1:1234"); w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1.0 / 60.0,
		AuthBurst:       2,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := newLimitedHandler(rl)

	for i := 0; i < 2; i++ {
		postFrom(handler, "192.0.2.1:1234")
	}
	w := postFrom(handler, "192.0.2.1:1234")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}
	if retryAfter != 60 {
		t.Errorf("Retry-After = %d, want 60", retryAfter)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
	if body.Success {
		t.Error("success should be false")
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1.0 / 60.0,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := newLimitedHandler(rl)

	if w := postFrom(handler, "192.0.2.1:1111"); w.Code != http.StatusOK {
		t.Fatalf("client A first request: status = %d", w.Code)
	}
	if w := postFrom(handler, "192.0.2.1:2222"); w.Code != http.StatusTooManyRequests {
		t.Errorf("client A from another port: status = %d, want 429", w.Code)
	}
	if w := postFrom(handler, "198.51.100.7:1111"); w.Code != http.StatusOK {
		t.Errorf("client B: status = %d, want 200", w.Code)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount() = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        2,
		AuthBurst:       5,
		CleanupInterval: 50 * time.Millisecond,
	})
	defer rl.Stop()

	postFrom(newLimitedHandler(rl), "192.0.2.1:1234")

	if rl.LimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// TTLはCleanupIntervalの2倍(100ms)
	time.Sleep(250 * time.Millisecond)

	if count := rl.LimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(10))
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig(120)
	if cfg.AuthRate != 2.0 {
		t.Errorf("AuthRate = %f, want 2.0", cfg.AuthRate)
	}
	if cfg.AuthBurst != 120 {
		t.Errorf("AuthBurst = %d, want 120", cfg.AuthBurst)
	}

	fallback := DefaultRateLimiterConfig(0)
	if fallback.AuthBurst != 20 {
		t.Errorf("fallback AuthBurst = %d, want 20", fallback.AuthBurst)
	}
}
