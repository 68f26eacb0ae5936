package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"botrelay/internal/auth"
)

func TestRateLimiter_AllowAndDeny(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	rl := NewRateLimiterWithNow(2, time.Minute, func() time.Time { return clock })

	if !rl.Allow("ip") {
		t.Fatalf("expected allow")
	}
	if !rl.Allow("ip") {
		t.Fatalf("expected allow")
	}
	if rl.Allow("ip") {
		t.Fatalf("expected deny")
	}

	clock = clock.Add(time.Minute + time.Second)
	if !rl.Allow("ip") {
		t.Fatalf("expected allow after window")
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(1, time.Minute, func() time.Time { return clock })
	rl.Allow("a")
	rl.Allow("b")

	clock = clock.Add(2 * time.Minute)
	rl.evict()
	if n := rl.size(); n != 0 {
		t.Fatalf("expected expired windows evicted, got %d", n)
	}
}

func TestRateLimitMiddleware_KeysByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, time.Minute)
	r := gin.New()
	r.GET("/", RequireAuth(testTokenConfig), RateLimitMiddleware(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	alice := mustToken(t, "alice", auth.RoleUser)
	bob := mustToken(t, "bob", auth.RoleUser)
	if code := do(alice); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do(alice); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := do(bob); code != http.StatusOK {
		t.Fatalf("separate users share no window, got %d", code)
	}
}
