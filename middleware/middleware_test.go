package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestClerkAuthRejectsMissingToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty bearer", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/drinks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			ClerkAuthMiddleware(okHandler).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "error")
		})
	}
}

func TestBearerTokenFallsBackToQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/drinks/stream?token=abc", nil)
	token, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func TestGetClerkID(t *testing.T) {
	_, ok := GetClerkID(context.Background())
	assert.False(t, ok)

	_, ok = GetClerkID(context.WithValue(context.Background(), ClerkIDKey, ""))
	assert.False(t, ok)

	id, ok := GetClerkID(context.WithValue(context.Background(), ClerkIDKey, "user_1"))
	assert.True(t, ok)
	assert.Equal(t, "user_1", id)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0, 2)
	h := rl.Middleware(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2, 10.0.0.1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rl.evict(0)
	assert.Empty(t, rl.visitors)
}

func TestBasicAuthMiddleware(t *testing.T) {
	h := BasicAuthMiddleware("admin", "secret")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req.SetBasicAuth("admin", "secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPprofSecurityMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	rr := httptest.NewRecorder()
	PprofSecurityMiddleware("")(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req.Header.Set("X-Pprof-Secret", "s3")
	rr = httptest.NewRecorder()
	PprofSecurityMiddleware("s3")(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
