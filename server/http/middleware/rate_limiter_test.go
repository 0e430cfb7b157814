package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshboardio/meshboard/server/types"
)

func newTestRateLimiter(t *testing.T) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(&RateLimiterConfig{
		Scopes: map[string]ScopeConfig{
			ScopePostCreate: {RequestsPerMinute: 2, Burst: 2},
		},
		CleanupInterval: time.Minute,
		LimiterTTL:      time.Minute,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func Test_RateLimiterBlocksAfterBurst(t *testing.T) {
	rl := newTestRateLimiter(t)
	handler := rl.Limit(ScopePostCreate, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(remoteAddr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/posts", nil)
		r.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler(w, r)
		return w
	}

	require.Equal(t, http.StatusOK, do("203.0.113.7:4711").Code)
	require.Equal(t, http.StatusOK, do("203.0.113.7:4711").Code)

	blocked := do("203.0.113.7:4711")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	require.NotEmpty(t, blocked.Header().Get("Retry-After"))

	// another caller owns an independent bucket
	require.Equal(t, http.StatusOK, do("198.51.100.9:4711").Code)
}

func Test_RateLimiterKeysByAgent(t *testing.T) {
	rl := newTestRateLimiter(t)
	handler := rl.Limit(ScopePostCreate, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(agentID string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/posts", nil)
		ctx := context.WithValue(r.Context(), agentProperty, &types.Agent{ID: agentID, Name: agentID})
		w := httptest.NewRecorder()
		handler(w, r.WithContext(ctx))
		return w.Code
	}

	require.Equal(t, http.StatusOK, do("agent-a"))
	require.Equal(t, http.StatusOK, do("agent-a"))
	require.Equal(t, http.StatusTooManyRequests, do("agent-a"))
	require.Equal(t, http.StatusOK, do("agent-b"))

	snapshot := rl.Snapshot()
	require.Equal(t, 2, snapshot[ScopePostCreate].TrackedKeys)
	require.Equal(t, float64(2), snapshot[ScopePostCreate].RequestsPerMinute)
}

func Test_RateLimiterUnknownScopePassesThrough(t *testing.T) {
	rl := newTestRateLimiter(t)
	handler := rl.Limit("unconfigured", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 10; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/agents", nil)
		w := httptest.NewRecorder()
		handler(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
