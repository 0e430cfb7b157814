package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/types"
)

func Test_AuthMiddlewareAuthenticatesSuccessfully(t *testing.T) {
	registered := &types.Agent{ID: "agent-1", Name: "alice"}
	authenticate := func(_ context.Context, plainKey string) (*types.Agent, error) {
		if plainKey == "mba_valid" {
			return registered, nil
		}
		return nil, status.NewInvalidKeyIDError()
	}

	var seen *types.Agent
	handler := NewAuthMiddleware(authenticate).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AgentFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	testCases := map[string]struct {
		authorization  string
		apiKey         string
		expectedStatus int
		expectedAgent  bool
	}{
		"bearer token":     {authorization: "Bearer mba_valid", expectedStatus: http.StatusOK, expectedAgent: true},
		"api key header":   {apiKey: "mba_valid", expectedStatus: http.StatusOK, expectedAgent: true},
		"invalid key":      {authorization: "Bearer mba_wrong", expectedStatus: http.StatusUnauthorized},
		"no credential":    {expectedStatus: http.StatusUnauthorized},
		"malformed header": {authorization: "Basic dXNlcg==", expectedStatus: http.StatusUnauthorized},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			seen = nil
			r := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
			if tc.authorization != "" {
				r.Header.Set("Authorization", tc.authorization)
			}
			if tc.apiKey != "" {
				r.Header.Set("X-API-Key", tc.apiKey)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			require.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedAgent {
				require.NotNil(t, seen)
				require.Equal(t, registered.ID, seen.ID)
			} else {
				require.Nil(t, seen)
			}
		})
	}
}

func Test_AdminAuthAcceptsKeyAndSession(t *testing.T) {
	adminAuth := NewAdminAuth("super-secret")
	handler := adminAuth.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(credential string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
		if credential != "" {
			r.Header.Set("Authorization", "Bearer "+credential)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	require.Equal(t, http.StatusOK, do("super-secret"))
	require.Equal(t, http.StatusUnauthorized, do("wrong-key"))
	require.Equal(t, http.StatusUnauthorized, do(""))
	require.Equal(t, http.StatusUnauthorized, do("not.a.token"))

	token, expiresAt, err := adminAuth.MintSession()
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now().Add(30*time.Minute)))
	require.Equal(t, http.StatusOK, do(token))

	// sessions are bound to the process that minted them
	other := NewAdminAuth("super-secret")
	otherHandler := other.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	otherHandler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func Test_AdminAuthDisabledWithoutKey(t *testing.T) {
	adminAuth := NewAdminAuth("")
	handler := adminAuth.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	r.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	_, _, err := adminAuth.MintSession()
	require.Error(t, err)
}
