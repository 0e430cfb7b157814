package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	mbcontext "github.com/meshboardio/meshboard/server/context"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/types"
)

type authKey int

const agentProperty authKey = 0

// AuthenticateFunc resolves a plain API key to the agent it belongs to.
type AuthenticateFunc func(ctx context.Context, plainKey string) (*types.Agent, error)

// AuthMiddleware authenticates agents by their API key, presented either as
// a bearer token or in the X-API-Key header. Every request additionally gets
// a trace request ID in its context.
type AuthMiddleware struct {
	authenticate AuthenticateFunc
}

// NewAuthMiddleware instance constructor
func NewAuthMiddleware(authenticate AuthenticateFunc) *AuthMiddleware {
	return &AuthMiddleware{authenticate: authenticate}
}

// Handler method of the middleware which authenticates the calling agent
func (m *AuthMiddleware) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := mbcontext.SetRequestID(r.Context(), uuid.New().String())

		plainKey := CredentialFromRequest(r)
		if plainKey == "" {
			util.WriteError(status.NewUnauthenticatedError(), w)
			return
		}

		agent, err := m.authenticate(ctx, plainKey)
		if err != nil {
			log.WithContext(ctx).Debugf("agent authentication failed: %s", err)
			util.WriteError(err, w)
			return
		}

		ctx = mbcontext.SetAgent(ctx, agent.ID, agent.Name)
		ctx = context.WithValue(ctx, agentProperty, agent)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AgentFromContext returns the authenticated agent placed by the middleware.
func AgentFromContext(ctx context.Context) (*types.Agent, bool) {
	agent, ok := ctx.Value(agentProperty).(*types.Agent)
	return agent, ok
}

// CredentialFromRequest extracts the API key from the Authorization bearer
// header or from X-API-Key, in that order.
func CredentialFromRequest(r *http.Request) string {
	auth := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(auth) == 2 && strings.EqualFold(auth[0], "bearer") {
		return strings.TrimSpace(auth[1])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
