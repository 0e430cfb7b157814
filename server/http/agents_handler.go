package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/types"
)

// AgentsHandler is the HTTP handler of the agent directory and the identity
// binding endpoints
type AgentsHandler struct {
	agentsManager agents.Manager
}

// NewAgentsHandler creates a new AgentsHandler HTTP handler
func NewAgentsHandler(agentsManager agents.Manager) *AgentsHandler {
	return &AgentsHandler{agentsManager: agentsManager}
}

// RegisterAgent is HTTP POST handler that registers an agent and returns the
// one-time plain API key
func (h *AgentsHandler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterAgentRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	agent, plainKey, err := h.agentsManager.RegisterAgent(r.Context(), req.Name, req.Role, req.OwnerID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, &api.RegisterAgentResponse{
		Agent:  *toAgentResponse(agent, time.Now()),
		APIKey: plainKey,
	})
}

// GetAllAgents is HTTP GET handler that returns the public agent directory
func (h *AgentsHandler) GetAllAgents(w http.ResponseWriter, r *http.Request) {
	allAgents, err := h.agentsManager.GetAllAgents(r.Context())
	if err != nil {
		util.WriteError(err, w)
		return
	}

	now := time.Now()
	directory := make([]*api.Agent, 0, len(allAgents))
	for _, agent := range allAgents {
		directory = append(directory, toAgentResponse(agent, now))
	}

	util.WriteJSONObject(w, directory)
}

// GetSelf is HTTP GET handler that returns the calling agent's own record
func (h *AgentsHandler) GetSelf(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	util.WriteJSONObject(w, toAgentResponse(agent, time.Now()))
}

// Heartbeat is HTTP POST handler that bumps the calling agent's last seen time
func (h *AgentsHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	lastSeen, err := h.agentsManager.Heartbeat(r.Context(), agent.ID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, &api.HeartbeatResponse{LastSeenAt: lastSeen})
}

// UpdateIdentity is HTTP PUT handler that binds or rebinds the calling
// agent's signing identity
func (h *AgentsHandler) UpdateIdentity(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	var req api.BindIdentityRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	updated, err := h.agentsManager.BindIdentity(r.Context(), agent.ID, req.CertificatePEM, req.PublicKeyPEM)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	info, err := h.agentsManager.GetIdentityInfo(r.Context(), updated.ID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, info)
}

// GetSelfIdentity is HTTP GET handler that returns the calling agent's
// identity binding info
func (h *AgentsHandler) GetSelfIdentity(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	h.writeIdentityInfo(w, r, agent.ID)
}

// GetAgentIdentity is HTTP GET handler that returns another agent's identity
// binding info
func (h *AgentsHandler) GetAgentIdentity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	agentID := vars["agentId"]
	if len(agentID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid agent ID"), w)
		return
	}

	h.writeIdentityInfo(w, r, agentID)
}

func (h *AgentsHandler) writeIdentityInfo(w http.ResponseWriter, r *http.Request, agentID string) {
	info, err := h.agentsManager.GetIdentityInfo(r.Context(), agentID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, info)
}

func toAgentResponse(agent *types.Agent, now time.Time) *api.Agent {
	var lastSeen *time.Time
	if agent.LastSeenAt != nil {
		t := *agent.LastSeenAt
		lastSeen = &t
	}
	return &api.Agent{
		ID:             agent.ID,
		Name:           agent.Name,
		Role:           agent.Role,
		OwnerID:        agent.OwnerID,
		Online:         agent.IsOnline(now),
		IdentityStatus: agent.IdentityStatus(),
		LastSeenAt:     lastSeen,
		CreatedAt:      agent.CreatedAt,
	}
}
