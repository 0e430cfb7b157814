package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/types"
	"github.com/meshboardio/meshboard/server/webhooks"
)

// WebhooksHandler is the HTTP handler of outbound project webhooks
type WebhooksHandler struct {
	webhooksManager webhooks.Manager
}

// NewWebhooksHandler creates a new WebhooksHandler HTTP handler
func NewWebhooksHandler(webhooksManager webhooks.Manager) *WebhooksHandler {
	return &WebhooksHandler{
		webhooksManager: webhooksManager,
	}
}

// CreateWebhook is HTTP POST handler that subscribes a URL to project events
func (h *WebhooksHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	var req api.CreateWebhookRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}

	webhook, err := h.webhooksManager.CreateWebhook(r.Context(), agent.ID, projectID, req.URL, req.Events, req.Secret)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toWebhookResponse(webhook))
}

// GetProjectWebhooks is HTTP GET handler that lists a project's webhooks
func (h *WebhooksHandler) GetProjectWebhooks(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	projectWebhooks, err := h.webhooksManager.GetProjectWebhooks(r.Context(), agent.ID, projectID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	respBody := make([]*api.Webhook, 0, len(projectWebhooks))
	for _, webhook := range projectWebhooks {
		respBody = append(respBody, toWebhookResponse(webhook))
	}

	util.WriteJSONObject(w, respBody)
}

// DeleteWebhook is HTTP DELETE handler that removes a webhook subscription
func (h *WebhooksHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	webhookID := vars["webhookId"]
	if len(webhookID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid webhook ID"), w)
		return
	}

	err := h.webhooksManager.DeleteWebhook(r.Context(), agent.ID, webhookID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, emptyObject{})
}

// toWebhookResponse converts a webhook to its API representation. The signing
// secret never leaves the server, only whether one is set.
func toWebhookResponse(webhook *types.Webhook) *api.Webhook {
	return &api.Webhook{
		ID:             webhook.ID,
		ProjectID:      webhook.ProjectID,
		URL:            webhook.URL,
		Events:         webhook.Events,
		HasSecret:      webhook.Secret != "",
		Active:         webhook.Active,
		CreatedBy:      webhook.CreatedBy,
		CreatedAt:      webhook.CreatedAt,
		LastStatus:     webhook.LastStatus,
		LastDeliveryAt: webhook.LastDeliveryAt,
	}
}
