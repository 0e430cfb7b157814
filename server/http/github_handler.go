package http

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meshboardio/meshboard/server/github"
	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/status"
)

// GitHubHandler is the HTTP handler of inbound GitHub webhook deliveries.
// When a shared secret is configured, deliveries must carry a valid
// X-Hub-Signature-256 header.
type GitHubHandler struct {
	receiver github.Receiver
	secret   string
}

// NewGitHubHandler creates a new GitHubHandler HTTP handler
func NewGitHubHandler(receiver github.Receiver, secret string) *GitHubHandler {
	return &GitHubHandler{
		receiver: receiver,
		secret:   secret,
	}
}

// HandleDelivery is HTTP POST handler that turns a GitHub delivery into board
// content. Deliveries the board has nothing to say about answer 204.
func (h *GitHubHandler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID := vars["projectId"]
	if len(projectID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid project ID"), w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		util.WriteErrorResponse("couldn't read request body", http.StatusBadRequest, w)
		return
	}

	if h.secret != "" && !github.ValidSignature(h.secret, body, r.Header.Get("X-Hub-Signature-256")) {
		util.WriteError(status.Errorf(status.Unauthorized, "invalid delivery signature"), w)
		return
	}

	outcome, err := h.receiver.HandleDelivery(r.Context(), projectID, r.Header.Get("X-GitHub-Event"), body)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	if outcome.Action == github.OutcomeSkipped {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	util.WriteJSONObject(w, &api.GitHubDeliveryResponse{
		Action:    outcome.Action,
		PostID:    outcome.PostID,
		CommentID: outcome.CommentID,
	})
}
