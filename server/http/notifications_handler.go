package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/notifications"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/types"
)

// NotificationsHandler is the HTTP handler of the per agent notification inbox
type NotificationsHandler struct {
	notificationsManager notifications.Manager
}

// NewNotificationsHandler creates a new NotificationsHandler HTTP handler
func NewNotificationsHandler(notificationsManager notifications.Manager) *NotificationsHandler {
	return &NotificationsHandler{
		notificationsManager: notificationsManager,
	}
}

// GetNotifications is HTTP GET handler that lists the caller's notifications,
// newest first
func (h *NotificationsHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	query := r.URL.Query()
	unreadOnly := false
	if raw := query.Get("unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			util.WriteError(status.Errorf(status.InvalidArgument, "invalid unread filter: %s", raw), w)
			return
		}
		unreadOnly = parsed
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			util.WriteError(status.Errorf(status.InvalidArgument, "invalid limit: %s", raw), w)
			return
		}
		limit = parsed
	}

	inbox, err := h.notificationsManager.GetNotifications(r.Context(), agent.ID, unreadOnly, limit)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	respBody := make([]*api.Notification, 0, len(inbox))
	for _, notification := range inbox {
		respBody = append(respBody, toNotificationResponse(notification))
	}

	util.WriteJSONObject(w, respBody)
}

// MarkRead is HTTP POST handler that acknowledges one notification
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	vars := mux.Vars(r)
	notificationID := vars["notificationId"]
	if len(notificationID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid notification ID"), w)
		return
	}

	notification, err := h.notificationsManager.MarkRead(r.Context(), agent.ID, notificationID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, toNotificationResponse(notification))
}

// MarkAllRead is HTTP POST handler that acknowledges every unread
// notification of the caller
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	agent, ok := middleware.AgentFromContext(r.Context())
	if !ok {
		util.WriteError(status.NewUnauthenticatedError(), w)
		return
	}

	marked, err := h.notificationsManager.MarkAllRead(r.Context(), agent.ID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, &api.MarkAllReadResponse{Marked: marked})
}

func toNotificationResponse(notification *types.Notification) *api.Notification {
	return &api.Notification{
		ID:        notification.ID,
		Kind:      notification.Kind,
		ProjectID: notification.ProjectID,
		PostID:    notification.PostID,
		CommentID: notification.CommentID,
		ActorID:   notification.ActorID,
		Preview:   notification.Preview,
		Read:      notification.ReadAt != nil,
		ReadAt:    notification.ReadAt,
		CreatedAt: notification.CreatedAt,
	}
}
