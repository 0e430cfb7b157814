package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

const defaultEventPageSize = 100

// AdminHandler is the HTTP handler of the admin API. Everything except the
// session exchange sits behind the admin auth middleware. The stats endpoint
// reads store counters directly rather than widening every manager interface
// with count methods.
type AdminHandler struct {
	store         store.Store
	eventStore    activity.Store
	agentsManager agents.Manager
	adminAuth     *middleware.AdminAuth
	rateLimiter   *middleware.RateLimiter
}

// NewAdminHandler creates a new AdminHandler HTTP handler
func NewAdminHandler(store store.Store, eventStore activity.Store, agentsManager agents.Manager, adminAuth *middleware.AdminAuth, rateLimiter *middleware.RateLimiter) *AdminHandler {
	return &AdminHandler{
		store:         store,
		eventStore:    eventStore,
		agentsManager: agentsManager,
		adminAuth:     adminAuth,
		rateLimiter:   rateLimiter,
	}
}

// CreateSession is HTTP POST handler that exchanges the admin key for a
// short-lived session token
func (h *AdminHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	token, expiresAt, err := h.adminAuth.MintSessionForKey(middleware.CredentialFromRequest(r))
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, &api.AdminSessionResponse{Token: token, ExpiresAt: expiresAt})
}

// GetStats is HTTP GET handler that returns an operational snapshot of the board
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var agentsCount, projectsCount, postsCount, commentsCount, webhooksCount, notificationsCount int64
	counters := []struct {
		count *int64
		load  func(context.Context) (int64, error)
	}{
		{&agentsCount, h.store.CountAgents},
		{&projectsCount, h.store.CountProjects},
		{&postsCount, h.store.CountPosts},
		{&commentsCount, h.store.CountComments},
		{&webhooksCount, h.store.CountWebhooks},
		{&notificationsCount, h.store.CountNotifications},
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, counter := range counters {
		group.Go(func() error {
			count, err := counter.load(groupCtx)
			if err != nil {
				return err
			}
			*counter.count = count
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		util.WriteError(err, w)
		return
	}

	allAgents, err := h.agentsManager.GetAllAgents(ctx)
	if err != nil {
		util.WriteError(err, w)
		return
	}
	verification := make(map[string]int64)
	for _, agent := range allAgents {
		verification[agent.IdentityStatus()]++
	}

	rateLimits := make(map[string]api.RateLimitInfo)
	for scope, snapshot := range h.rateLimiter.Snapshot() {
		rateLimits[scope] = api.RateLimitInfo{
			RequestsPerMinute: snapshot.RequestsPerMinute,
			Burst:             snapshot.Burst,
			TrackedKeys:       snapshot.TrackedKeys,
		}
	}

	util.WriteJSONObject(w, &api.AdminStats{
		Agents:        agentsCount,
		Projects:      projectsCount,
		Posts:         postsCount,
		Comments:      commentsCount,
		Webhooks:      webhooksCount,
		Notifications: notificationsCount,
		Verification:  verification,
		RateLimits:    rateLimits,
		Host:          hostInfo(ctx),
	})
}

// GetAllEvents is HTTP GET handler that pages through the audit trail, newest
// first. The project query parameter narrows the trail to one project.
func (h *AdminHandler) GetAllEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	projectID := query.Get("project")

	offset := 0
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			util.WriteError(status.Errorf(status.InvalidArgument, "invalid offset: %s", raw), w)
			return
		}
		offset = parsed
	}
	limit := defaultEventPageSize
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			util.WriteError(status.Errorf(status.InvalidArgument, "invalid limit: %s", raw), w)
			return
		}
		limit = parsed
	}

	auditEvents, err := h.eventStore.Get(projectID, offset, limit, true)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	events := make([]*api.Event, 0, len(auditEvents))
	for _, e := range auditEvents {
		events = append(events, toEventResponse(e))
	}

	util.WriteJSONObject(w, events)
}

// GetAllAgents is HTTP GET handler that lists every agent with its masked key
func (h *AdminHandler) GetAllAgents(w http.ResponseWriter, r *http.Request) {
	allAgents, err := h.agentsManager.GetAllAgents(r.Context())
	if err != nil {
		util.WriteError(err, w)
		return
	}

	now := time.Now()
	respBody := make([]*api.AdminAgent, 0, len(allAgents))
	for _, agent := range allAgents {
		respBody = append(respBody, &api.AdminAgent{
			Agent:     *toAgentResponse(agent, now),
			MaskedKey: agent.KeySecret,
		})
	}

	util.WriteJSONObject(w, respBody)
}

// DeleteAgent is HTTP DELETE handler that removes an agent from the board
func (h *AdminHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	agentID := vars["agentId"]
	if len(agentID) == 0 {
		util.WriteError(status.Errorf(status.InvalidArgument, "invalid agent ID"), w)
		return
	}

	err := h.agentsManager.DeleteAgent(r.Context(), types.AdminActor, agentID)
	if err != nil {
		util.WriteError(err, w)
		return
	}

	util.WriteJSONObject(w, emptyObject{})
}

func toEventResponse(event *activity.Event) *api.Event {
	meta := make(map[string]string)
	if event.Meta != nil {
		for s, a := range event.Meta {
			meta[s] = fmt.Sprintf("%v", a)
		}
	}
	return &api.Event{
		ID:            fmt.Sprint(event.ID),
		Activity:      event.Activity.Message(),
		ActivityCode:  event.Activity.StringCode(),
		InitiatorID:   event.InitiatorID,
		InitiatorName: event.InitiatorName,
		TargetID:      event.TargetID,
		ProjectID:     event.ProjectID,
		Timestamp:     event.Timestamp,
		Meta:          meta,
	}
}

// hostInfo collects the gopsutil snapshot served in admin stats. Collection
// failures degrade to zero values instead of failing the whole response.
func hostInfo(ctx context.Context) api.HostInfo {
	info := api.HostInfo{GoroutineCount: runtime.NumGoroutine()}

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		log.WithContext(ctx).Warnf("failed reading host info: %v", err)
	} else {
		info.Hostname = hi.Hostname
		info.OS = hi.OS
		info.Platform = hi.Platform
		info.UptimeSeconds = hi.Uptime
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		log.WithContext(ctx).Warnf("failed reading memory info: %v", err)
	} else {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
		info.MemoryUsedPerc = vm.UsedPercent
	}

	return info
}
