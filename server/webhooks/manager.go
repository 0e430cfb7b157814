// Package webhooks manages outbound project webhooks and delivers board
// events to them.
package webhooks

import (
	"context"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/projects"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
	"github.com/meshboardio/meshboard/util"
)

// Manager is the operational surface for webhook registrations. All
// operations require the lead role on the owning project.
type Manager interface {
	CreateWebhook(ctx context.Context, callerID, projectID, rawURL string, events []string, secret string) (*types.Webhook, error)
	GetProjectWebhooks(ctx context.Context, callerID, projectID string) ([]*types.Webhook, error)
	DeleteWebhook(ctx context.Context, callerID, webhookID string) error
}

type managerImpl struct {
	store           store.Store
	eventStore      activity.Store
	projectsManager projects.Manager
}

// NewManager returns a webhook manager backed by the given store
func NewManager(store store.Store, eventStore activity.Store, projectsManager projects.Manager) Manager {
	return &managerImpl{
		store:           store,
		eventStore:      eventStore,
		projectsManager: projectsManager,
	}
}

func validateWebhookURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return status.Errorf(status.InvalidArgument, "invalid webhook url: %s", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return status.Errorf(status.InvalidArgument, "webhook url must be an absolute http or https url")
	}
	return nil
}

// CreateWebhook registers a delivery target on the project. An empty event
// list subscribes to every event.
func (m *managerImpl) CreateWebhook(ctx context.Context, callerID, projectID, rawURL string, events []string, secret string) (*types.Webhook, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateWebhookURL(rawURL); err != nil {
		return nil, err
	}

	if len(events) == 0 {
		events = []string{types.WebhookEventPostCreated, types.WebhookEventPostUpdated, types.WebhookEventCommentCreated}
	}
	for i, event := range events {
		events[i] = strings.TrimSpace(event)
	}
	if unknown := util.SliceDiff(events, types.WebhookEvents()); len(unknown) > 0 {
		return nil, status.Errorf(status.InvalidArgument, "unknown webhook events: %s", strings.Join(unknown, ", "))
	}

	if err := m.projectsManager.CheckLead(ctx, projectID, callerID); err != nil {
		return nil, err
	}

	webhook := &types.Webhook{
		ID:        types.NewWebhookID(),
		ProjectID: projectID,
		URL:       rawURL,
		Events:    events,
		Secret:    secret,
		Active:    true,
		CreatedBy: callerID,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.SaveWebhook(ctx, store.LockingStrengthUpdate, webhook); err != nil {
		return nil, err
	}

	m.storeEvent(ctx, callerID, webhook.ID, projectID, activity.WebhookCreated, map[string]any{
		"url":    webhook.URL,
		"events": webhook.Events,
	})
	return webhook, nil
}

func (m *managerImpl) GetProjectWebhooks(ctx context.Context, callerID, projectID string) ([]*types.Webhook, error) {
	if err := m.projectsManager.CheckLead(ctx, projectID, callerID); err != nil {
		return nil, err
	}
	return m.store.GetProjectWebhooks(ctx, store.LockingStrengthShare, projectID)
}

func (m *managerImpl) DeleteWebhook(ctx context.Context, callerID, webhookID string) error {
	webhook, err := m.store.GetWebhookByID(ctx, store.LockingStrengthShare, webhookID)
	if err != nil {
		return err
	}
	if err := m.projectsManager.CheckLead(ctx, webhook.ProjectID, callerID); err != nil {
		return err
	}

	if err := m.store.DeleteWebhook(ctx, webhookID); err != nil {
		return err
	}

	m.storeEvent(ctx, callerID, webhookID, webhook.ProjectID, activity.WebhookDeleted, map[string]any{"url": webhook.URL})
	return nil
}

func (m *managerImpl) storeEvent(ctx context.Context, initiatorID, targetID, projectID string, activityID activity.Activity, meta map[string]any) {
	go func() {
		_, err := m.eventStore.Save(&activity.Event{
			Timestamp:   time.Now().UTC(),
			Activity:    activityID,
			InitiatorID: initiatorID,
			TargetID:    targetID,
			ProjectID:   projectID,
			Meta:        meta,
		})
		if err != nil {
			log.WithContext(ctx).Errorf("received an error while storing an activity event, error: %s", err)
		}
	}()
}
