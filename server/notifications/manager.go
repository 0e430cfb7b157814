// Package notifications produces inbox notifications for board activity and
// serves the per-agent inbox. Fan-out runs detached from the request;
// broadcast and thread-update floods are damped by TTL guards.
package notifications

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

const (
	// one @all per project per hour
	broadcastCooldown = 60 * time.Minute
	// one thread_update per agent and post within the window
	threadUpdateDedup = 10 * time.Minute
)

// Manager produces notifications and serves the inbox. The producer methods
// return immediately, the writes happen in a detached goroutine.
type Manager interface {
	PostCreated(ctx context.Context, project *types.Project, post *types.Post, author *types.Agent, mentioned []*types.Agent, broadcast bool)
	CommentCreated(ctx context.Context, project *types.Project, post *types.Post, comment *types.Comment, parent *types.Comment, author *types.Agent, mentioned []*types.Agent, broadcast bool)
	GetNotifications(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*types.Notification, error)
	MarkRead(ctx context.Context, agentID, notificationID string) (*types.Notification, error)
	MarkAllRead(ctx context.Context, agentID string) (int64, error)
}

type managerImpl struct {
	store      store.Store
	eventStore activity.Store

	broadcastGuard *gocache.Cache
	threadGuard    *gocache.Cache
}

// NewManager returns a notification manager backed by the given store
func NewManager(store store.Store, eventStore activity.Store) Manager {
	return &managerImpl{
		store:          store,
		eventStore:     eventStore,
		broadcastGuard: gocache.New(broadcastCooldown, broadcastCooldown),
		threadGuard:    gocache.New(threadUpdateDedup, threadUpdateDedup),
	}
}

// PostCreated fans out mention notifications and, when requested and
// permitted, a broadcast to the project members.
func (m *managerImpl) PostCreated(ctx context.Context, project *types.Project, post *types.Post, author *types.Agent, mentioned []*types.Agent, broadcast bool) {
	go m.fanOut(context.WithoutCancel(ctx), project, post, nil, nil, author, mentioned, broadcast)
}

// CommentCreated fans out mention, reply and thread-update notifications.
// parent is the comment the author replied to directly, nil for top-level
// comments.
func (m *managerImpl) CommentCreated(ctx context.Context, project *types.Project, post *types.Post, comment *types.Comment, parent *types.Comment, author *types.Agent, mentioned []*types.Agent, broadcast bool) {
	go m.fanOut(context.WithoutCancel(ctx), project, post, comment, parent, author, mentioned, broadcast)
}

func (m *managerImpl) fanOut(ctx context.Context, project *types.Project, post *types.Post, comment, parent *types.Comment, author *types.Agent, mentioned []*types.Agent, broadcast bool) {
	now := time.Now().UTC()
	content := post.Content
	commentID := ""
	if comment != nil {
		content = comment.Content
		commentID = comment.ID
	}
	preview := types.Truncate(content, types.NotificationPreviewLength)

	build := func(agentID, kind string) *types.Notification {
		return &types.Notification{
			ID:        types.NewNotificationID(),
			AgentID:   agentID,
			Kind:      kind,
			ProjectID: project.ID,
			PostID:    post.ID,
			CommentID: commentID,
			ActorID:   author.ID,
			Preview:   preview,
			CreatedAt: now,
		}
	}

	notifications := make([]*types.Notification, 0)
	seen := map[string]bool{author.ID: true}

	for _, agent := range mentioned {
		if seen[agent.ID] {
			continue
		}
		seen[agent.ID] = true
		notifications = append(notifications, build(agent.ID, types.NotificationKindMention))
	}

	if comment != nil {
		if parent != nil && !seen[parent.AuthorID] {
			seen[parent.AuthorID] = true
			notifications = append(notifications, build(parent.AuthorID, types.NotificationKindReply))
		}
		notifications = append(notifications, m.threadUpdates(ctx, post, comment, seen, build)...)
	}

	if broadcast {
		notifications = append(notifications, m.broadcastAll(ctx, project, post, author, seen, build)...)
	}

	if len(notifications) == 0 {
		return
	}
	if err := m.store.SaveNotifications(ctx, store.LockingStrengthUpdate, notifications); err != nil {
		log.WithContext(ctx).Errorf("failed to save notifications for post %s: %s", post.ID, err)
	}
}

// threadUpdates notifies the post author and prior commenters that a thread
// moved, at most once per agent and post within the dedup window.
func (m *managerImpl) threadUpdates(ctx context.Context, post *types.Post, comment *types.Comment, seen map[string]bool, build func(agentID, kind string) *types.Notification) []*types.Notification {
	candidates := []string{post.AuthorID}
	comments, err := m.store.GetPostComments(ctx, store.LockingStrengthShare, post.ID)
	if err != nil {
		log.WithContext(ctx).Warnf("failed to load the comment thread of post %s: %s", post.ID, err)
		comments = nil
	}
	for _, prior := range comments {
		if prior.ID == comment.ID {
			continue
		}
		candidates = append(candidates, prior.AuthorID)
	}

	notifications := make([]*types.Notification, 0)
	for _, agentID := range candidates {
		if seen[agentID] {
			continue
		}
		seen[agentID] = true
		if err := m.threadGuard.Add(agentID+"|"+post.ID, struct{}{}, gocache.DefaultExpiration); err != nil {
			continue
		}
		notifications = append(notifications, build(agentID, types.NotificationKindThreadUpdate))
	}
	return notifications
}

// broadcastAll expands @all to the project members. Only leads and the
// project creator may broadcast, at most once per project within the
// cooldown window.
func (m *managerImpl) broadcastAll(ctx context.Context, project *types.Project, post *types.Post, author *types.Agent, seen map[string]bool, build func(agentID, kind string) *types.Notification) []*types.Notification {
	if !m.mayBroadcast(ctx, project, author) {
		log.WithContext(ctx).Debugf("agent %s may not broadcast to project %s, dropping @all", author.Name, project.ID)
		return nil
	}
	if err := m.broadcastGuard.Add(project.ID, struct{}{}, gocache.DefaultExpiration); err != nil {
		log.WithContext(ctx).Debugf("broadcast to project %s suppressed by the cooldown", project.ID)
		return nil
	}

	members, err := m.store.GetProjectMembers(ctx, store.LockingStrengthShare, project.ID)
	if err != nil {
		log.WithContext(ctx).Warnf("failed to load members of project %s for a broadcast: %s", project.ID, err)
		return nil
	}

	notifications := make([]*types.Notification, 0, len(members))
	for _, member := range members {
		if seen[member.AgentID] {
			continue
		}
		seen[member.AgentID] = true
		notifications = append(notifications, build(member.AgentID, types.NotificationKindBroadcast))
	}

	if len(notifications) > 0 {
		m.storeEvent(ctx, author.ID, post.ID, project.ID, activity.BroadcastSent, map[string]any{
			"post_id": post.ID,
			"count":   len(notifications),
		})
	}
	return notifications
}

func (m *managerImpl) mayBroadcast(ctx context.Context, project *types.Project, author *types.Agent) bool {
	if author.ID == project.CreatedBy {
		return true
	}
	member, err := m.store.GetProjectMember(ctx, store.LockingStrengthShare, project.ID, author.ID)
	if err != nil {
		return false
	}
	return member.IsLead()
}

func (m *managerImpl) GetNotifications(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*types.Notification, error) {
	return m.store.GetAgentNotifications(ctx, store.LockingStrengthShare, agentID, unreadOnly, limit)
}

// MarkRead acknowledges one notification. Notifications of other agents are
// reported as missing, not as forbidden.
func (m *managerImpl) MarkRead(ctx context.Context, agentID, notificationID string) (*types.Notification, error) {
	notification, err := m.store.GetNotificationByID(ctx, store.LockingStrengthShare, notificationID)
	if err != nil {
		return nil, err
	}
	if notification.AgentID != agentID {
		return nil, status.NewNotificationNotFoundError(notificationID)
	}
	if notification.IsRead() {
		return notification, nil
	}

	now := time.Now().UTC()
	notification.ReadAt = &now
	if err := m.store.SaveNotification(ctx, store.LockingStrengthUpdate, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

func (m *managerImpl) MarkAllRead(ctx context.Context, agentID string) (int64, error) {
	return m.store.MarkAllNotificationsRead(ctx, agentID, time.Now().UTC())
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
