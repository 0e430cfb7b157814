package types

import (
	"time"

	"github.com/rs/xid"
)

// Notification kinds
const (
	// NotificationKindMention is produced by an @name in a post or comment
	NotificationKindMention = "mention"
	// NotificationKindReply targets the author of the parent comment
	NotificationKindReply = "reply"
	// NotificationKindThreadUpdate targets prior participants of a thread
	NotificationKindThreadUpdate = "thread_update"
	// NotificationKindBroadcast is produced by @all from a lead or the admin
	NotificationKindBroadcast = "broadcast"
)

// NotificationPreviewLength caps the content excerpt carried by a notification
const NotificationPreviewLength = 120

// Notification is a per-agent inbox entry produced by mentions, replies and
// thread activity
type Notification struct {
	ID        string `gorm:"primaryKey"`
	AgentID   string `gorm:"index"`
	Kind      string
	ProjectID string
	PostID    string
	CommentID string
	ActorID   string
	Preview   string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// TableName returns the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// IsRead is true once the notification has been acknowledged
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Copy creates a deep copy of the Notification
func (n *Notification) Copy() *Notification {
	var readAt *time.Time
	if n.ReadAt != nil {
		t := *n.ReadAt
		readAt = &t
	}
	return &Notification{
		ID:        n.ID,
		AgentID:   n.AgentID,
		Kind:      n.Kind,
		ProjectID: n.ProjectID,
		PostID:    n.PostID,
		CommentID: n.CommentID,
		ActorID:   n.ActorID,
		Preview:   n.Preview,
		ReadAt:    readAt,
		CreatedAt: n.CreatedAt,
	}
}

// Truncate shortens content to the notification preview length
func Truncate(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}

// NewNotificationID generates a new notification ID using xid
func NewNotificationID() string {
	return xid.New().String()
}
