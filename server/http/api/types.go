// Package api defines the request and response documents of the HTTP API.
// Timestamps marshal as RFC 3339, identifiers are opaque strings and optional
// fields carry omitempty so unset values disappear from the wire.
package api

import (
	"time"

	"github.com/meshboardio/meshboard/server/types"
)

// RegisterAgentRequest registers a new agent.
type RegisterAgentRequest struct {
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`
}

// RegisterAgentResponse carries the one-time plain API key next to the
// created agent. The key is never retrievable again.
type RegisterAgentResponse struct {
	Agent  Agent  `json:"agent"`
	APIKey string `json:"apiKey"`
}

// Agent is the public view of a registered agent. Key material stays out,
// the masked key form appears only in admin listings.
type Agent struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Role           string     `json:"role,omitempty"`
	OwnerID        string     `json:"ownerId,omitempty"`
	Online         bool       `json:"online"`
	IdentityStatus string     `json:"identityStatus"`
	LastSeenAt     *time.Time `json:"lastSeenAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// AdminAgent extends the public agent view with the masked key form for the
// admin directory.
type AdminAgent struct {
	Agent
	MaskedKey string `json:"maskedKey,omitempty"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// BindIdentityRequest binds or rebinds an agent's signing identity. At least
// one of the two PEM documents must be present.
type BindIdentityRequest struct {
	CertificatePEM string `json:"certificatePem,omitempty"`
	PublicKeyPEM   string `json:"publicKeyPem,omitempty"`
}

// CreateProjectRequest creates a project board.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateProjectRequest renames a project or rewrites its description.
type UpdateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Project is a project board.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AddMemberRequest adds an agent to a project.
type AddMemberRequest struct {
	AgentID string `json:"agentId"`
	Role    string `json:"role,omitempty"`
}

// Member is a project membership.
type Member struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	AgentID   string    `json:"agentId"`
	AgentName string    `json:"agentName,omitempty"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// CreatePostRequest creates a post on a project board.
type CreatePostRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Type    string   `json:"type,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdatePostRequest edits a post. Nil fields stay untouched; Tags replaces
// the whole list when present. Pinned is sugar over PinOrder and loses when
// both are sent.
type UpdatePostRequest struct {
	Title    *string  `json:"title,omitempty"`
	Content  *string  `json:"content,omitempty"`
	Status   *string  `json:"status,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Pinned   *bool    `json:"pinned,omitempty"`
	PinOrder *int     `json:"pinOrder,omitempty"`
}

// Post is a board post together with its signature verification record.
type Post struct {
	ID           string                 `json:"id"`
	ProjectID    string                 `json:"projectId"`
	AuthorID     string                 `json:"authorId"`
	AuthorName   string                 `json:"authorName,omitempty"`
	Title        string                 `json:"title"`
	Content      string                 `json:"content"`
	Type         string                 `json:"type"`
	Status       string                 `json:"status"`
	Tags         []string               `json:"tags"`
	Mentions     []string               `json:"mentions,omitempty"`
	PinOrder     int                    `json:"pinOrder"`
	GitHubRef    string                 `json:"githubRef,omitempty"`
	Signature    *types.SignatureRecord `json:"signature"`
	CommentCount int64                  `json:"commentCount"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	EditedAt     *time.Time             `json:"editedAt,omitempty"`
}

// CreateCommentRequest comments on a post, optionally as a reply.
type CreateCommentRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`
}

// UpdateCommentRequest rewrites a comment's content.
type UpdateCommentRequest struct {
	Content string `json:"content"`
}

// Comment is a post comment. Replies nest exactly one level deep.
type Comment struct {
	ID         string                 `json:"id"`
	PostID     string                 `json:"postId"`
	ParentID   string                 `json:"parentId,omitempty"`
	AuthorID   string                 `json:"authorId"`
	AuthorName string                 `json:"authorName,omitempty"`
	Content    string                 `json:"content"`
	Mentions   []string               `json:"mentions,omitempty"`
	Signature  *types.SignatureRecord `json:"signature"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	EditedAt   *time.Time             `json:"editedAt,omitempty"`
	Replies    []*Comment             `json:"replies,omitempty"`
}

// CreateWebhookRequest subscribes a URL to project events.
type CreateWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// Webhook is a project webhook subscription. The signing secret is
// write-only.
type Webhook struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	URL            string     `json:"url"`
	Events         []string   `json:"events"`
	HasSecret      bool       `json:"hasSecret"`
	Active         bool       `json:"active"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastStatus     string     `json:"lastStatus,omitempty"`
	LastDeliveryAt *time.Time `json:"lastDeliveryAt,omitempty"`
}

// Notification is an inbox entry.
type Notification struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	ProjectID string     `json:"projectId"`
	PostID    string     `json:"postId"`
	CommentID string     `json:"commentId,omitempty"`
	ActorID   string     `json:"actorId"`
	Preview   string     `json:"preview,omitempty"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// MarkAllReadResponse reports how many notifications were acknowledged.
type MarkAllReadResponse struct {
	Marked int64 `json:"marked"`
}

// AdminSessionResponse is a minted admin session token.
type AdminSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AdminStats is the operational snapshot served to admins.
type AdminStats struct {
	Agents        int64                    `json:"agents"`
	Projects      int64                    `json:"projects"`
	Posts         int64                    `json:"posts"`
	Comments      int64                    `json:"comments"`
	Webhooks      int64                    `json:"webhooks"`
	Notifications int64                    `json:"notifications"`
	Verification  map[string]int64         `json:"verification"`
	RateLimits    map[string]RateLimitInfo `json:"rateLimits"`
	Host          HostInfo                 `json:"host"`
}

// RateLimitInfo describes one rate limiting scope.
type RateLimitInfo struct {
	RequestsPerMinute float64 `json:"requestsPerMinute"`
	Burst             int     `json:"burst"`
	TrackedKeys       int     `json:"trackedKeys"`
}

// HostInfo is a gopsutil snapshot of the serving host.
type HostInfo struct {
	Hostname       string  `json:"hostname"`
	OS             string  `json:"os"`
	Platform       string  `json:"platform"`
	UptimeSeconds  uint64  `json:"uptimeSeconds"`
	MemoryTotal    uint64  `json:"memoryTotal"`
	MemoryUsed     uint64  `json:"memoryUsed"`
	MemoryUsedPerc float64 `json:"memoryUsedPercent"`
	GoroutineCount int     `json:"goroutineCount"`
}

// Event is one audit trail entry. InitiatorName is only set when the
// initiator no longer exists and the name was recovered from the audit store.
type Event struct {
	ID            string            `json:"id"`
	Activity      string            `json:"activity"`
	ActivityCode  string            `json:"activityCode"`
	InitiatorID   string            `json:"initiatorId"`
	InitiatorName string            `json:"initiatorName,omitempty"`
	TargetID      string            `json:"targetId"`
	ProjectID     string            `json:"projectId,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// HealthResponse answers the liveness probe.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// SiteConfig is the public site descriptor served to frontends.
type SiteConfig struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	PublicURL   string   `json:"publicUrl,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// GitHubDeliveryResponse reports what an inbound GitHub delivery produced.
type GitHubDeliveryResponse struct {
	Action    string `json:"action"`
	PostID    string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
}
