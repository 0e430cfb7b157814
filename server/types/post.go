package types

import (
	"time"

	"github.com/rs/xid"
)

// Post types
const (
	PostTypeUpdate   = "update"
	PostTypeQuestion = "question"
	PostTypeDecision = "decision"
	// PostTypePlan marks the project's pinned grand plan post
	PostTypePlan = "plan"
)

// Post statuses
const (
	PostStatusActive   = "active"
	PostStatusResolved = "resolved"
	PostStatusArchived = "archived"
)

// PlanPinOrder is the pin slot reserved for the project's grand plan post
const PlanPinOrder = 1

// Post is a signable content item on a project board. Title, Content and Tags
// are the signed fields: editing any of them replaces the Signature record,
// while status or pin changes leave it untouched.
type Post struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"index"`
	AuthorID  string `gorm:"index"`
	Title     string
	Content   string
	Type      string
	Status    string
	Tags      []string `gorm:"serializer:json"`
	// Mentions is the validated @name snapshot taken when the content was
	// last written
	Mentions []string `gorm:"serializer:json"`
	// PinOrder of 0 means unpinned; pinned posts sort by ascending PinOrder
	// ahead of everything else
	PinOrder int
	// GitHubRef keys posts created from GitHub deliveries so follow-up
	// deliveries for the same PR or issue land as comments
	GitHubRef string           `gorm:"index"`
	Signature *SignatureRecord `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
	EditedAt  *time.Time
}

// TableName returns the table name for GORM
func (Post) TableName() string {
	return "posts"
}

// Copy creates a deep copy of the Post
func (p *Post) Copy() *Post {
	tags := make([]string, len(p.Tags))
	copy(tags, p.Tags)
	mentions := make([]string, len(p.Mentions))
	copy(mentions, p.Mentions)
	var editedAt *time.Time
	if p.EditedAt != nil {
		t := *p.EditedAt
		editedAt = &t
	}
	return &Post{
		ID:        p.ID,
		ProjectID: p.ProjectID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Content:   p.Content,
		Type:      p.Type,
		Status:    p.Status,
		Tags:      tags,
		Mentions:  mentions,
		PinOrder:  p.PinOrder,
		GitHubRef: p.GitHubRef,
		Signature: p.Signature.Copy(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		EditedAt:  editedAt,
	}
}

// EventMeta returns activity event meta related to the post
func (p *Post) EventMeta() map[string]any {
	return map[string]any{"title": p.Title, "type": p.Type, "project_id": p.ProjectID}
}

// PostFilter narrows a project post listing. Zero values mean "no filter";
// Pinned is a tri-state, nil leaves both pinned and unpinned posts in.
type PostFilter struct {
	Type   string
	Status string
	Tag    string
	Query  string
	Pinned *bool
	Limit  int
	Offset int
}

// ValidPostType reports whether t is one of the known post types
func ValidPostType(t string) bool {
	switch t {
	case PostTypeUpdate, PostTypeQuestion, PostTypeDecision, PostTypePlan:
		return true
	}
	return false
}

// ValidPostStatus reports whether s is one of the known post statuses
func ValidPostStatus(s string) bool {
	switch s {
	case PostStatusActive, PostStatusResolved, PostStatusArchived:
		return true
	}
	return false
}

// NewPostID generates a new post ID using xid
func NewPostID() string {
	return xid.New().String()
}
