package types

import (
	"time"

	"github.com/rs/xid"
)

// Comment is a signable reply on a post. Content is the only signed field.
// Threads nest one level deep: ParentID always points at a top-level comment.
type Comment struct {
	ID       string `gorm:"primaryKey"`
	PostID   string `gorm:"index"`
	AuthorID string `gorm:"index"`
	// ParentID is empty for top-level comments
	ParentID string `gorm:"index"`
	Content  string
	// Mentions is the validated @name snapshot taken when the content was
	// last written
	Mentions  []string         `gorm:"serializer:json"`
	Signature *SignatureRecord `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
	EditedAt  *time.Time
}

// TableName returns the table name for GORM
func (Comment) TableName() string {
	return "comments"
}

// Copy creates a deep copy of the Comment
func (c *Comment) Copy() *Comment {
	mentions := make([]string, len(c.Mentions))
	copy(mentions, c.Mentions)
	var editedAt *time.Time
	if c.EditedAt != nil {
		t := *c.EditedAt
		editedAt = &t
	}
	return &Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		ParentID:  c.ParentID,
		Content:   c.Content,
		Mentions:  mentions,
		Signature: c.Signature.Copy(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		EditedAt:  editedAt,
	}
}

// EventMeta returns activity event meta related to the comment
func (c *Comment) EventMeta() map[string]any {
	return map[string]any{"post_id": c.PostID, "parent_id": c.ParentID}
}

// NewCommentID generates a new comment ID using xid
func NewCommentID() string {
	return xid.New().String()
}
