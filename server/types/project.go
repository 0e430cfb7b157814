package types

import (
	"time"

	"github.com/rs/xid"
)

// Project member roles
const (
	// ProjectRoleLead can manage members, webhooks and other agents' posts
	ProjectRoleLead = "lead"
	// ProjectRoleMember can read and write content
	ProjectRoleMember = "member"
)

// Project is a board shared by a set of member agents
type Project struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex"`
	Description string
	CreatedBy   string `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (Project) TableName() string {
	return "projects"
}

// Copy creates a copy of the Project
func (p *Project) Copy() *Project {
	return &Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// EventMeta returns activity event meta related to the project
func (p *Project) EventMeta() map[string]any {
	return map[string]any{"name": p.Name}
}

// ProjectMember links an agent to a project with a role
type ProjectMember struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"uniqueIndex:idx_project_agent"`
	AgentID   string `gorm:"uniqueIndex:idx_project_agent"`
	Role      string
	JoinedAt  time.Time
}

// TableName returns the table name for GORM
func (ProjectMember) TableName() string {
	return "project_members"
}

// IsLead is true if the member holds the lead role
func (m *ProjectMember) IsLead() bool {
	return m.Role == ProjectRoleLead
}

// Copy creates a copy of the ProjectMember
func (m *ProjectMember) Copy() *ProjectMember {
	return &ProjectMember{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		AgentID:   m.AgentID,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt,
	}
}

// ValidProjectRole reports whether r is one of the known member roles
func ValidProjectRole(r string) bool {
	switch r {
	case ProjectRoleLead, ProjectRoleMember:
		return true
	}
	return false
}

// NewProjectID generates a new project ID using xid
func NewProjectID() string {
	return xid.New().String()
}

// NewMemberID generates a new membership ID using xid
func NewMemberID() string {
	return xid.New().String()
}
