// Package projects manages the project lifecycle and membership: creation,
// directory reads, member add and remove with role checks, and the cascading
// cleanup that runs when a project goes away.
package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

const maxProjectNameLength = 100

// Manager is the operational surface for projects and their memberships.
// Callers are identified by agent ID, the admin passes types.AdminActor.
type Manager interface {
	CreateProject(ctx context.Context, creatorID, name, description string) (*types.Project, error)
	GetAllProjects(ctx context.Context) ([]*types.Project, error)
	GetProject(ctx context.Context, projectID string) (*types.Project, error)
	UpdateProject(ctx context.Context, callerID, projectID, name, description string) (*types.Project, error)
	DeleteProject(ctx context.Context, callerID, projectID string) error
	AddMember(ctx context.Context, callerID, projectID, agentID, role string) (*types.ProjectMember, error)
	GetMembers(ctx context.Context, projectID string) ([]*types.ProjectMember, error)
	RemoveMember(ctx context.Context, callerID, projectID, agentID string) error
	CheckMember(ctx context.Context, projectID, agentID string) (*types.ProjectMember, error)
	CheckLead(ctx context.Context, projectID, agentID string) error
}

type managerImpl struct {
	store      store.Store
	eventStore activity.Store
}

// NewManager returns a project manager backed by the given store
func NewManager(store store.Store, eventStore activity.Store) Manager {
	return &managerImpl{
		store:      store,
		eventStore: eventStore,
	}
}

func validateProjectName(name string) error {
	if name == "" {
		return status.Errorf(status.InvalidArgument, "project name is required")
	}
	if len(name) > maxProjectNameLength {
		return status.Errorf(status.InvalidArgument, "project name must not exceed %d characters", maxProjectNameLength)
	}
	return nil
}

// CreateProject saves a new project and enrolls the creator as its first lead.
func (m *managerImpl) CreateProject(ctx context.Context, creatorID, name, description string) (*types.Project, error) {
	name = strings.TrimSpace(name)
	if err := validateProjectName(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	project := &types.Project{
		ID:          types.NewProjectID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var creator *types.Agent
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		var err error
		creator, err = transaction.GetAgentByID(ctx, store.LockingStrengthShare, creatorID)
		if err != nil {
			return err
		}

		_, err = transaction.GetProjectByName(ctx, store.LockingStrengthShare, name)
		if err == nil {
			return status.Errorf(status.AlreadyExists, "project name already taken: %s", name)
		}
		if sErr, ok := status.FromError(err); !ok || sErr.Type() != status.NotFound {
			return err
		}

		if err = transaction.SaveProject(ctx, store.LockingStrengthUpdate, project); err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}

		member := &types.ProjectMember{
			ID:        types.NewMemberID(),
			ProjectID: project.ID,
			AgentID:   creatorID,
			Role:      types.ProjectRoleLead,
			JoinedAt:  now,
		}
		if err = transaction.SaveProjectMember(ctx, store.LockingStrengthUpdate, member); err != nil {
			return fmt.Errorf("failed to save project membership: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, creatorID, project.ID, project.ID, activity.ProjectCreated, project.EventMeta())
	m.storeEvent(ctx, creatorID, creatorID, project.ID, activity.ProjectMemberAdded, map[string]any{
		"name": creator.Name,
		"role": types.ProjectRoleLead,
	})

	return project, nil
}

func (m *managerImpl) GetAllProjects(ctx context.Context) ([]*types.Project, error) {
	return m.store.GetAllProjects(ctx, store.LockingStrengthShare)
}

func (m *managerImpl) GetProject(ctx context.Context, projectID string) (*types.Project, error) {
	return m.store.GetProjectByID(ctx, store.LockingStrengthShare, projectID)
}

// UpdateProject changes the name and description. The caller must be the
// admin, the creator or a lead member.
func (m *managerImpl) UpdateProject(ctx context.Context, callerID, projectID, name, description string) (*types.Project, error) {
	name = strings.TrimSpace(name)
	if err := validateProjectName(name); err != nil {
		return nil, err
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, projectID)
	defer unlock()

	var project *types.Project
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		var err error
		project, err = transaction.GetProjectByID(ctx, store.LockingStrengthUpdate, projectID)
		if err != nil {
			return err
		}
		if err = m.requireLead(ctx, transaction, project, callerID); err != nil {
			return err
		}

		if name != project.Name {
			_, err = transaction.GetProjectByName(ctx, store.LockingStrengthShare, name)
			if err == nil {
				return status.Errorf(status.AlreadyExists, "project name already taken: %s", name)
			}
			if sErr, ok := status.FromError(err); !ok || sErr.Type() != status.NotFound {
				return err
			}
		}

		project.Name = name
		project.Description = strings.TrimSpace(description)
		project.UpdatedAt = time.Now().UTC()

		return transaction.SaveProject(ctx, store.LockingStrengthUpdate, project)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, callerID, projectID, projectID, activity.ProjectUpdated, project.EventMeta())
	return project, nil
}

// DeleteProject removes the project together with its posts, comments,
// memberships, webhooks and notifications. Only the creator or the admin may
// delete, leads may not.
func (m *managerImpl) DeleteProject(ctx context.Context, callerID, projectID string) error {
	unlock := m.store.AcquireWriteLockByUID(ctx, projectID)
	defer unlock()

	var deleted *types.Project
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		project, err := transaction.GetProjectByID(ctx, store.LockingStrengthUpdate, projectID)
		if err != nil {
			return err
		}
		if callerID != types.AdminActor && callerID != project.CreatedBy {
			return status.Errorf(status.PermissionDenied, "only the project creator or the admin can delete a project")
		}

		// Comments resolve their project through posts, so they go first.
		if err = transaction.DeleteCommentsByProjectID(ctx, projectID); err != nil {
			return fmt.Errorf("failed to delete project comments: %w", err)
		}
		if err = transaction.DeletePostsByProjectID(ctx, projectID); err != nil {
			return fmt.Errorf("failed to delete project posts: %w", err)
		}
		if err = transaction.DeleteProjectMembersByProjectID(ctx, projectID); err != nil {
			return fmt.Errorf("failed to delete project memberships: %w", err)
		}
		if err = transaction.DeleteWebhooksByProjectID(ctx, projectID); err != nil {
			return fmt.Errorf("failed to delete project webhooks: %w", err)
		}
		if err = transaction.DeleteNotificationsByProjectID(ctx, projectID); err != nil {
			return fmt.Errorf("failed to delete project notifications: %w", err)
		}
		if err = transaction.DeleteProject(ctx, projectID); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}

		deleted = project
		return nil
	})
	if err != nil {
		return err
	}

	m.storeEvent(ctx, callerID, projectID, projectID, activity.ProjectDeleted, deleted.EventMeta())
	return nil
}

// AddMember enrolls an existing agent. The caller must hold the lead role,
// an empty role defaults to member.
func (m *managerImpl) AddMember(ctx context.Context, callerID, projectID, agentID, role string) (*types.ProjectMember, error) {
	if role == "" {
		role = types.ProjectRoleMember
	}
	if !types.ValidProjectRole(role) {
		return nil, status.Errorf(status.InvalidArgument, "invalid member role: %s", role)
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, projectID)
	defer unlock()

	var member *types.ProjectMember
	var agent *types.Agent
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		project, err := transaction.GetProjectByID(ctx, store.LockingStrengthUpdate, projectID)
		if err != nil {
			return err
		}
		if err = m.requireLead(ctx, transaction, project, callerID); err != nil {
			return err
		}

		agent, err = transaction.GetAgentByID(ctx, store.LockingStrengthShare, agentID)
		if err != nil {
			return err
		}

		_, err = transaction.GetProjectMember(ctx, store.LockingStrengthShare, projectID, agentID)
		if err == nil {
			return status.Errorf(status.AlreadyExists, "agent is already a member of this project")
		}
		if sErr, ok := status.FromError(err); !ok || sErr.Type() != status.NotFound {
			return err
		}

		member = &types.ProjectMember{
			ID:        types.NewMemberID(),
			ProjectID: projectID,
			AgentID:   agentID,
			Role:      role,
			JoinedAt:  time.Now().UTC(),
		}
		return transaction.SaveProjectMember(ctx, store.LockingStrengthUpdate, member)
	})
	if err != nil {
		return nil, err
	}

	m.storeEvent(ctx, callerID, agentID, projectID, activity.ProjectMemberAdded, map[string]any{
		"name": agent.Name,
		"role": role,
	})
	return member, nil
}

func (m *managerImpl) GetMembers(ctx context.Context, projectID string) ([]*types.ProjectMember, error) {
	_, err := m.store.GetProjectByID(ctx, store.LockingStrengthShare, projectID)
	if err != nil {
		return nil, err
	}
	return m.store.GetProjectMembers(ctx, store.LockingStrengthShare, projectID)
}

// RemoveMember drops a membership. Leads remove anyone, members remove
// themselves. The only lead of a project cannot be removed.
func (m *managerImpl) RemoveMember(ctx context.Context, callerID, projectID, agentID string) error {
	unlock := m.store.AcquireWriteLockByUID(ctx, projectID)
	defer unlock()

	var removed *types.Agent
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		project, err := transaction.GetProjectByID(ctx, store.LockingStrengthUpdate, projectID)
		if err != nil {
			return err
		}
		if callerID != agentID {
			if err = m.requireLead(ctx, transaction, project, callerID); err != nil {
				return err
			}
		}

		member, err := transaction.GetProjectMember(ctx, store.LockingStrengthShare, projectID, agentID)
		if err != nil {
			return err
		}

		if member.IsLead() {
			members, err := transaction.GetProjectMembers(ctx, store.LockingStrengthShare, projectID)
			if err != nil {
				return err
			}
			leads := 0
			for _, pm := range members {
				if pm.IsLead() {
					leads++
				}
			}
			if leads <= 1 {
				return status.Errorf(status.PreconditionFailed, "cannot remove the only lead of a project, assign another lead first")
			}
		}

		removed, err = transaction.GetAgentByID(ctx, store.LockingStrengthShare, agentID)
		if err != nil {
			return err
		}

		return transaction.DeleteProjectMember(ctx, projectID, agentID)
	})
	if err != nil {
		return err
	}

	m.storeEvent(ctx, callerID, agentID, projectID, activity.ProjectMemberRemoved, map[string]any{"name": removed.Name})
	return nil
}

// CheckMember returns the membership of the agent or a permission error
// when the agent does not belong to the project.
func (m *managerImpl) CheckMember(ctx context.Context, projectID, agentID string) (*types.ProjectMember, error) {
	member, err := m.store.GetProjectMember(ctx, store.LockingStrengthShare, projectID, agentID)
	if err != nil {
		if sErr, ok := status.FromError(err); ok && sErr.Type() == status.NotFound {
			return nil, status.NewNotAMemberError()
		}
		return nil, err
	}
	return member, nil
}

// CheckLead returns nil when the agent may manage the project.
func (m *managerImpl) CheckLead(ctx context.Context, projectID, agentID string) error {
	project, err := m.store.GetProjectByID(ctx, store.LockingStrengthShare, projectID)
	if err != nil {
		return err
	}
	return m.requireLead(ctx, m.store, project, agentID)
}

// requireLead passes the admin, the project creator and lead members.
func (m *managerImpl) requireLead(ctx context.Context, transaction store.Store, project *types.Project, callerID string) error {
	if callerID == types.AdminActor || callerID == project.CreatedBy {
		return nil
	}
	member, err := transaction.GetProjectMember(ctx, store.LockingStrengthShare, project.ID, callerID)
	if err != nil {
		if sErr, ok := status.FromError(err); ok && sErr.Type() == status.NotFound {
			return status.NewNotAMemberError()
		}
		return err
	}
	if !member.IsLead() {
		return status.NewNotALeadError()
	}
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
