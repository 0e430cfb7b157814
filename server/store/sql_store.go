package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/telemetry"
	"github.com/meshboardio/meshboard/server/types"
)

const (
	storeSqliteFileName = "store.db"

	idQueryCondition        = "id = ?"
	nameQueryCondition      = "name = ?"
	keyHashQueryCondition   = "key_hash = ?"
	projectIDQueryCondition = "project_id = ?"
	postIDQueryCondition    = "post_id = ?"
	parentIDQueryCondition  = "parent_id = ?"
	agentIDQueryCondition   = "agent_id = ?"
	authorIDQueryCondition  = "author_id = ?"
)

// SqlStore represents the MeshBoard storage backed by a SQL database
type SqlStore struct {
	db            *gorm.DB
	resourceLocks sync.Map
	globalLock    sync.Mutex
	metrics       telemetry.AppMetrics
	storeEngine   Engine
}

// NewSqlStore creates a new SqlStore instance.
func NewSqlStore(ctx context.Context, db *gorm.DB, storeEngine Engine, metrics telemetry.AppMetrics) (*SqlStore, error) {
	sql, err := db.DB()
	if err != nil {
		return nil, err
	}

	conns, err := strconv.Atoi(os.Getenv("MB_SQL_MAX_OPEN_CONNS"))
	if err != nil {
		conns = runtime.NumCPU()
	}

	if storeEngine == SqliteStoreEngine {
		if err == nil {
			log.WithContext(ctx).Warnf("setting MB_SQL_MAX_OPEN_CONNS is not supported for sqlite, using default value 1")
		}
		conns = 1
	}

	sql.SetMaxOpenConns(conns)
	log.WithContext(ctx).Infof("Set max open db connections to %d", conns)

	err = db.AutoMigrate(
		&types.Agent{}, &types.Project{}, &types.ProjectMember{},
		&types.Post{}, &types.Comment{}, &types.Webhook{}, &types.Notification{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SqlStore{db: db, storeEngine: storeEngine, metrics: metrics}, nil
}

// AcquireGlobalLock acquires a global lock across all the resources and returns a function that releases the lock
func (s *SqlStore) AcquireGlobalLock(ctx context.Context) (unlock func()) {
	log.WithContext(ctx).Tracef("acquiring global lock")
	start := time.Now()
	s.globalLock.Lock()

	unlock = func() {
		s.globalLock.Unlock()
		log.WithContext(ctx).Tracef("released global lock in %v", time.Since(start))
	}

	took := time.Since(start)
	log.WithContext(ctx).Tracef("took %v to acquire global lock", took)
	if s.metrics != nil {
		s.metrics.StoreMetrics().CountGlobalLockAcquisitionDuration(took)
	}

	return unlock
}

// AcquireWriteLockByUID acquires a write lock for the given unique ID and returns a function that releases the lock
func (s *SqlStore) AcquireWriteLockByUID(ctx context.Context, uniqueID string) (unlock func()) {
	log.WithContext(ctx).Tracef("acquiring write lock for ID %s", uniqueID)

	start := time.Now()
	value, _ := s.resourceLocks.LoadOrStore(uniqueID, &sync.RWMutex{})
	mtx := value.(*sync.RWMutex)
	mtx.Lock()

	unlock = func() {
		mtx.Unlock()
		log.WithContext(ctx).Tracef("released write lock for ID %s in %v", uniqueID, time.Since(start))
	}

	return unlock
}

// AcquireReadLockByUID acquires a read lock for the given unique ID and returns a function that releases the lock
func (s *SqlStore) AcquireReadLockByUID(ctx context.Context, uniqueID string) (unlock func()) {
	log.WithContext(ctx).Tracef("acquiring read lock for ID %s", uniqueID)

	start := time.Now()
	value, _ := s.resourceLocks.LoadOrStore(uniqueID, &sync.RWMutex{})
	mtx := value.(*sync.RWMutex)
	mtx.RLock()

	unlock = func() {
		mtx.RUnlock()
		log.WithContext(ctx).Tracef("released read lock for ID %s in %v", uniqueID, time.Since(start))
	}

	return unlock
}

// applyLockingStrength adds a row locking clause to the query. Row locks are
// only supported by Postgres; the other engines rely on coarser locking.
func (s *SqlStore) applyLockingStrength(tx *gorm.DB, lockStrength LockingStrength) *gorm.DB {
	if lockStrength != LockingStrengthNone && s.storeEngine == PostgresStoreEngine {
		tx = tx.Clauses(clause.Locking{Strength: string(lockStrength)})
	}
	return tx
}

// ExecuteInTransaction executes the given function in a single transaction.
// The store passed to the function is bound to that transaction.
func (s *SqlStore) ExecuteInTransaction(ctx context.Context, operation func(store Store) error) error {
	startTime := time.Now()
	tx := s.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()
	err := operation(s.withTx(tx))
	if err != nil {
		return err
	}
	err = tx.Commit().Error

	log.WithContext(ctx).Tracef("transaction took %v", time.Since(startTime))
	if s.metrics != nil {
		s.metrics.StoreMetrics().CountTransactionDuration(time.Since(startTime))
	}

	return err
}

func (s *SqlStore) withTx(tx *gorm.DB) Store {
	return &SqlStore{db: tx, storeEngine: s.storeEngine}
}

// GetAllAgents returns all registered agents
func (s *SqlStore) GetAllAgents(ctx context.Context, lockStrength LockingStrength) ([]*types.Agent, error) {
	var agents []*types.Agent
	result := s.applyLockingStrength(s.db, lockStrength).Find(&agents)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting agents from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting agents from store")
	}

	return agents, nil
}

// GetAgentByID returns the agent with the given ID
func (s *SqlStore) GetAgentByID(ctx context.Context, lockStrength LockingStrength, agentID string) (*types.Agent, error) {
	var agent types.Agent
	result := s.applyLockingStrength(s.db, lockStrength).First(&agent, idQueryCondition, agentID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.NewAgentNotFoundError(agentID)
		}
		log.WithContext(ctx).Errorf("error when getting agent from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting agent from store")
	}

	return &agent, nil
}

// GetAgentByName returns the agent registered under the given logical name
func (s *SqlStore) GetAgentByName(ctx context.Context, lockStrength LockingStrength, name string) (*types.Agent, error) {
	var agent types.Agent
	result := s.applyLockingStrength(s.db, lockStrength).First(&agent, nameQueryCondition, name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(status.NotFound, "agent not found: %s", name)
		}
		log.WithContext(ctx).Errorf("error when getting agent from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting agent from store")
	}

	return &agent, nil
}

// GetAgentByKeyHash returns the agent owning the API key with the given hash
func (s *SqlStore) GetAgentByKeyHash(ctx context.Context, lockStrength LockingStrength, keyHash string) (*types.Agent, error) {
	var agent types.Agent
	result := s.applyLockingStrength(s.db, lockStrength).First(&agent, keyHashQueryCondition, keyHash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(status.NotFound, "agent not found: index lookup failed")
		}
		log.WithContext(ctx).Errorf("error when getting agent from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting agent from store")
	}

	return &agent, nil
}

// SaveAgent saves the agent to the store
func (s *SqlStore) SaveAgent(ctx context.Context, lockStrength LockingStrength, agent *types.Agent) error {
	result := s.applyLockingStrength(s.db, lockStrength).Save(agent)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving agent to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving agent to store")
	}

	return nil
}

// SaveAgentLastSeen updates only the last seen timestamp of the agent
func (s *SqlStore) SaveAgentLastSeen(ctx context.Context, agentID string, lastSeen time.Time) error {
	result := s.db.Model(&types.Agent{}).Where(idQueryCondition, agentID).Update("last_seen_at", lastSeen)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when updating agent last seen in the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue updating agent last seen in store")
	}
	if result.RowsAffected == 0 {
		return status.NewAgentNotFoundError(agentID)
	}

	return nil
}

// DeleteAgent removes the agent from the store
func (s *SqlStore) DeleteAgent(ctx context.Context, agentID string) error {
	result := s.db.Delete(&types.Agent{}, idQueryCondition, agentID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting agent from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting agent from store")
	}
	if result.RowsAffected == 0 {
		return status.NewAgentNotFoundError(agentID)
	}

	return nil
}

// CountAgents returns the number of registered agents
func (s *SqlStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Model(&types.Agent{}).Count(&count)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting agents in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue counting agents in store")
	}

	return count, nil
}

// GetAllProjects returns all projects
func (s *SqlStore) GetAllProjects(ctx context.Context, lockStrength LockingStrength) ([]*types.Project, error) {
	var projects []*types.Project
	result := s.applyLockingStrength(s.db, lockStrength).Find(&projects)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting projects from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting projects from store")
	}

	return projects, nil
}

// GetProjectByID returns the project with the given ID
func (s *SqlStore) GetProjectByID(ctx context.Context, lockStrength LockingStrength, projectID string) (*types.Project, error) {
	var project types.Project
	result := s.applyLockingStrength(s.db, lockStrength).First(&project, idQueryCondition, projectID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.NewProjectNotFoundError(projectID)
		}
		log.WithContext(ctx).Errorf("error when getting project from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting project from store")
	}

	return &project, nil
}

// GetProjectByName returns the project with the given unique name
func (s *SqlStore) GetProjectByName(ctx context.Context, lockStrength LockingStrength, name string) (*types.Project, error) {
	var project types.Project
	result := s.applyLockingStrength(s.db, lockStrength).First(&project, nameQueryCondition, name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(status.NotFound, "project not found: %s", name)
		}
		log.WithContext(ctx).Errorf("error when getting project from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting project from store")
	}

	return &project, nil
}

// SaveProject saves the project to the store
func (s *SqlStore) SaveProject(ctx context.Context, lockStrength LockingStrength, project *types.Project) error {
	result := s.applyLockingStrength(s.db, lockStrength).Save(project)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving project to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving project to store")
	}

	return nil
}

// DeleteProject removes the project from the store
func (s *SqlStore) DeleteProject(ctx context.Context, projectID string) error {
	result := s.db.Delete(&types.Project{}, idQueryCondition, projectID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting project from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting project from store")
	}
	if result.RowsAffected == 0 {
		return status.NewProjectNotFoundError(projectID)
	}

	return nil
}

// CountProjects returns the number of projects
func (s *SqlStore) CountProjects(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Model(&types.Project{}).Count(&count)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting projects in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue counting projects in store")
	}

	return count, nil
}

// GetProjectMembers returns all memberships of the given project
func (s *SqlStore) GetProjectMembers(ctx context.Context, lockStrength LockingStrength, projectID string) ([]*types.ProjectMember, error) {
	var members []*types.ProjectMember
	result := s.applyLockingStrength(s.db, lockStrength).Find(&members, projectIDQueryCondition, projectID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting project members from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting project members from store")
	}

	return members, nil
}

// GetProjectMember returns the membership of the given agent in the given project
func (s *SqlStore) GetProjectMember(ctx context.Context, lockStrength LockingStrength, projectID, agentID string) (*types.ProjectMember, error) {
	var member types.ProjectMember
	result := s.applyLockingStrength(s.db, lockStrength).
		First(&member, "project_id = ? AND agent_id = ?", projectID, agentID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(status.NotFound, "membership not found")
		}
		log.WithContext(ctx).Errorf("error when getting project member from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting project member from store")
	}

	return &member, nil
}

// GetAgentMemberships returns all project memberships of the given agent
func (s *SqlStore) GetAgentMemberships(ctx context.Context, lockStrength LockingStrength, agentID string) ([]*types.ProjectMember, error) {
	var members []*types.ProjectMember
	result := s.applyLockingStrength(s.db, lockStrength).Find(&members, agentIDQueryCondition, agentID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting agent memberships from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting agent memberships from store")
	}

	return members, nil
}

// SaveProjectMember saves the membership to the store
func (s *SqlStore) SaveProjectMember(ctx context.Context, lockStrength LockingStrength, member *types.ProjectMember) error {
	result := s.applyLockingStrength(s.db, lockStrength).Save(member)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving project member to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving project member to store")
	}

	return nil
}

// DeleteProjectMember removes the membership of the given agent from the given project
func (s *SqlStore) DeleteProjectMember(ctx context.Context, projectID, agentID string) error {
	result := s.db.Delete(&types.ProjectMember{}, "project_id = ? AND agent_id = ?", projectID, agentID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting project member from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting project member from store")
	}
	if result.RowsAffected == 0 {
		return status.Errorf(status.NotFound, "membership not found")
	}

	return nil
}

// DeleteProjectMembersByProjectID removes all memberships of the given project
func (s *SqlStore) DeleteProjectMembersByProjectID(ctx context.Context, projectID string) error {
	result := s.db.Delete(&types.ProjectMember{}, projectIDQueryCondition, projectID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting project members from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting project members from store")
	}

	return nil
}

// DeleteMembershipsByAgentID removes all project memberships of the given agent
func (s *SqlStore) DeleteMembershipsByAgentID(ctx context.Context, agentID string) error {
	result := s.db.Delete(&types.ProjectMember{}, agentIDQueryCondition, agentID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting agent memberships from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting agent memberships from store")
	}

	return nil
}

// GetAllPosts returns all posts across all projects
func (s *SqlStore) GetAllPosts(ctx context.Context, lockStrength LockingStrength) ([]*types.Post, error) {
	var posts []*types.Post
	result := s.applyLockingStrength(s.db, lockStrength).Find(&posts)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting posts from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting posts from store")
	}

	return posts, nil
}

// GetPostByID returns the post with the given ID
func (s *SqlStore) GetPostByID(ctx context.Context, lockStrength LockingStrength, postID string) (*types.Post, error) {
	var post types.Post
	result := s.applyLockingStrength(s.db, lockStrength).First(&post, idQueryCondition, postID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.NewPostNotFoundError(postID)
		}
		log.WithContext(ctx).Errorf("error when getting post from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting post from store")
	}

	return &post, nil
}

// GetProjectPosts returns the posts of the project narrowed by the filter.
// Pinned posts come first in ascending pin order, the rest newest first.
func (s *SqlStore) GetProjectPosts(ctx context.Context, lockStrength LockingStrength, projectID string, filter types.PostFilter) ([]*types.Post, error) {
	tx := s.applyLockingStrength(s.db, lockStrength).Where(projectIDQueryCondition, projectID)
	if filter.Type != "" {
		tx = tx.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.Tag != "" {
		// tags are persisted as a JSON array, match the quoted literal
		tx = tx.Where("tags LIKE ?", fmt.Sprintf(`%%"%s"%%`, filter.Tag))
	}
	if filter.Query != "" {
		pattern := "%" + strings.ToLower(filter.Query) + "%"
		tx = tx.Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", pattern, pattern)
	}
	if filter.Pinned != nil {
		if *filter.Pinned {
			tx = tx.Where("pin_order > 0")
		} else {
			tx = tx.Where("pin_order = 0")
		}
	}

	tx = tx.Order("pin_order = 0").Order("pin_order").Order("created_at DESC")
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}

	var posts []*types.Post
	result := tx.Find(&posts)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting project posts from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting project posts from store")
	}

	return posts, nil
}

// GetProjectPlanPost returns the project's pinned plan post
func (s *SqlStore) GetProjectPlanPost(ctx context.Context, lockStrength LockingStrength, projectID string) (*types.Post, error) {
	var post types.Post
	result := s.applyLockingStrength(s.db, lockStrength).
		First(&post, "project_id = ? AND type = ? AND pin_order > 0", projectID, types.PostTypePlan)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(status.NotFound, "plan post not found")
		}
		log.WithContext(ctx).Errorf("error when getting plan post from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting plan post from store")
	}

	return &post, nil
}

// GetPostByGitHubRef returns the project post created from the given GitHub reference
func (s *SqlStore) GetPostByGitHubRef(ctx context.Context, lockStrength LockingStrength, projectID, githubRef string) (*types.Post, error) {
	var post types.Post
	result := s.applyLockingStrength(s.db, lockStrength).
		First(&post, "project_id = ? AND git_hub_ref = ?", projectID, githubRef)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(status.NotFound, "post not found for reference %s", githubRef)
		}
		log.WithContext(ctx).Errorf("error when getting post by GitHub reference from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting post from store")
	}

	return &post, nil
}

// GetPostsByAuthorID returns all posts written by the given agent
func (s *SqlStore) GetPostsByAuthorID(ctx context.Context, lockStrength LockingStrength, authorID string) ([]*types.Post, error) {
	var posts []*types.Post
	result := s.applyLockingStrength(s.db, lockStrength).Find(&posts, authorIDQueryCondition, authorID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting author posts from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting author posts from store")
	}

	return posts, nil
}

// SavePost saves the post to the store
func (s *SqlStore) SavePost(ctx context.Context, lockStrength LockingStrength, post *types.Post) error {
	result := s.applyLockingStrength(s.db, lockStrength).Save(post)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving post to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving post to store")
	}

	return nil
}

// DeletePost removes the post from the store
func (s *SqlStore) DeletePost(ctx context.Context, postID string) error {
	result := s.db.Delete(&types.Post{}, idQueryCondition, postID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting post from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting post from store")
	}
	if result.RowsAffected == 0 {
		return status.NewPostNotFoundError(postID)
	}

	return nil
}

// DeletePostsByProjectID removes all posts of the given project
func (s *SqlStore) DeletePostsByProjectID(ctx context.Context, projectID string) error {
	result := s.db.Delete(&types.Post{}, projectIDQueryCondition, projectID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting project posts from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting project posts from store")
	}

	return nil
}

// CountPosts returns the number of posts
func (s *SqlStore) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Model(&types.Post{}).Count(&count)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting posts in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue counting posts in store")
	}

	return count, nil
}

// GetAllComments returns all comments across all posts
func (s *SqlStore) GetAllComments(ctx context.Context, lockStrength LockingStrength) ([]*types.Comment, error) {
	var comments []*types.Comment
	result := s.applyLockingStrength(s.db, lockStrength).Find(&comments)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting comments from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting comments from store")
	}

	return comments, nil
}

// GetCommentByID returns the comment with the given ID
func (s *SqlStore) GetCommentByID(ctx context.Context, lockStrength LockingStrength, commentID string) (*types.Comment, error) {
	var comment types.Comment
	result := s.applyLockingStrength(s.db, lockStrength).First(&comment, idQueryCondition, commentID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.NewCommentNotFoundError(commentID)
		}
		log.WithContext(ctx).Errorf("error when getting comment from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting comment from store")
	}

	return &comment, nil
}

// GetPostComments returns the comments of the post in chronological order
func (s *SqlStore) GetPostComments(ctx context.Context, lockStrength LockingStrength, postID string) ([]*types.Comment, error) {
	var comments []*types.Comment
	result := s.applyLockingStrength(s.db, lockStrength).
		Order("created_at").Order("id").
		Find(&comments, postIDQueryCondition, postID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting post comments from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting post comments from store")
	}

	return comments, nil
}

// CountPostComments returns the number of comments on the given post
func (s *SqlStore) CountPostComments(ctx context.Context, postID string) (int64, error) {
	var count int64
	result := s.db.Model(&types.Comment{}).Where(postIDQueryCondition, postID).Count(&count)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting post comments in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue counting post comments in store")
	}

	return count, nil
}

// GetPostCommentCounts returns the comment count per post for all posts of the project
func (s *SqlStore) GetPostCommentCounts(ctx context.Context, projectID string) (map[string]int64, error) {
	var rows []struct {
		PostID string
		Total  int64
	}
	sub := s.db.Model(&types.Post{}).Select("id").Where(projectIDQueryCondition, projectID)
	result := s.db.Model(&types.Comment{}).
		Select("post_id, count(*) as total").
		Where("post_id IN (?)", sub).
		Group("post_id").
		Find(&rows)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting project comments in the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue counting project comments in store")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.PostID] = row.Total
	}

	return counts, nil
}

// SaveComment saves the comment to the store
func (s *SqlStore) SaveComment(ctx context.Context, lockStrength LockingStrength, comment *types.Comment) error {
	result := s.applyLockingStrength(s.db, lockStrength).Save(comment)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving comment to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving comment to store")
	}

	return nil
}

// DeleteComment removes the comment from the store
func (s *SqlStore) DeleteComment(ctx context.Context, commentID string) error {
	result := s.db.Delete(&types.Comment{}, idQueryCondition, commentID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting comment from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting comment from store")
	}
	if result.RowsAffected == 0 {
		return status.NewCommentNotFoundError(commentID)
	}

	return nil
}

// DeleteCommentsByPostID removes all comments of the given post
func (s *SqlStore) DeleteCommentsByPostID(ctx context.Context, postID string) error {
	result := s.db.Delete(&types.Comment{}, postIDQueryCondition, postID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting post comments from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting post comments from store")
	}

	return nil
}

// DeleteCommentReplies removes all replies nested under the given comment
func (s *SqlStore) DeleteCommentReplies(ctx context.Context, parentID string) error {
	result := s.db.Delete(&types.Comment{}, parentIDQueryCondition, parentID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting comment replies from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting comment replies from store")
	}

	return nil
}

// DeleteCommentsByProjectID removes all comments on posts of the given project
func (s *SqlStore) DeleteCommentsByProjectID(ctx context.Context, projectID string) error {
	sub := s.db.Model(&types.Post{}).Select("id").Where(projectIDQueryCondition, projectID)
	result := s.db.Where("post_id IN (?)", sub).Delete(&types.Comment{})
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting project comments from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting project comments from store")
	}

	return nil
}

// DeleteCommentsByAuthorID removes all comments written by the given agent
func (s *SqlStore) DeleteCommentsByAuthorID(ctx context.Context, authorID string) error {
	result := s.db.Delete(&types.Comment{}, authorIDQueryCondition, authorID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting author comments from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting author comments from store")
	}

	return nil
}

// CountComments returns the number of comments
func (s *SqlStore) CountComments(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Model(&types.Comment{}).Count(&count)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting comments in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue counting comments in store")
	}

	return count, nil
}

// GetWebhookByID returns the webhook with the given ID
func (s *SqlStore) GetWebhookByID(ctx context.Context, lockStrength LockingStrength, webhookID string) (*types.Webhook, error) {
	var webhook types.Webhook
	result := s.applyLockingStrength(s.db, lockStrength).First(&webhook, idQueryCondition, webhookID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.NewWebhookNotFoundError(webhookID)
		}
		log.WithContext(ctx).Errorf("error when getting webhook from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting webhook from store")
	}

	return &webhook, nil
}

// GetProjectWebhooks returns all webhooks registered on the given project
func (s *SqlStore) GetProjectWebhooks(ctx context.Context, lockStrength LockingStrength, projectID string) ([]*types.Webhook, error) {
	var webhooks []*types.Webhook
	result := s.applyLockingStrength(s.db, lockStrength).Find(&webhooks, projectIDQueryCondition, projectID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting project webhooks from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting project webhooks from store")
	}

	return webhooks, nil
}

// SaveWebhook saves the webhook to the store
func (s *SqlStore) SaveWebhook(ctx context.Context, lockStrength LockingStrength, webhook *types.Webhook) error {
	result := s.applyLockingStrength(s.db, lockStrength).Save(webhook)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving webhook to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving webhook to store")
	}

	return nil
}

// SaveWebhookDelivery updates only the delivery outcome columns of the webhook
func (s *SqlStore) SaveWebhookDelivery(ctx context.Context, webhookID, deliveryStatus string, deliveredAt time.Time) error {
	result := s.db.Model(&types.Webhook{}).Where(idQueryCondition, webhookID).
		Updates(map[string]any{"last_status": deliveryStatus, "last_delivery_at": deliveredAt})
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when updating webhook delivery in the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue updating webhook delivery in store")
	}
	if result.RowsAffected == 0 {
		return status.NewWebhookNotFoundError(webhookID)
	}

	return nil
}

// DeleteWebhook removes the webhook from the store
func (s *SqlStore) DeleteWebhook(ctx context.Context, webhookID string) error {
	result := s.db.Delete(&types.Webhook{}, idQueryCondition, webhookID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting webhook from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting webhook from store")
	}
	if result.RowsAffected == 0 {
		return status.NewWebhookNotFoundError(webhookID)
	}

	return nil
}

// DeleteWebhooksByProjectID removes all webhooks of the given project
func (s *SqlStore) DeleteWebhooksByProjectID(ctx context.Context, projectID string) error {
	result := s.db.Delete(&types.Webhook{}, projectIDQueryCondition, projectID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting project webhooks from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting project webhooks from store")
	}

	return nil
}

// CountWebhooks returns the number of webhooks
func (s *SqlStore) CountWebhooks(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Model(&types.Webhook{}).Count(&count)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting webhooks in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue counting webhooks in store")
	}

	return count, nil
}

// GetNotificationByID returns the notification with the given ID
func (s *SqlStore) GetNotificationByID(ctx context.Context, lockStrength LockingStrength, notificationID string) (*types.Notification, error) {
	var notification types.Notification
	result := s.applyLockingStrength(s.db, lockStrength).First(&notification, idQueryCondition, notificationID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, status.NewNotificationNotFoundError(notificationID)
		}
		log.WithContext(ctx).Errorf("error when getting notification from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting notification from store")
	}

	return &notification, nil
}

// GetAgentNotifications returns the inbox of the given agent, newest first
func (s *SqlStore) GetAgentNotifications(ctx context.Context, lockStrength LockingStrength, agentID string, unreadOnly bool, limit int) ([]*types.Notification, error) {
	tx := s.applyLockingStrength(s.db, lockStrength).Where(agentIDQueryCondition, agentID)
	if unreadOnly {
		tx = tx.Where("read_at IS NULL")
	}
	tx = tx.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var notifications []*types.Notification
	result := tx.Find(&notifications)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when getting agent notifications from the store: %s", result.Error)
		return nil, status.Errorf(status.Internal, "issue getting agent notifications from store")
	}

	return notifications, nil
}

// SaveNotification saves the notification to the store
func (s *SqlStore) SaveNotification(ctx context.Context, lockStrength LockingStrength, notification *types.Notification) error {
	result := s.applyLockingStrength(s.db, lockStrength).Save(notification)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving notification to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving notification to store")
	}

	return nil
}

// SaveNotifications saves the notifications to the store in one batch
func (s *SqlStore) SaveNotifications(ctx context.Context, lockStrength LockingStrength, notifications []*types.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	result := s.applyLockingStrength(s.db, lockStrength).Save(notifications)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when saving notifications to the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue saving notifications to store")
	}

	return nil
}

// MarkAllNotificationsRead marks every unread notification of the agent as
// read and returns how many were updated
func (s *SqlStore) MarkAllNotificationsRead(ctx context.Context, agentID string, readAt time.Time) (int64, error) {
	result := s.db.Model(&types.Notification{}).
		Where("agent_id = ? AND read_at IS NULL", agentID).
		Update("read_at", readAt)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when marking notifications read in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue marking notifications read in store")
	}

	return result.RowsAffected, nil
}

// DeleteNotificationsByAgentID removes the whole inbox of the given agent
func (s *SqlStore) DeleteNotificationsByAgentID(ctx context.Context, agentID string) error {
	result := s.db.Delete(&types.Notification{}, agentIDQueryCondition, agentID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting agent notifications from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting agent notifications from store")
	}

	return nil
}

// DeleteNotificationsByProjectID removes all notifications produced in the given project
func (s *SqlStore) DeleteNotificationsByProjectID(ctx context.Context, projectID string) error {
	result := s.db.Delete(&types.Notification{}, projectIDQueryCondition, projectID)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when deleting project notifications from the store: %s", result.Error)
		return status.Errorf(status.Internal, "issue deleting project notifications from store")
	}

	return nil
}

// CountNotifications returns the number of notifications
func (s *SqlStore) CountNotifications(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Model(&types.Notification{}).Count(&count)
	if result.Error != nil {
		log.WithContext(ctx).Errorf("error when counting notifications in the store: %s", result.Error)
		return 0, status.Errorf(status.Internal, "issue counting notifications in store")
	}

	return count, nil
}

// Close closes the underlying DB connection
func (s *SqlStore) Close(_ context.Context) error {
	sql, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get db: %w", err)
	}
	return sql.Close()
}

// GetStoreEngine returns underlying store engine
func (s *SqlStore) GetStoreEngine() Engine {
	return s.storeEngine
}

func getGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:          logger.Default.LogMode(logger.Silent),
		CreateBatchSize: 400,
		PrepareStmt:     true,
	}
}

// NewSqliteStore creates a new SQLite store.
func NewSqliteStore(ctx context.Context, dataDir string, metrics telemetry.AppMetrics) (*SqlStore, error) {
	storeStr := fmt.Sprintf("%s?cache=shared", storeSqliteFileName)
	if runtime.GOOS == "windows" {
		// To avoid `The process cannot access the file because it is being used by another process` on Windows
		storeStr = storeSqliteFileName
	}

	file := filepath.Join(dataDir, storeStr)
	db, err := gorm.Open(sqlite.Open(file), getGormConfig())
	if err != nil {
		return nil, err
	}

	return NewSqlStore(ctx, db, SqliteStoreEngine, metrics)
}

// NewPostgresqlStore creates a new Postgres store.
func NewPostgresqlStore(ctx context.Context, dsn string, metrics telemetry.AppMetrics) (*SqlStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), getGormConfig())
	if err != nil {
		return nil, err
	}

	return NewSqlStore(ctx, db, PostgresStoreEngine, metrics)
}

// NewMysqlStore creates a new MySQL store.
func NewMysqlStore(ctx context.Context, dsn string, metrics telemetry.AppMetrics) (*SqlStore, error) {
	db, err := gorm.Open(mysql.Open(dsn+"?charset=utf8&parseTime=True&loc=Local"), getGormConfig())
	if err != nil {
		return nil, err
	}

	return NewSqlStore(ctx, db, MysqlStoreEngine, metrics)
}

func newPostgresStore(ctx context.Context, metrics telemetry.AppMetrics) (Store, error) {
	dsn, ok := os.LookupEnv(postgresDsnEnv)
	if !ok {
		return nil, fmt.Errorf("%s is not set", postgresDsnEnv)
	}

	return NewPostgresqlStore(ctx, dsn, metrics)
}

func newMysqlStore(ctx context.Context, metrics telemetry.AppMetrics) (Store, error) {
	dsn, ok := os.LookupEnv(mysqlDsnEnv)
	if !ok {
		return nil, fmt.Errorf("%s is not set", mysqlDsnEnv)
	}

	return NewMysqlStore(ctx, dsn, metrics)
}

// NewPostgresqlStoreFromSqlStore restores a store from the given store and
// stores the data in Postgres. Used mainly in tests.
func NewPostgresqlStoreFromSqlStore(ctx context.Context, sqliteStore *SqlStore, dsn string, metrics telemetry.AppMetrics) (*SqlStore, error) {
	store, err := NewPostgresqlStore(ctx, dsn, metrics)
	if err != nil {
		return nil, err
	}

	if err = store.copyFrom(sqliteStore); err != nil {
		return nil, err
	}

	return store, nil
}

// NewMysqlStoreFromSqlStore restores a store from the given store and stores
// the data in MySQL. Used mainly in tests.
func NewMysqlStoreFromSqlStore(ctx context.Context, sqliteStore *SqlStore, dsn string, metrics telemetry.AppMetrics) (*SqlStore, error) {
	store, err := NewMysqlStore(ctx, dsn, metrics)
	if err != nil {
		return nil, err
	}

	if err = store.copyFrom(sqliteStore); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SqlStore) copyFrom(src *SqlStore) error {
	if err := copyTable[types.Agent](s.db, src.db); err != nil {
		return err
	}
	if err := copyTable[types.Project](s.db, src.db); err != nil {
		return err
	}
	if err := copyTable[types.ProjectMember](s.db, src.db); err != nil {
		return err
	}
	if err := copyTable[types.Post](s.db, src.db); err != nil {
		return err
	}
	if err := copyTable[types.Comment](s.db, src.db); err != nil {
		return err
	}
	if err := copyTable[types.Webhook](s.db, src.db); err != nil {
		return err
	}
	if err := copyTable[types.Notification](s.db, src.db); err != nil {
		return err
	}

	return nil
}

func copyTable[T any](dst, src *gorm.DB) error {
	var rows []T
	if err := src.Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	return dst.Create(&rows).Error
}
