// Package store persists and queries the MeshBoard entities. The SQL
// implementation speaks SQLite, Postgres and MySQL through GORM; the engine is
// chosen via configuration or the MB_STORE_ENGINE environment variable.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/meshboardio/meshboard/server/telemetry"
	"github.com/meshboardio/meshboard/server/testutil"
	"github.com/meshboardio/meshboard/server/types"
)

type LockingStrength string

const (
	LockingStrengthUpdate      LockingStrength = "UPDATE"        // Strongest lock, preventing any changes by other transactions until your transaction completes.
	LockingStrengthShare       LockingStrength = "SHARE"         // Allows reading but prevents changes by other transactions.
	LockingStrengthNoKeyUpdate LockingStrength = "NO KEY UPDATE" // Similar to UPDATE but allows changes to related rows.
	LockingStrengthKeyShare    LockingStrength = "KEY SHARE"     // Protects against changes to primary/unique keys but allows other updates.
	LockingStrengthNone        LockingStrength = "NONE"          // No row locking at all.
)

type Store interface {
	GetAllAgents(ctx context.Context, lockStrength LockingStrength) ([]*types.Agent, error)
	GetAgentByID(ctx context.Context, lockStrength LockingStrength, agentID string) (*types.Agent, error)
	GetAgentByName(ctx context.Context, lockStrength LockingStrength, name string) (*types.Agent, error)
	GetAgentByKeyHash(ctx context.Context, lockStrength LockingStrength, keyHash string) (*types.Agent, error)
	SaveAgent(ctx context.Context, lockStrength LockingStrength, agent *types.Agent) error
	SaveAgentLastSeen(ctx context.Context, agentID string, lastSeen time.Time) error
	DeleteAgent(ctx context.Context, agentID string) error
	CountAgents(ctx context.Context) (int64, error)

	GetAllProjects(ctx context.Context, lockStrength LockingStrength) ([]*types.Project, error)
	GetProjectByID(ctx context.Context, lockStrength LockingStrength, projectID string) (*types.Project, error)
	GetProjectByName(ctx context.Context, lockStrength LockingStrength, name string) (*types.Project, error)
	SaveProject(ctx context.Context, lockStrength LockingStrength, project *types.Project) error
	DeleteProject(ctx context.Context, projectID string) error
	CountProjects(ctx context.Context) (int64, error)

	GetProjectMembers(ctx context.Context, lockStrength LockingStrength, projectID string) ([]*types.ProjectMember, error)
	GetProjectMember(ctx context.Context, lockStrength LockingStrength, projectID, agentID string) (*types.ProjectMember, error)
	GetAgentMemberships(ctx context.Context, lockStrength LockingStrength, agentID string) ([]*types.ProjectMember, error)
	SaveProjectMember(ctx context.Context, lockStrength LockingStrength, member *types.ProjectMember) error
	DeleteProjectMember(ctx context.Context, projectID, agentID string) error
	DeleteProjectMembersByProjectID(ctx context.Context, projectID string) error
	DeleteMembershipsByAgentID(ctx context.Context, agentID string) error

	GetAllPosts(ctx context.Context, lockStrength LockingStrength) ([]*types.Post, error)
	GetPostByID(ctx context.Context, lockStrength LockingStrength, postID string) (*types.Post, error)
	GetProjectPosts(ctx context.Context, lockStrength LockingStrength, projectID string, filter types.PostFilter) ([]*types.Post, error)
	GetProjectPlanPost(ctx context.Context, lockStrength LockingStrength, projectID string) (*types.Post, error)
	GetPostByGitHubRef(ctx context.Context, lockStrength LockingStrength, projectID, githubRef string) (*types.Post, error)
	GetPostsByAuthorID(ctx context.Context, lockStrength LockingStrength, authorID string) ([]*types.Post, error)
	SavePost(ctx context.Context, lockStrength LockingStrength, post *types.Post) error
	DeletePost(ctx context.Context, postID string) error
	DeletePostsByProjectID(ctx context.Context, projectID string) error
	CountPosts(ctx context.Context) (int64, error)

	GetAllComments(ctx context.Context, lockStrength LockingStrength) ([]*types.Comment, error)
	GetCommentByID(ctx context.Context, lockStrength LockingStrength, commentID string) (*types.Comment, error)
	GetPostComments(ctx context.Context, lockStrength LockingStrength, postID string) ([]*types.Comment, error)
	CountPostComments(ctx context.Context, postID string) (int64, error)
	GetPostCommentCounts(ctx context.Context, projectID string) (map[string]int64, error)
	SaveComment(ctx context.Context, lockStrength LockingStrength, comment *types.Comment) error
	DeleteComment(ctx context.Context, commentID string) error
	DeleteCommentReplies(ctx context.Context, parentID string) error
	DeleteCommentsByPostID(ctx context.Context, postID string) error
	DeleteCommentsByProjectID(ctx context.Context, projectID string) error
	DeleteCommentsByAuthorID(ctx context.Context, authorID string) error
	CountComments(ctx context.Context) (int64, error)

	GetWebhookByID(ctx context.Context, lockStrength LockingStrength, webhookID string) (*types.Webhook, error)
	GetProjectWebhooks(ctx context.Context, lockStrength LockingStrength, projectID string) ([]*types.Webhook, error)
	SaveWebhook(ctx context.Context, lockStrength LockingStrength, webhook *types.Webhook) error
	SaveWebhookDelivery(ctx context.Context, webhookID, deliveryStatus string, deliveredAt time.Time) error
	DeleteWebhook(ctx context.Context, webhookID string) error
	DeleteWebhooksByProjectID(ctx context.Context, projectID string) error
	CountWebhooks(ctx context.Context) (int64, error)

	GetNotificationByID(ctx context.Context, lockStrength LockingStrength, notificationID string) (*types.Notification, error)
	GetAgentNotifications(ctx context.Context, lockStrength LockingStrength, agentID string, unreadOnly bool, limit int) ([]*types.Notification, error)
	SaveNotification(ctx context.Context, lockStrength LockingStrength, notification *types.Notification) error
	SaveNotifications(ctx context.Context, lockStrength LockingStrength, notifications []*types.Notification) error
	MarkAllNotificationsRead(ctx context.Context, agentID string, readAt time.Time) (int64, error)
	DeleteNotificationsByAgentID(ctx context.Context, agentID string) error
	DeleteNotificationsByProjectID(ctx context.Context, projectID string) error
	CountNotifications(ctx context.Context) (int64, error)

	// AcquireWriteLockByUID should attempt to acquire a lock for write purposes and return a function that releases the lock
	AcquireWriteLockByUID(ctx context.Context, uniqueID string) func()
	// AcquireReadLockByUID should attempt to acquire lock for read purposes and return a function that releases the lock
	AcquireReadLockByUID(ctx context.Context, uniqueID string) func()
	// AcquireGlobalLock should attempt to acquire a global lock and return a function that releases the lock
	AcquireGlobalLock(ctx context.Context) func()

	// Close should close the store persisting all unsaved data.
	Close(ctx context.Context) error
	// GetStoreEngine should return Engine of the current store implementation.
	GetStoreEngine() Engine
	ExecuteInTransaction(ctx context.Context, f func(store Store) error) error
}

type Engine string

const (
	SqliteStoreEngine   Engine = "sqlite"
	PostgresStoreEngine Engine = "postgres"
	MysqlStoreEngine    Engine = "mysql"

	postgresDsnEnv = "MB_STORE_ENGINE_POSTGRES_DSN"
	mysqlDsnEnv    = "MB_STORE_ENGINE_MYSQL_DSN"
)

func getStoreEngineFromEnv() Engine {
	// MB_STORE_ENGINE supposed to be used in tests. Otherwise, rely on the config file.
	kind, ok := os.LookupEnv("MB_STORE_ENGINE")
	if !ok {
		return ""
	}

	value := Engine(strings.ToLower(kind))
	if value == SqliteStoreEngine || value == PostgresStoreEngine || value == MysqlStoreEngine {
		return value
	}

	return SqliteStoreEngine
}

// getStoreEngine determines the store engine to use.
// If no engine is specified, it attempts to retrieve it from the environment.
// If still not specified, it defaults to using SQLite.
func getStoreEngine(kind Engine) Engine {
	if kind == "" {
		kind = getStoreEngineFromEnv()
		if kind == "" {
			kind = SqliteStoreEngine
		}
	}

	return kind
}

// NewStore creates a new store based on the provided engine type, data directory, and telemetry metrics
func NewStore(ctx context.Context, kind Engine, dataDir string, metrics telemetry.AppMetrics) (Store, error) {
	kind = getStoreEngine(kind)

	switch kind {
	case SqliteStoreEngine:
		log.WithContext(ctx).Info("using SQLite store engine")
		return NewSqliteStore(ctx, dataDir, metrics)
	case PostgresStoreEngine:
		log.WithContext(ctx).Info("using Postgres store engine")
		return newPostgresStore(ctx, metrics)
	case MysqlStoreEngine:
		log.WithContext(ctx).Info("using MySQL store engine")
		return newMysqlStore(ctx, metrics)
	default:
		return nil, fmt.Errorf("unsupported kind of store: %s", kind)
	}
}

// NewTestStoreFromSQL is only used in tests. It will create a test database base of the store engine set in env.
// Optionally it can load a SQL file to the database. If the filename is empty it will return an empty database
func NewTestStoreFromSQL(ctx context.Context, filename string, dataDir string) (Store, func(), error) {
	kind := getStoreEngineFromEnv()
	if kind == "" {
		kind = SqliteStoreEngine
	}

	storeStr := fmt.Sprintf("%s?cache=shared", storeSqliteFileName)
	if runtime.GOOS == "windows" {
		// To avoid `The process cannot access the file because it is being used by another process` on Windows
		storeStr = storeSqliteFileName
	}

	file := filepath.Join(dataDir, storeStr)
	db, err := gorm.Open(sqlite.Open(file), getGormConfig())
	if err != nil {
		return nil, nil, err
	}

	if filename != "" {
		err = loadSQL(db, filename)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load SQL file: %v", err)
		}
	}

	store, err := NewSqlStore(ctx, db, SqliteStoreEngine, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create test store: %v", err)
	}

	return getSqlStoreEngine(ctx, store, kind)
}

func getSqlStoreEngine(ctx context.Context, store *SqlStore, kind Engine) (Store, func(), error) {
	if kind == PostgresStoreEngine {
		cleanUp, err := testutil.CreatePostgresTestContainer()
		if err != nil {
			return nil, nil, err
		}

		dsn, ok := os.LookupEnv(postgresDsnEnv)
		if !ok {
			return nil, nil, fmt.Errorf("%s is not set", postgresDsnEnv)
		}

		store, err = NewPostgresqlStoreFromSqlStore(ctx, store, dsn, nil)
		if err != nil {
			return nil, nil, err
		}

		return store, cleanUp, nil
	}

	if kind == MysqlStoreEngine {
		cleanUp, err := testutil.CreateMysqlTestContainer()
		if err != nil {
			return nil, nil, err
		}

		dsn, ok := os.LookupEnv(mysqlDsnEnv)
		if !ok {
			return nil, nil, fmt.Errorf("%s is not set", mysqlDsnEnv)
		}

		store, err = NewMysqlStoreFromSqlStore(ctx, store, dsn, nil)
		if err != nil {
			return nil, nil, err
		}

		return store, cleanUp, nil
	}

	closeConnection := func() {
		store.Close(ctx)
	}

	return store, closeConnection, nil
}

func loadSQL(db *gorm.DB, filepath string) error {
	sqlContent, err := os.ReadFile(filepath)
	if err != nil {
		return err
	}

	queries := strings.Split(string(sqlContent), ";")

	for _, query := range queries {
		query = strings.TrimSpace(query)
		if query != "" {
			err := db.Exec(query).Error
			if err != nil {
				return err
			}
		}
	}

	return nil
}
