package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
)

const (
	//eventSinkDB is the default name of the events database
	eventSinkDB      = "events.db"
	createTableQuery = "CREATE TABLE IF NOT EXISTS events " +
		"(id INTEGER PRIMARY KEY AUTOINCREMENT, " +
		"activity INTEGER, " +
		"timestamp DATETIME, " +
		"initiator_id TEXT," +
		"project_id TEXT," +
		"meta TEXT," +
		" target_id TEXT);"

	createTableDeletedAgentsQuery = `CREATE TABLE IF NOT EXISTS deleted_agents (id TEXT NOT NULL, name TEXT NOT NULL);`

	selectDescQuery = `SELECT events.id, activity, timestamp, initiator_id, i.name as "initiator_name", target_id, t.name as "target_name", project_id, meta
    	FROM events
    	LEFT JOIN deleted_agents i ON events.initiator_id = i.id
    	LEFT JOIN deleted_agents t ON events.target_id = t.id
		WHERE (? = '' OR project_id = ?)
		ORDER BY timestamp DESC LIMIT ? OFFSET ?;`

	selectAscQuery = `SELECT events.id, activity, timestamp, initiator_id, i.name as "initiator_name", target_id, t.name as "target_name", project_id, meta
    	FROM events
    	LEFT JOIN deleted_agents i ON events.initiator_id = i.id
    	LEFT JOIN deleted_agents t ON events.target_id = t.id
		WHERE (? = '' OR project_id = ?)
		ORDER BY timestamp ASC LIMIT ? OFFSET ?;`

	insertQuery = "INSERT INTO events(activity, timestamp, initiator_id, target_id, project_id, meta) " +
		"VALUES(?, ?, ?, ?, ?, ?)"

	insertDeletedAgentQuery = `INSERT INTO deleted_agents(id, name) VALUES(?, ?)`
)

// Store is the implementation of the activity.Store interface backed by SQLite
type Store struct {
	db           *sql.DB
	fieldEncrypt *FieldEncrypt

	insertStatement     *sql.Stmt
	selectAscStatement  *sql.Stmt
	selectDescStatement *sql.Stmt
	deletedAgentStmt    *sql.Stmt
}

// NewSQLiteStore creates a new Store with an event table if not exists.
func NewSQLiteStore(dataDir string, encryptionKey string) (*Store, error) {
	dbFile := filepath.Join(dataDir, eventSinkDB)
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, err
	}

	crypt, err := NewFieldEncrypt(encryptionKey)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(createTableQuery)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(createTableDeletedAgentsQuery)
	if err != nil {
		return nil, err
	}

	insertStmt, err := db.Prepare(insertQuery)
	if err != nil {
		return nil, err
	}

	selectDescStmt, err := db.Prepare(selectDescQuery)
	if err != nil {
		return nil, err
	}

	selectAscStmt, err := db.Prepare(selectAscQuery)
	if err != nil {
		return nil, err
	}

	deletedAgentStmt, err := db.Prepare(insertDeletedAgentQuery)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:                  db,
		fieldEncrypt:        crypt,
		insertStatement:     insertStmt,
		selectDescStatement: selectDescStmt,
		selectAscStatement:  selectAscStmt,
		deletedAgentStmt:    deletedAgentStmt,
	}
	return s, nil
}

func (store *Store) processResult(result *sql.Rows) ([]*activity.Event, error) {
	events := make([]*activity.Event, 0)
	for result.Next() {
		var id int64
		var operation activity.Activity
		var timestamp time.Time
		var initiator string
		var initiatorName *string
		var target string
		var targetName *string
		var projectID string
		var jsonMeta string
		err := result.Scan(&id, &operation, &timestamp, &initiator, &initiatorName, &target, &targetName, &projectID, &jsonMeta)
		if err != nil {
			return nil, err
		}

		meta := make(map[string]any)
		if jsonMeta != "" {
			err = json.Unmarshal([]byte(jsonMeta), &meta)
			if err != nil {
				return nil, err
			}
		}

		if targetName != nil {
			name, err := store.fieldEncrypt.Decrypt(*targetName)
			if err != nil {
				log.Errorf("failed to decrypt name for target id: %s", target)
				meta["name"] = ""
			} else {
				meta["name"] = name
			}
		}

		event := &activity.Event{
			Timestamp:   timestamp,
			Activity:    operation,
			ID:          uint64(id),
			InitiatorID: initiator,
			TargetID:    target,
			ProjectID:   projectID,
			Meta:        meta,
		}

		if initiatorName != nil {
			name, err := store.fieldEncrypt.Decrypt(*initiatorName)
			if err != nil {
				log.Errorf("failed to decrypt name of initiator: %s", initiator)
			} else {
				event.InitiatorName = name
			}
		}

		events = append(events, event)
	}

	return events, nil
}

// Get returns "limit" number of events from index ordered descending or ascending by a timestamp
func (store *Store) Get(projectID string, offset, limit int, descending bool) ([]*activity.Event, error) {
	stmt := store.selectDescStatement
	if !descending {
		stmt = store.selectAscStatement
	}

	result, err := stmt.Query(projectID, projectID, limit, offset)
	if err != nil {
		return nil, err
	}

	defer result.Close() //nolint
	return store.processResult(result)
}

// Save an event in the SQLite events table, keeping the name of a deleted
// agent only in encrypted form
func (store *Store) Save(event *activity.Event) (*activity.Event, error) {
	var jsonMeta string
	meta, err := store.saveDeletedAgentName(event)
	if err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		jsonMeta = string(metaBytes)
	}

	result, err := store.insertStatement.Exec(event.Activity, event.Timestamp, event.InitiatorID, event.TargetID, event.ProjectID, jsonMeta)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	eventCopy := event.Copy()
	eventCopy.ID = uint64(id)
	return eventCopy, nil
}

// saveDeletedAgentName stores the name of a deleted agent encrypted in the
// side table so later listings can still resolve it, and strips it from the
// meta persisted with the event row itself
func (store *Store) saveDeletedAgentName(event *activity.Event) (map[string]any, error) {
	if event.Activity != activity.AgentDeleted {
		return event.Meta, nil
	}

	name, ok := event.Meta["name"]
	if !ok {
		return event.Meta, nil
	}

	encrypted := store.fieldEncrypt.Encrypt(fmt.Sprintf("%s", name))
	_, err := store.deletedAgentStmt.Exec(event.TargetID, encrypted)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]any, len(event.Meta))
	for key, value := range event.Meta {
		if key == "name" {
			continue
		}
		meta[key] = value
	}
	return meta, nil
}

// Close the Store
func (store *Store) Close() error {
	if store.db != nil {
		return store.db.Close()
	}
	return nil
}
