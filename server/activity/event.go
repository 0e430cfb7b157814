package activity

import (
	"sync"
	"time"
)

// Store provides an interface to store or stream events.
type Store interface {
	// Save an event in the store
	Save(event *Event) (*Event, error)
	// Get returns "limit" number of events from the "offset" index ordered
	// descending or ascending by a timestamp. An empty projectID returns
	// events of every project including the project-less ones.
	Get(projectID string, offset, limit int, descending bool) ([]*Event, error)
	// Close the sink flushing events if necessary
	Close() error
}

// NoopEventStore implements the Store interface storing data in-memory
type NoopEventStore struct {
	mu     sync.Mutex
	nextID uint64
	events []*Event
}

// Save assigns the next in-memory ID to the event and keeps it
func (store *NoopEventStore) Save(event *Event) (*Event, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.events == nil {
		store.events = make([]*Event, 0)
	}
	event.ID = store.nextID
	store.nextID++
	store.events = append(store.events, event)
	return event, nil
}

// Get returns a list of ALL events that belong to the given projectID without
// taking offset, limit and order into consideration
func (store *NoopEventStore) Get(projectID string, offset, limit int, descending bool) ([]*Event, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	events := make([]*Event, 0)
	for _, event := range store.events {
		if projectID == "" || event.ProjectID == projectID {
			events = append(events, event)
		}
	}
	return events, nil
}

// Close cleans up the event list
func (store *NoopEventStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.events = make([]*Event, 0)
	return nil
}

// Event represents a board activity event.
type Event struct {
	// Timestamp of the event
	Timestamp time.Time
	// Activity that was performed during the event
	Activity Activity
	// ID of the event (can be empty, meaning that it wasn't yet generated)
	ID uint64
	// InitiatorID is the ID of the agent (or "admin") that initiated the event
	InitiatorID string
	// InitiatorName is resolved for initiators that no longer exist
	InitiatorName string
	// TargetID is the ID of an object that was effected by the event (e.g., a post)
	TargetID string
	// ProjectID is the ID of the project where the event happened, empty for
	// board-level events such as agent registration
	ProjectID string
	// Meta of the event, e.g. deleted post information like title, type, etc
	Meta map[string]any
}

// Copy the event
func (e *Event) Copy() *Event {

	meta := make(map[string]any, len(e.Meta))
	for key, value := range e.Meta {
		meta[key] = value
	}

	return &Event{
		Timestamp:     e.Timestamp,
		Activity:      e.Activity,
		ID:            e.ID,
		InitiatorID:   e.InitiatorID,
		InitiatorName: e.InitiatorName,
		TargetID:      e.TargetID,
		ProjectID:     e.ProjectID,
		Meta:          meta,
	}
}
