package sqlite

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/meshboardio/meshboard/server/activity"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey(dataDir)
	if err != nil {
		t.Fatalf("failed to generate key: %s", err)
	}
	store, err := NewSQLiteStore(dataDir, key)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %s", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close sqlite store: %s", err)
		}
	})
	return store
}

func TestSave(t *testing.T) {
	store := setupStore(t)

	event := &activity.Event{
		Timestamp:   time.Now().UTC(),
		Activity:    activity.PostCreated,
		InitiatorID: "agent-a",
		TargetID:    "post-1",
		ProjectID:   "proj-1",
		Meta:        map[string]any{"title": "Rollout plan"},
	}

	saved, err := store.Save(event)
	if err != nil {
		t.Fatalf("failed to save event: %s", err)
	}
	if saved.ID == 0 {
		t.Errorf("expected a generated event ID")
	}

	events, err := store.Get("proj-1", 0, 10, true)
	if err != nil {
		t.Fatalf("failed to get events: %s", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Activity != activity.PostCreated {
		t.Errorf("unexpected activity: %v", events[0].Activity)
	}
	if events[0].Meta["title"] != "Rollout plan" {
		t.Errorf("unexpected meta: %v", events[0].Meta)
	}
}

func TestGetOrderAndFilter(t *testing.T) {
	store := setupStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, projectID := range []string{"proj-1", "proj-1", "proj-2"} {
		_, err := store.Save(&activity.Event{
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Activity:    activity.PostCreated,
			InitiatorID: "agent-a",
			TargetID:    fmt.Sprintf("post-%d", i),
			ProjectID:   projectID,
		})
		if err != nil {
			t.Fatalf("failed to save event: %s", err)
		}
	}

	events, err := store.Get("proj-1", 0, 10, true)
	if err != nil {
		t.Fatalf("failed to get events: %s", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].TargetID != "post-1" {
		t.Errorf("expected newest event first, got %s", events[0].TargetID)
	}

	all, err := store.Get("", 0, 10, false)
	if err != nil {
		t.Fatalf("failed to get events: %s", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].TargetID != "post-0" {
		t.Errorf("expected oldest event first, got %s", all[0].TargetID)
	}

	limited, err := store.Get("", 1, 1, true)
	if err != nil {
		t.Fatalf("failed to get events: %s", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 event, got %d", len(limited))
	}
	if limited[0].TargetID != "post-1" {
		t.Errorf("unexpected event at offset 1: %s", limited[0].TargetID)
	}
}

func TestDeletedAgentNameResolution(t *testing.T) {
	store := setupStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	_, err := store.Save(&activity.Event{
		Timestamp:   base,
		Activity:    activity.AgentDeleted,
		InitiatorID: "admin",
		TargetID:    "agent-gone",
		Meta:        map[string]any{"name": "driller"},
	})
	if err != nil {
		t.Fatalf("failed to save event: %s", err)
	}

	_, err = store.Save(&activity.Event{
		Timestamp:   base.Add(time.Minute),
		Activity:    activity.PostCreated,
		InitiatorID: "agent-gone",
		TargetID:    "post-1",
		ProjectID:   "proj-1",
	})
	if err != nil {
		t.Fatalf("failed to save event: %s", err)
	}

	events, err := store.Get("", 0, 10, true)
	if err != nil {
		t.Fatalf("failed to get events: %s", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	if events[0].InitiatorName != "driller" {
		t.Errorf("expected resolved initiator name, got %q", events[0].InitiatorName)
	}
	if events[1].Meta["name"] != "driller" {
		t.Errorf("expected resolved target name, got %v", events[1].Meta)
	}

	// the event row itself must not carry the plaintext name
	var jsonMeta string
	err = store.db.QueryRow(`SELECT meta FROM events WHERE target_id = ?`, "agent-gone").Scan(&jsonMeta)
	if err != nil {
		t.Fatalf("failed to read raw meta: %s", err)
	}
	if strings.Contains(jsonMeta, "driller") {
		t.Errorf("event meta leaks the deleted agent name: %s", jsonMeta)
	}
}
