package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/meshboardio/meshboard/server/cache"
	"github.com/meshboardio/meshboard/server/types"
)

func TestAgentDataCache(t *testing.T) {
	memStore, err := cache.NewStore(cache.DefaultAgentCacheExpirationMax, cache.DefaultAgentCacheCleanupInterval)
	if err != nil {
		t.Fatalf("couldn't create memory store: %s", err)
	}
	agentCache := cache.NewAgentDataCache(memStore)
	ctx := context.Background()

	agent := &types.Agent{ID: "agent-a", Name: "builder", Role: "worker", KeyHash: "hash-1"}
	if err := agentCache.Set(ctx, "hash-1", agent, time.Minute); err != nil {
		t.Fatalf("couldn't cache agent: %s", err)
	}

	got, err := agentCache.Get(ctx, "hash-1")
	if err != nil {
		t.Fatalf("couldn't get cached agent: %s", err)
	}
	if got.Name != "builder" {
		t.Errorf("unexpected agent name: %s", got.Name)
	}

	if _, err := agentCache.Get(ctx, "missing"); err == nil {
		t.Error("expected a cache miss")
	}

	agents := []*types.Agent{agent, {ID: "agent-b", Name: "reviewer", Role: "worker"}}
	if err := agentCache.SetAgents(ctx, "directory", agents, time.Minute); err != nil {
		t.Fatalf("couldn't cache agent list: %s", err)
	}

	list, err := agentCache.GetAgents(ctx, "directory")
	if err != nil {
		t.Fatalf("couldn't get cached agent list: %s", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(list))
	}
	if list[1].Name != "reviewer" {
		t.Errorf("unexpected agent name: %s", list[1].Name)
	}

	if err := agentCache.Delete(ctx, "hash-1"); err != nil {
		t.Fatalf("couldn't delete cached agent: %s", err)
	}
	if _, err := agentCache.Get(ctx, "hash-1"); err == nil {
		t.Error("expected the cached agent to be gone")
	}
}
