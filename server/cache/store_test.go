package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/eko/gocache/lib/v4/store"

	"github.com/meshboardio/meshboard/server/cache"
	"github.com/meshboardio/meshboard/server/testutil"
)

func TestMemoryStore(t *testing.T) {
	memStore, err := cache.NewStore(100*time.Millisecond, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("couldn't create memory store: %s", err)
	}
	ctx := context.Background()
	key, value := "testing", "tested"
	err = memStore.Set(ctx, key, value)
	if err != nil {
		t.Errorf("couldn't set testing data: %s", err)
	}
	result, err := memStore.Get(ctx, key)
	if err != nil {
		t.Errorf("couldn't get testing data: %s", err)
	}
	if value != result.(string) {
		t.Errorf("value returned doesn't match testing data, got %s, expected %s", result, value)
	}
	// test expiration
	time.Sleep(300 * time.Millisecond)
	_, err = memStore.Get(ctx, key)
	if err == nil {
		t.Error("value should not be found")
	}
}

func TestRedisStoreConnectionFailure(t *testing.T) {
	t.Setenv(cache.RedisStoreEnvVar, "127.0.0.1:6379")
	_, err := cache.NewStore(10*time.Millisecond, 30*time.Millisecond)
	if err == nil {
		t.Error("a bare address is not a redis url, the store should refuse it")
	}

	t.Setenv(cache.RedisStoreEnvVar, "redis://127.0.0.1:1")
	_, err = cache.NewStore(10*time.Millisecond, 30*time.Millisecond)
	if err == nil {
		t.Error("it should fail to connect to redis")
	}
}

func TestRedisStoreConnectionSuccess(t *testing.T) {
	ctx := context.Background()
	cleanup, redisURL, err := testutil.CreateRedisTestContainer()
	if err != nil {
		t.Fatalf("couldn't start redis container: %s", err)
	}
	t.Cleanup(cleanup)

	t.Setenv(cache.RedisStoreEnvVar, redisURL)
	redisStore, err := cache.NewStore(100*time.Millisecond, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("couldn't create redis store: %s", err)
	}

	key, value := "testing", "tested"
	err = redisStore.Set(ctx, key, value, store.WithExpiration(100*time.Millisecond))
	if err != nil {
		t.Errorf("couldn't set testing data: %s", err)
	}
	result, err := redisStore.Get(ctx, key)
	if err != nil {
		t.Errorf("couldn't get testing data: %s", err)
	}
	if value != result.(string) {
		t.Errorf("value returned doesn't match testing data, got %s, expected %s", result, value)
	}
	// test expiration
	time.Sleep(300 * time.Millisecond)
	_, err = redisStore.Get(ctx, key)
	if err == nil {
		t.Error("value should not be found")
	}
}
