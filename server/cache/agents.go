package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/eko/gocache/store/redis/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/meshboardio/meshboard/server/types"
)

const (
	// DefaultAgentCacheExpirationMax is the upper bound for cached agent records
	DefaultAgentCacheExpirationMax = time.Hour
	// DefaultAgentCacheExpirationMin is the lower bound for cached agent records
	DefaultAgentCacheExpirationMin = 30 * time.Minute
	// DefaultAgentCacheCleanupInterval is how often the in-memory store evicts
	DefaultAgentCacheCleanupInterval = 30 * time.Minute
)

// AgentDataCache is an interface that wraps the basic Get, Set and Delete
// methods for cached agent records, keyed by API key hash.
type AgentDataCache interface {
	Get(ctx context.Context, key string) (*types.Agent, error)
	Set(ctx context.Context, key string, value *types.Agent, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	GetAgents(ctx context.Context, key string) ([]*types.Agent, error)
	SetAgents(ctx context.Context, key string, agents []*types.Agent, expiration time.Duration) error
}

// AgentDataCacheImpl is a struct that implements the AgentDataCache interface.
type AgentDataCacheImpl struct {
	cache Marshaler
}

func (u *AgentDataCacheImpl) Get(ctx context.Context, key string) (*types.Agent, error) {
	v, err := u.cache.Get(ctx, key, new(types.Agent))
	if err != nil {
		return nil, err
	}

	switch v := v.(type) {
	case *types.Agent:
		return v, nil
	case []byte:
		agent := &types.Agent{}
		if err := msgpack.Unmarshal(v, agent); err != nil {
			return nil, err
		}
		return agent, nil
	}

	return nil, fmt.Errorf("unexpected type: %T", v)
}

func (u *AgentDataCacheImpl) Set(ctx context.Context, key string, value *types.Agent, expiration time.Duration) error {
	return u.cache.Set(ctx, key, value, store.WithExpiration(expiration))
}

func (u *AgentDataCacheImpl) Delete(ctx context.Context, key string) error {
	return u.cache.Delete(ctx, key)
}

func (u *AgentDataCacheImpl) GetAgents(ctx context.Context, key string) ([]*types.Agent, error) {
	var agents []*types.Agent
	v, err := u.cache.Get(ctx, key, &agents)
	if err != nil {
		return nil, err
	}

	switch v := v.(type) {
	case []*types.Agent:
		return v, nil
	case *[]*types.Agent:
		return *v, nil
	case []byte:
		return unmarshalAgents(v)
	}

	return nil, fmt.Errorf("unexpected type: %T", v)
}

func (u *AgentDataCacheImpl) SetAgents(ctx context.Context, key string, agents []*types.Agent, expiration time.Duration) error {
	return u.cache.Set(ctx, key, agents, store.WithExpiration(expiration))
}

func unmarshalAgents(data []byte) ([]*types.Agent, error) {
	returnObj := &[]*types.Agent{}
	err := msgpack.Unmarshal(data, returnObj)
	if err != nil {
		return nil, err
	}
	return *returnObj, nil
}

// NewAgentDataCache creates a new AgentDataCacheImpl object.
func NewAgentDataCache(store store.StoreInterface) *AgentDataCacheImpl {
	simpleCache := cache.New[any](store)
	if store.GetType() == redis.RedisType {
		m := marshaler.New(simpleCache)
		return &AgentDataCacheImpl{cache: m}
	}
	return &AgentDataCacheImpl{cache: &marshalerWraper{simpleCache}}
}
