// Package agents manages the agent directory: registration, API key
// authentication, liveness and the identity binding lifecycle.
package agents

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/cache"
	"github.com/meshboardio/meshboard/server/signing"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

const (
	maxAgentNameLength = 64

	// agentDirectoryCacheKey stores the full agent list used for mention
	// resolution. Register and delete invalidate it.
	agentDirectoryCacheKey = "agent-directory"
)

var agentNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type Manager interface {
	RegisterAgent(ctx context.Context, name, role, ownerID string) (*types.Agent, string, error)
	GetAgent(ctx context.Context, agentID string) (*types.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*types.Agent, error)
	GetAllAgents(ctx context.Context) ([]*types.Agent, error)
	Authenticate(ctx context.Context, plainKey string) (*types.Agent, error)
	Heartbeat(ctx context.Context, agentID string) (time.Time, error)
	BindIdentity(ctx context.Context, agentID, certificatePEM, publicKeyPEM string) (*types.Agent, error)
	GetIdentityInfo(ctx context.Context, agentID string) (*IdentityInfo, error)
	MarkVerified(ctx context.Context, agentID, verifiedAt string) error
	ResolveMentions(ctx context.Context, names []string) ([]*types.Agent, error)
	DeleteAgent(ctx context.Context, initiatorID, agentID string) error
}

// IdentityInfo is the public view of an agent's identity binding. The subject
// common name stays internal even for certificate-bound agents.
type IdentityInfo struct {
	Status               string `json:"status"`
	HasPublicKey         bool   `json:"hasPublicKey"`
	PublicKeyFingerprint string `json:"publicKeyFingerprint,omitempty"`
	PublicKeyBoundAt     string `json:"publicKeyBoundAt,omitempty"`
	Fingerprint          string `json:"fingerprint,omitempty"`
	IssuerCN             string `json:"issuerCn,omitempty"`
	NotBefore            string `json:"notBefore,omitempty"`
	NotAfter             string `json:"notAfter,omitempty"`
	BoundAt              string `json:"boundAt,omitempty"`
	VerifiedAt           string `json:"verifiedAt,omitempty"`
}

type managerImpl struct {
	store      store.Store
	eventStore activity.Store
	cache      cache.AgentDataCache
}

func NewManager(store store.Store, eventStore activity.Store, cache cache.AgentDataCache) Manager {
	return &managerImpl{
		store:      store,
		eventStore: eventStore,
		cache:      cache,
	}
}

func cacheEntryExpiration() time.Duration {
	r := rand.Intn(int(cache.DefaultAgentCacheExpirationMax.Milliseconds()-cache.DefaultAgentCacheExpirationMin.Milliseconds())) + int(cache.DefaultAgentCacheExpirationMin.Milliseconds())
	return time.Duration(r) * time.Millisecond
}

func validateAgentName(name string) error {
	if name == "" {
		return status.Errorf(status.InvalidArgument, "agent name is required")
	}
	if len(name) > maxAgentNameLength {
		return status.Errorf(status.InvalidArgument, "agent name must be at most %d characters", maxAgentNameLength)
	}
	if !agentNameRegexp.MatchString(name) {
		return status.Errorf(status.InvalidArgument, "agent name may contain only letters, digits, '_' and '-'")
	}
	// "all" is the broadcast token in mentions and can never name an agent
	if strings.EqualFold(name, "all") {
		return status.Errorf(status.InvalidArgument, "agent name %q is reserved", name)
	}
	return nil
}

// RegisterAgent creates an agent and returns it together with the plain API
// key. The key is derivable from nothing stored and is shown exactly once.
func (m *managerImpl) RegisterAgent(ctx context.Context, name, role, ownerID string) (*types.Agent, string, error) {
	name = strings.TrimSpace(name)
	if err := validateAgentName(name); err != nil {
		return nil, "", err
	}

	keyHash, plainKey, err := types.GenerateAgentKey()
	if err != nil {
		return nil, "", status.Errorf(status.Internal, "failed to generate API key")
	}

	now := time.Now().UTC()
	agent := &types.Agent{
		ID:        types.NewAgentID(),
		Name:      name,
		Role:      strings.TrimSpace(role),
		OwnerID:   strings.TrimSpace(ownerID),
		KeyHash:   keyHash,
		KeySecret: types.HiddenKey(plainKey, len(plainKey)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		_, err := transaction.GetAgentByName(ctx, store.LockingStrengthShare, name)
		if err == nil {
			return status.NewAgentNameTakenError(name)
		}
		if sErr, ok := status.FromError(err); !ok || sErr.Type() != status.NotFound {
			return err
		}

		return transaction.SaveAgent(ctx, store.LockingStrengthUpdate, agent)
	})
	if err != nil {
		return nil, "", err
	}

	m.invalidateCache(ctx, "")
	m.storeEvent(ctx, agent.ID, agent.ID, "", activity.AgentRegistered, agent.EventMeta())

	return agent, plainKey, nil
}

func (m *managerImpl) GetAgent(ctx context.Context, agentID string) (*types.Agent, error) {
	return m.store.GetAgentByID(ctx, store.LockingStrengthShare, agentID)
}

func (m *managerImpl) GetAgentByName(ctx context.Context, name string) (*types.Agent, error) {
	return m.store.GetAgentByName(ctx, store.LockingStrengthShare, strings.TrimSpace(name))
}

func (m *managerImpl) GetAllAgents(ctx context.Context) ([]*types.Agent, error) {
	return m.store.GetAllAgents(ctx, store.LockingStrengthShare)
}

// Authenticate resolves a plain API key to its agent. Key format problems and
// unknown keys both collapse into the same unauthenticated error so callers
// cannot probe which keys exist.
func (m *managerImpl) Authenticate(ctx context.Context, plainKey string) (*types.Agent, error) {
	plainKey = strings.TrimSpace(plainKey)
	if err := types.ValidateAgentKeyFormat(plainKey); err != nil {
		log.WithContext(ctx).Debugf("rejected malformed API key: %s", err)
		return nil, status.NewInvalidKeyIDError()
	}

	keyHash := types.HashAgentKey(plainKey)
	if agent, err := m.cache.Get(ctx, keyHash); err == nil && agent != nil {
		return agent, nil
	}

	agent, err := m.store.GetAgentByKeyHash(ctx, store.LockingStrengthShare, keyHash)
	if err != nil {
		if sErr, ok := status.FromError(err); ok && sErr.Type() == status.NotFound {
			return nil, status.NewInvalidKeyIDError()
		}
		return nil, err
	}

	if !types.VerifyAgentKeyHash(plainKey, agent.KeyHash) {
		return nil, status.NewInvalidKeyIDError()
	}

	if err = m.cache.Set(ctx, keyHash, agent, cacheEntryExpiration()); err != nil {
		log.WithContext(ctx).Warnf("failed to cache agent %s: %s", agent.ID, err)
	}

	return agent, nil
}

// Heartbeat bumps the agent's last seen timestamp. Cached auth entries keep
// their older timestamp; liveness readers always go through the store.
func (m *managerImpl) Heartbeat(ctx context.Context, agentID string) (time.Time, error) {
	lastSeen := time.Now().UTC()
	if err := m.store.SaveAgentLastSeen(ctx, agentID, lastSeen); err != nil {
		return time.Time{}, err
	}
	return lastSeen, nil
}

// BindIdentity binds or replaces the agent's identity material. Binding a
// certificate re-derives the identity metadata and clears any earlier
// verification stamp; binding a bare key on top of a bound certificate
// requires the key to match that certificate.
func (m *managerImpl) BindIdentity(ctx context.Context, agentID, certificatePEM, publicKeyPEM string) (*types.Agent, error) {
	certificatePEM = strings.TrimSpace(certificatePEM)
	publicKeyPEM = strings.TrimSpace(publicKeyPEM)
	if certificatePEM == "" && publicKeyPEM == "" {
		return nil, status.Errorf(status.BadRequest, "certificatePem or publicKeyPem is required")
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, agentID)
	defer unlock()

	var bound *types.Agent
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		agent, err := transaction.GetAgentByID(ctx, store.LockingStrengthUpdate, agentID)
		if err != nil {
			return err
		}

		meta := make(map[string]string, len(agent.IdentityMeta)+8)
		for k, v := range agent.IdentityMeta {
			meta[k] = v
		}

		if certificatePEM != "" {
			if publicKeyPEM != "" {
				if ok, reason := signing.KeyMatchesCertificate(publicKeyPEM, certificatePEM); !ok {
					return status.Errorf(status.BadRequest, "publicKeyPem mismatch: %s", reason)
				}
			}

			certMeta, err := signing.CertificateMeta(certificatePEM)
			if err != nil {
				return status.Errorf(status.BadRequest, "invalid certificatePem: %s", err)
			}
			for k, v := range certMeta.Map() {
				meta[k] = v
			}
			meta[types.MetaBoundAt] = time.Now().UTC().Format(time.RFC3339)
			delete(meta, types.MetaVerifiedAt)
			// The subject common name stays out of the stored metadata, it may
			// carry personal data depending on the issuer policy.
			delete(meta, types.MetaSubjectCN)
			agent.IdentityCertificatePEM = certificatePEM

			keyPEM := publicKeyPEM
			if keyPEM == "" {
				keyPEM, err = signing.ExtractCertificatePublicKey(certificatePEM)
				if err != nil {
					return status.Errorf(status.BadRequest, "invalid certificatePem: %s", err)
				}
			}
			if err := bindPublicKey(agent, keyPEM, meta); err != nil {
				return err
			}
		} else {
			if agent.IdentityCertificatePEM != "" {
				if ok, reason := signing.KeyMatchesCertificate(publicKeyPEM, agent.IdentityCertificatePEM); !ok {
					return status.Errorf(status.BadRequest, "publicKeyPem mismatch current certificate: %s", reason)
				}
			}
			if err := bindPublicKey(agent, publicKeyPEM, meta); err != nil {
				return err
			}
		}

		agent.UpdatedAt = time.Now().UTC()
		if err := transaction.SaveAgent(ctx, store.LockingStrengthUpdate, agent); err != nil {
			return err
		}

		bound = agent
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidateCache(ctx, bound.KeyHash)
	m.storeEvent(ctx, agentID, agentID, "", activity.AgentIdentityBound, map[string]any{
		"name":                          bound.Name,
		"status":                        bound.IdentityStatus(),
		"fingerprint_sha256":            bound.IdentityMeta[types.MetaFingerprint],
		"public_key_fingerprint_sha256": bound.IdentityMeta[types.MetaPublicKeyFingerprint],
	})

	return bound, nil
}

// bindPublicKey stores the canonical form of the key on the agent. The first
// key binding timestamp survives rebinds.
func bindPublicKey(agent *types.Agent, publicKeyPEM string, meta map[string]string) error {
	normalized, err := signing.NormalizePublicKey(publicKeyPEM)
	if err != nil {
		return status.Errorf(status.BadRequest, "invalid publicKeyPem: %s", err)
	}
	fingerprint, err := signing.PublicKeyFingerprint(normalized)
	if err != nil {
		return status.Errorf(status.BadRequest, "invalid publicKeyPem: %s", err)
	}

	meta[types.MetaPublicKeyFingerprint] = fingerprint
	if meta[types.MetaPublicKeyBoundAt] == "" {
		meta[types.MetaPublicKeyBoundAt] = time.Now().UTC().Format(time.RFC3339)
	}

	agent.IdentityPublicKeyPEM = normalized
	agent.IdentityMeta = meta
	return nil
}

func (m *managerImpl) GetIdentityInfo(ctx context.Context, agentID string) (*IdentityInfo, error) {
	agent, err := m.store.GetAgentByID(ctx, store.LockingStrengthShare, agentID)
	if err != nil {
		return nil, err
	}
	return IdentityInfoOf(agent), nil
}

// IdentityInfoOf derives the public identity view from the stored columns.
// Rows bound before metadata parsing existed are backfilled by re-parsing the
// certificate.
func IdentityInfoOf(agent *types.Agent) *IdentityInfo {
	meta := agent.IdentityMeta
	hasKey := agent.IdentityPublicKeyPEM != ""

	if agent.IdentityCertificatePEM == "" {
		return &IdentityInfo{
			Status:               agent.IdentityStatus(),
			HasPublicKey:         hasKey,
			PublicKeyFingerprint: meta[types.MetaPublicKeyFingerprint],
			PublicKeyBoundAt:     meta[types.MetaPublicKeyBoundAt],
		}
	}

	if meta[types.MetaFingerprint] == "" {
		if parsed, err := signing.CertificateMeta(agent.IdentityCertificatePEM); err == nil {
			merged := make(map[string]string, len(meta)+8)
			for k, v := range meta {
				merged[k] = v
			}
			for k, v := range parsed.Map() {
				merged[k] = v
			}
			meta = merged
		}
	}

	return &IdentityInfo{
		Status:               agent.IdentityStatus(),
		HasPublicKey:         hasKey,
		PublicKeyFingerprint: meta[types.MetaPublicKeyFingerprint],
		PublicKeyBoundAt:     meta[types.MetaPublicKeyBoundAt],
		Fingerprint:          meta[types.MetaFingerprint],
		IssuerCN:             meta[types.MetaIssuerCN],
		NotBefore:            meta[types.MetaNotBefore],
		NotAfter:             meta[types.MetaNotAfter],
		BoundAt:              meta[types.MetaBoundAt],
		VerifiedAt:           meta[types.MetaVerifiedAt],
	}
}

// MarkVerified stamps the first successful signature verification on the
// agent's identity metadata. The stamp is set once: later calls and calls for
// agents without a bound certificate are no-ops.
func (m *managerImpl) MarkVerified(ctx context.Context, agentID, verifiedAt string) error {
	if verifiedAt == "" {
		verifiedAt = time.Now().UTC().Format(time.RFC3339)
	}

	unlock := m.store.AcquireWriteLockByUID(ctx, agentID)
	defer unlock()

	var stamped *types.Agent
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		agent, err := transaction.GetAgentByID(ctx, store.LockingStrengthUpdate, agentID)
		if err != nil {
			return err
		}
		if agent.IdentityCertificatePEM == "" || agent.IdentityMeta[types.MetaVerifiedAt] != "" {
			return nil
		}

		if agent.IdentityMeta == nil {
			agent.IdentityMeta = make(map[string]string, 1)
		}
		agent.IdentityMeta[types.MetaVerifiedAt] = verifiedAt
		agent.UpdatedAt = time.Now().UTC()
		if err := transaction.SaveAgent(ctx, store.LockingStrengthUpdate, agent); err != nil {
			return err
		}

		stamped = agent
		return nil
	})
	if err != nil || stamped == nil {
		return err
	}

	m.invalidateCache(ctx, stamped.KeyHash)
	m.storeEvent(ctx, agentID, agentID, "", activity.AgentIdentityVerified, map[string]any{
		"name":        stamped.Name,
		"verified_at": verifiedAt,
	})
	return nil
}

// ResolveMentions maps mention names onto existing agents, dropping names
// nobody registered. The lookup runs against the cached directory.
func (m *managerImpl) ResolveMentions(ctx context.Context, names []string) ([]*types.Agent, error) {
	if len(names) == 0 {
		return nil, nil
	}

	byName, err := m.lookupDirectory(ctx)
	if err != nil {
		return nil, err
	}

	resolved := make([]*types.Agent, 0, len(names))
	for _, name := range names {
		if agent, ok := byName[name]; ok {
			resolved = append(resolved, agent)
		}
	}
	return resolved, nil
}

func (m *managerImpl) lookupDirectory(ctx context.Context) (map[string]*types.Agent, error) {
	agents, err := m.cache.GetAgents(ctx, agentDirectoryCacheKey)
	if err != nil || agents == nil {
		agents, err = m.store.GetAllAgents(ctx, store.LockingStrengthShare)
		if err != nil {
			return nil, err
		}
		if cacheErr := m.cache.SetAgents(ctx, agentDirectoryCacheKey, agents, cacheEntryExpiration()); cacheErr != nil {
			log.WithContext(ctx).Warnf("failed to cache the agent directory: %s", cacheErr)
		}
	}

	byName := make(map[string]*types.Agent, len(agents))
	for _, agent := range agents {
		byName[agent.Name] = agent
	}
	return byName, nil
}

// DeleteAgent removes the agent together with its memberships and
// notifications. Posts and comments survive, the activity log resolves the
// author name of deleted agents.
func (m *managerImpl) DeleteAgent(ctx context.Context, initiatorID, agentID string) error {
	unlock := m.store.AcquireWriteLockByUID(ctx, agentID)
	defer unlock()

	var deleted *types.Agent
	err := m.store.ExecuteInTransaction(ctx, func(transaction store.Store) error {
		agent, err := transaction.GetAgentByID(ctx, store.LockingStrengthUpdate, agentID)
		if err != nil {
			return err
		}

		if err := transaction.DeleteMembershipsByAgentID(ctx, agentID); err != nil {
			return err
		}
		if err := transaction.DeleteNotificationsByAgentID(ctx, agentID); err != nil {
			return err
		}
		if err := transaction.DeleteAgent(ctx, agentID); err != nil {
			return err
		}

		deleted = agent
		return nil
	})
	if err != nil {
		return err
	}

	m.invalidateCache(ctx, deleted.KeyHash)
	m.storeEvent(ctx, initiatorID, agentID, "", activity.AgentDeleted, deleted.EventMeta())
	return nil
}

// invalidateCache drops the cached auth entry and the directory. An empty
// keyHash invalidates the directory only.
func (m *managerImpl) invalidateCache(ctx context.Context, keyHash string) {
	if keyHash != "" {
		if err := m.cache.Delete(ctx, keyHash); err != nil {
			log.WithContext(ctx).Debugf("failed to invalidate cached agent: %s", err)
		}
	}
	if err := m.cache.Delete(ctx, agentDirectoryCacheKey); err != nil {
		log.WithContext(ctx).Debugf("failed to invalidate the agent directory cache: %s", err)
	}
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
