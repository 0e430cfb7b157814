package agents

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/cache"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

func newTestManager(t *testing.T) (Manager, store.Store, *activity.NoopEventStore) {
	t.Helper()

	s, cleanUp, err := store.NewTestStoreFromSQL(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cleanUp)

	cacheStore, err := cache.NewStore(cache.DefaultAgentCacheExpirationMax, cache.DefaultAgentCacheCleanupInterval)
	require.NoError(t, err)

	eventStore := &activity.NoopEventStore{}
	return NewManager(s, eventStore, cache.NewAgentDataCache(cacheStore)), s, eventStore
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func makeTestCert(t *testing.T, key *rsa.PrivateKey, commonName string) string {
	t.Helper()
	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(0x5eed),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func publicKeyPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func Test_RegisterAgentSuccessfully(t *testing.T) {
	ctx := context.Background()
	manager, s, _ := newTestManager(t)

	agent, plainKey, err := manager.RegisterAgent(ctx, "  codex-1 ", "builder", "owner-9")
	require.NoError(t, err)
	require.NotEmpty(t, agent.ID)
	require.Equal(t, "codex-1", agent.Name)
	require.Equal(t, "builder", agent.Role)
	require.Equal(t, "owner-9", agent.OwnerID)

	require.NoError(t, types.ValidateAgentKeyFormat(plainKey))
	require.Equal(t, types.HashAgentKey(plainKey), agent.KeyHash)
	require.True(t, strings.HasPrefix(agent.KeySecret, types.AgentKeyPrefix))
	require.True(t, strings.HasSuffix(agent.KeySecret, "*"))
	require.NotContains(t, agent.KeySecret, plainKey[5:])

	stored, err := s.GetAgentByID(ctx, store.LockingStrengthShare, agent.ID)
	require.NoError(t, err)
	require.Equal(t, agent.Name, stored.Name)
	require.Equal(t, types.IdentityStatusUnbound, stored.IdentityStatus())
}

func Test_RegisterAgentRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	_, _, err = manager.RegisterAgent(ctx, "codex-1", "reviewer", "")
	require.Error(t, err)
	sErr, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, status.AlreadyExists, sErr.Type())
}

func Test_RegisterAgentRejectsInvalidNames(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	for name, input := range map[string]string{
		"empty":              "",
		"whitespace":         "   ",
		"spaces":             "two words",
		"at sign":            "@codex",
		"too long":           strings.Repeat("x", 65),
		"reserved":           "all",
		"reserved uppercase": "ALL",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := manager.RegisterAgent(ctx, input, "", "")
			require.Error(t, err)
			sErr, ok := status.FromError(err)
			require.True(t, ok)
			require.Equal(t, status.InvalidArgument, sErr.Type())
		})
	}
}

func Test_AuthenticateReturnsAgent(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, plainKey, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	agent, err := manager.Authenticate(ctx, plainKey)
	require.NoError(t, err)
	require.Equal(t, registered.ID, agent.ID)

	agent, err = manager.Authenticate(ctx, "  "+plainKey+" ")
	require.NoError(t, err)
	require.Equal(t, registered.ID, agent.ID)
}

func Test_AuthenticateRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	_, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	// well formed but never issued
	_, unknownKey, err := types.GenerateAgentKey()
	require.NoError(t, err)

	for name, key := range map[string]string{
		"malformed": "not-a-key",
		"empty":     "",
		"unknown":   unknownKey,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := manager.Authenticate(ctx, key)
			require.Error(t, err)
			sErr, ok := status.FromError(err)
			require.True(t, ok)
			require.Equal(t, status.Unauthenticated, sErr.Type())
		})
	}
}

func Test_AuthenticateServesFromCache(t *testing.T) {
	ctx := context.Background()
	manager, s, _ := newTestManager(t)

	registered, plainKey, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	_, err = manager.Authenticate(ctx, plainKey)
	require.NoError(t, err)

	// removing the row behind the cache's back must not affect the warm entry
	require.NoError(t, s.DeleteAgent(ctx, registered.ID))

	agent, err := manager.Authenticate(ctx, plainKey)
	require.NoError(t, err)
	require.Equal(t, registered.ID, agent.ID)
}

func Test_HeartbeatBumpsLastSeen(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)
	require.False(t, registered.IsOnline(time.Now().UTC()))

	lastSeen, err := manager.Heartbeat(ctx, registered.ID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC(), lastSeen, 5*time.Second)

	agent, err := manager.GetAgent(ctx, registered.ID)
	require.NoError(t, err)
	require.NotNil(t, agent.LastSeenAt)
	require.True(t, agent.IsOnline(time.Now().UTC()))
}

func Test_BindIdentityWithCertificate(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	key := generateTestKey(t)
	cert := makeTestCert(t, key, "codex-1")

	bound, err := manager.BindIdentity(ctx, registered.ID, cert, "")
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusBound, bound.IdentityStatus())
	require.NotEmpty(t, bound.IdentityCertificatePEM)
	require.NotEmpty(t, bound.IdentityPublicKeyPEM)
	require.NotEmpty(t, bound.IdentityMeta[types.MetaFingerprint])
	require.NotEmpty(t, bound.IdentityMeta[types.MetaBoundAt])
	require.NotContains(t, bound.IdentityMeta, types.MetaSubjectCN)

	info, err := manager.GetIdentityInfo(ctx, registered.ID)
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusBound, info.Status)
	require.True(t, info.HasPublicKey)
	require.NotEmpty(t, info.Fingerprint)
	require.NotEmpty(t, info.PublicKeyFingerprint)
	require.NotEmpty(t, info.NotBefore)
	require.NotEmpty(t, info.NotAfter)
	require.Empty(t, info.VerifiedAt)
}

func Test_BindIdentityKeyOnly(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	bound, err := manager.BindIdentity(ctx, registered.ID, "", publicKeyPEM(t, generateTestKey(t)))
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusPublicKeyBound, bound.IdentityStatus())
	require.Empty(t, bound.IdentityCertificatePEM)

	info, err := manager.GetIdentityInfo(ctx, registered.ID)
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusPublicKeyBound, info.Status)
	require.True(t, info.HasPublicKey)
	require.NotEmpty(t, info.PublicKeyFingerprint)
	require.NotEmpty(t, info.PublicKeyBoundAt)
	require.Empty(t, info.Fingerprint)
}

func Test_BindIdentityRejectsMismatchedKey(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	cert := makeTestCert(t, generateTestKey(t), "codex-1")
	otherKey := publicKeyPEM(t, generateTestKey(t))

	_, err = manager.BindIdentity(ctx, registered.ID, cert, otherKey)
	require.Error(t, err)
	sErr, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, status.BadRequest, sErr.Type())
	require.Contains(t, sErr.Error(), "publicKeyPem mismatch")
}

func Test_BindIdentityKeyMustMatchBoundCertificate(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	certKey := generateTestKey(t)
	_, err = manager.BindIdentity(ctx, registered.ID, makeTestCert(t, certKey, "codex-1"), "")
	require.NoError(t, err)

	// a matching key is accepted
	_, err = manager.BindIdentity(ctx, registered.ID, "", publicKeyPEM(t, certKey))
	require.NoError(t, err)

	// a foreign key is not
	_, err = manager.BindIdentity(ctx, registered.ID, "", publicKeyPEM(t, generateTestKey(t)))
	require.Error(t, err)
	sErr, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, status.BadRequest, sErr.Type())
	require.Contains(t, sErr.Error(), "current certificate")
}

func Test_BindIdentityRequiresMaterial(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	_, err = manager.BindIdentity(ctx, registered.ID, "", "  ")
	require.Error(t, err)
	sErr, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, status.BadRequest, sErr.Type())
}

func Test_MarkVerifiedStampsOnce(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)
	_, err = manager.BindIdentity(ctx, registered.ID, makeTestCert(t, generateTestKey(t), "codex-1"), "")
	require.NoError(t, err)

	require.NoError(t, manager.MarkVerified(ctx, registered.ID, "2026-08-23T10:00:00Z"))
	require.NoError(t, manager.MarkVerified(ctx, registered.ID, "2026-08-23T11:00:00Z"))

	info, err := manager.GetIdentityInfo(ctx, registered.ID)
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusVerified, info.Status)
	require.Equal(t, "2026-08-23T10:00:00Z", info.VerifiedAt)
}

func Test_MarkVerifiedIgnoresKeyOnlyAgents(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)
	_, err = manager.BindIdentity(ctx, registered.ID, "", publicKeyPEM(t, generateTestKey(t)))
	require.NoError(t, err)

	require.NoError(t, manager.MarkVerified(ctx, registered.ID, "2026-08-23T10:00:00Z"))

	info, err := manager.GetIdentityInfo(ctx, registered.ID)
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusPublicKeyBound, info.Status)
	require.Empty(t, info.VerifiedAt)
}

func Test_RebindClearsVerification(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	registered, _, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	_, err = manager.BindIdentity(ctx, registered.ID, makeTestCert(t, generateTestKey(t), "codex-1"), "")
	require.NoError(t, err)
	require.NoError(t, manager.MarkVerified(ctx, registered.ID, "2026-08-23T10:00:00Z"))

	firstInfo, err := manager.GetIdentityInfo(ctx, registered.ID)
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusVerified, firstInfo.Status)

	rebound, err := manager.BindIdentity(ctx, registered.ID, makeTestCert(t, generateTestKey(t), "codex-1"), "")
	require.NoError(t, err)
	require.Equal(t, types.IdentityStatusBound, rebound.IdentityStatus())

	info, err := manager.GetIdentityInfo(ctx, registered.ID)
	require.NoError(t, err)
	require.Empty(t, info.VerifiedAt)
	// the first key binding timestamp survives the rebind
	require.Equal(t, firstInfo.PublicKeyBoundAt, info.PublicKeyBoundAt)
	require.NotEqual(t, firstInfo.Fingerprint, info.Fingerprint)
}

func Test_ResolveMentionsDropsUnknownNames(t *testing.T) {
	ctx := context.Background()
	manager, _, _ := newTestManager(t)

	alpha, _, err := manager.RegisterAgent(ctx, "alpha", "", "")
	require.NoError(t, err)
	beta, _, err := manager.RegisterAgent(ctx, "beta", "", "")
	require.NoError(t, err)

	resolved, err := manager.ResolveMentions(ctx, []string{"alpha", "ghost", "beta"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	ids := []string{resolved[0].ID, resolved[1].ID}
	require.Contains(t, ids, alpha.ID)
	require.Contains(t, ids, beta.ID)

	// registration invalidates the cached directory
	gamma, _, err := manager.RegisterAgent(ctx, "gamma", "", "")
	require.NoError(t, err)
	resolved, err = manager.ResolveMentions(ctx, []string{"gamma"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, gamma.ID, resolved[0].ID)
}

func Test_DeleteAgentCascades(t *testing.T) {
	ctx := context.Background()
	manager, s, eventStore := newTestManager(t)

	registered, plainKey, err := manager.RegisterAgent(ctx, "codex-1", "", "")
	require.NoError(t, err)

	project := &types.Project{ID: "project-1", Name: "mesh", CreatedBy: registered.ID, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveProject(ctx, store.LockingStrengthUpdate, project))
	member := &types.ProjectMember{ID: "member-1", ProjectID: project.ID, AgentID: registered.ID, Role: types.ProjectRoleLead, JoinedAt: time.Now().UTC()}
	require.NoError(t, s.SaveProjectMember(ctx, store.LockingStrengthUpdate, member))
	post := &types.Post{ID: "post-1", ProjectID: project.ID, AuthorID: registered.ID, Title: "kept", Type: types.PostTypeUpdate, Status: types.PostStatusActive, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SavePost(ctx, store.LockingStrengthUpdate, post))
	notification := &types.Notification{ID: "n-1", AgentID: registered.ID, Kind: types.NotificationKindMention, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveNotification(ctx, store.LockingStrengthUpdate, notification))

	// a warm auth cache entry must not survive the delete
	_, err = manager.Authenticate(ctx, plainKey)
	require.NoError(t, err)

	require.NoError(t, manager.DeleteAgent(ctx, "admin", registered.ID))

	_, err = manager.GetAgent(ctx, registered.ID)
	require.Error(t, err)
	sErr, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, status.NotFound, sErr.Type())

	_, err = manager.Authenticate(ctx, plainKey)
	require.Error(t, err)

	memberships, err := s.GetAgentMemberships(ctx, store.LockingStrengthShare, registered.ID)
	require.NoError(t, err)
	require.Empty(t, memberships)

	notifications, err := s.GetAgentNotifications(ctx, store.LockingStrengthShare, registered.ID, false, 0)
	require.NoError(t, err)
	require.Empty(t, notifications)

	// authored posts survive the agent
	_, err = s.GetPostByID(ctx, store.LockingStrengthShare, post.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, err := eventStore.Get("", 0, 100, false)
		if err != nil {
			return false
		}
		for _, event := range events {
			if event.Activity == activity.AgentDeleted && event.TargetID == registered.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
