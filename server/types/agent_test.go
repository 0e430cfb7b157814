package types

import (
	"crypto/sha256"
	b64 "encoding/base64"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshboardio/meshboard/base62"
)

func TestAgent_TableName(t *testing.T) {
	agent := Agent{}
	assert.Equal(t, "agents", agent.TableName())
}

func TestGenerateAgentKey_Success(t *testing.T) {
	hashedKey, plainKey, err := GenerateAgentKey()
	require.NoError(t, err)
	assert.NotEmpty(t, hashedKey)
	assert.NotEmpty(t, plainKey)
}

func TestGenerateAgentKey_Length(t *testing.T) {
	_, plainKey, err := GenerateAgentKey()
	require.NoError(t, err)
	assert.Len(t, plainKey, AgentKeyLength)
}

func TestGenerateAgentKey_Prefix(t *testing.T) {
	_, plainKey, err := GenerateAgentKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plainKey, AgentKeyPrefix))
}

func TestGenerateAgentKey_Hashing(t *testing.T) {
	hashedKey, plainKey, err := GenerateAgentKey()
	require.NoError(t, err)

	expectedHash := sha256.Sum256([]byte(plainKey))
	expectedHashedKey := b64.StdEncoding.EncodeToString(expectedHash[:])
	assert.Equal(t, expectedHashedKey, hashedKey)
}

func TestGenerateAgentKey_Checksum(t *testing.T) {
	_, plainKey, err := GenerateAgentKey()
	require.NoError(t, err)

	secret := plainKey[len(AgentKeyPrefix) : len(AgentKeyPrefix)+AgentKeySecretLength]
	checksumStr := plainKey[len(AgentKeyPrefix)+AgentKeySecretLength:]

	expectedChecksum := crc32.ChecksumIEEE([]byte(secret))
	actualChecksum, err := base62.Decode(checksumStr)
	require.NoError(t, err)
	assert.Equal(t, expectedChecksum, actualChecksum)
}

func TestGenerateAgentKey_Uniqueness(t *testing.T) {
	keys := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, plainKey, err := GenerateAgentKey()
		require.NoError(t, err)
		assert.False(t, keys[plainKey], "Key should be unique")
		keys[plainKey] = true
	}
}

func TestGenerateAgentKey_ValidatesOwnOutput(t *testing.T) {
	for i := 0; i < 50; i++ {
		_, plainKey, err := GenerateAgentKey()
		require.NoError(t, err)

		err = ValidateAgentKeyFormat(plainKey)
		assert.NoError(t, err, "Generated key should always be valid")
	}
}

func TestHashAgentKey_Consistency(t *testing.T) {
	key := "mba_testkey1234567890123456789012345678"
	hash1 := HashAgentKey(key)
	hash2 := HashAgentKey(key)
	assert.Equal(t, hash1, hash2)
}

func TestVerifyAgentKeyHash(t *testing.T) {
	hashedKey, plainKey, err := GenerateAgentKey()
	require.NoError(t, err)

	assert.True(t, VerifyAgentKeyHash(plainKey, hashedKey))
	assert.False(t, VerifyAgentKeyHash(plainKey+"x", hashedKey))
	assert.False(t, VerifyAgentKeyHash("", hashedKey))
}

func TestValidateAgentKeyFormat_InvalidLength(t *testing.T) {
	testCases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"too short", "mba_abc"},
		{"too long", "mba_" + strings.Repeat("a", 50)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAgentKeyFormat(tc.key)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid key length")
		})
	}
}

func TestValidateAgentKeyFormat_InvalidPrefix(t *testing.T) {
	key := "xyz_" + strings.Repeat("a", 30) + "000000"
	err := ValidateAgentKeyFormat(key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key prefix")
}

func TestValidateAgentKeyFormat_InvalidChecksum(t *testing.T) {
	key := AgentKeyPrefix + strings.Repeat("a", AgentKeySecretLength) + "ZZZZZZ"
	err := ValidateAgentKeyFormat(key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum")
}

func TestValidateAgentKeyFormat_ModifiedKey(t *testing.T) {
	_, plainKey, err := GenerateAgentKey()
	require.NoError(t, err)

	modifiedKey := plainKey[:5] + "X" + plainKey[6:]
	err = ValidateAgentKeyFormat(modifiedKey)
	require.Error(t, err)
}

func TestHiddenKey(t *testing.T) {
	key := "mba_12345678901234567890123456789012345"
	hidden := HiddenKey(key, 4)
	assert.Equal(t, "mba_1****", hidden)
}

func TestAgent_IsOnline(t *testing.T) {
	now := time.Now().UTC()

	t.Run("never seen", func(t *testing.T) {
		agent := &Agent{}
		assert.False(t, agent.IsOnline(now))
	})

	t.Run("seen recently", func(t *testing.T) {
		seen := now.Add(-time.Minute)
		agent := &Agent{LastSeenAt: &seen}
		assert.True(t, agent.IsOnline(now))
	})

	t.Run("seen at the window boundary", func(t *testing.T) {
		seen := now.Add(-AgentOnlineWindow)
		agent := &Agent{LastSeenAt: &seen}
		assert.True(t, agent.IsOnline(now))
	})

	t.Run("seen too long ago", func(t *testing.T) {
		seen := now.Add(-AgentOnlineWindow - time.Second)
		agent := &Agent{LastSeenAt: &seen}
		assert.False(t, agent.IsOnline(now))
	})
}

func TestAgent_IdentityStatus(t *testing.T) {
	testCases := []struct {
		name     string
		agent    *Agent
		expected string
	}{
		{
			name:     "nothing bound",
			agent:    &Agent{},
			expected: IdentityStatusUnbound,
		},
		{
			name:     "public key only",
			agent:    &Agent{IdentityPublicKeyPEM: "-----BEGIN PUBLIC KEY-----"},
			expected: IdentityStatusPublicKeyBound,
		},
		{
			name: "certificate bound, not yet verified",
			agent: &Agent{
				IdentityCertificatePEM: "-----BEGIN CERTIFICATE-----",
				IdentityPublicKeyPEM:   "-----BEGIN PUBLIC KEY-----",
			},
			expected: IdentityStatusBound,
		},
		{
			name: "certificate bound and verified",
			agent: &Agent{
				IdentityCertificatePEM: "-----BEGIN CERTIFICATE-----",
				IdentityPublicKeyPEM:   "-----BEGIN PUBLIC KEY-----",
				IdentityMeta:           map[string]string{MetaVerifiedAt: "2025-01-01T00:00:00Z"},
			},
			expected: IdentityStatusVerified,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.agent.IdentityStatus())
		})
	}
}

func TestAgent_Copy(t *testing.T) {
	now := time.Now().UTC()
	seen := now.Add(-time.Minute)

	original := &Agent{
		ID:                     "agent-id",
		Name:                   "builder-1",
		Role:                   "backend",
		OwnerID:                "owner-1",
		KeyHash:                "key-hash",
		KeySecret:              "mba_8****",
		CreatedAt:              now,
		UpdatedAt:              now,
		LastSeenAt:             &seen,
		IdentityCertificatePEM: "cert-pem",
		IdentityPublicKeyPEM:   "key-pem",
		IdentityMeta:           map[string]string{MetaFingerprint: "AA:BB"},
	}

	copied := original.Copy()
	assert.Equal(t, original, copied)

	copied.IdentityMeta[MetaFingerprint] = "CC:DD"
	assert.Equal(t, "AA:BB", original.IdentityMeta[MetaFingerprint])

	*copied.LastSeenAt = now.Add(-time.Hour)
	assert.Equal(t, seen, *original.LastSeenAt)
}

func TestNewAgentID(t *testing.T) {
	id := NewAgentID()
	assert.NotEmpty(t, id)
	assert.Len(t, id, 20) // xid generates 20 character IDs
}

func TestAgentKeyConstants(t *testing.T) {
	expectedLength := len(AgentKeyPrefix) + AgentKeySecretLength + AgentKeyChecksumLength
	assert.Equal(t, AgentKeyLength, expectedLength)
	assert.Equal(t, 4, len(AgentKeyPrefix))
	assert.Equal(t, 30, AgentKeySecretLength)
	assert.Equal(t, 6, AgentKeyChecksumLength)
	assert.Equal(t, 40, AgentKeyLength)
}
