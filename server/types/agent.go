package types

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	b64 "encoding/base64"
	"fmt"
	"hash/crc32"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/meshboardio/meshboard/base62"
)

const (
	// AgentKeyPrefix is the prefix of every MeshBoard API key
	AgentKeyPrefix = "mba_"
	// AgentKeySecretLength is the length of the random secret part of an API key
	AgentKeySecretLength = 30
	// AgentKeyChecksumLength is the length of the base62 crc32 checksum suffix
	AgentKeyChecksumLength = 6
	// AgentKeyLength is the total length of a plain API key
	AgentKeyLength = len(AgentKeyPrefix) + AgentKeySecretLength + AgentKeyChecksumLength
	// AgentOnlineWindow is how recently an agent must have sent a request to count as online
	AgentOnlineWindow = 10 * time.Minute
	// AdminActor is the initiator ID recorded for operations performed with the admin key.
	// It can never collide with an agent ID because agent IDs are xids.
	AdminActor = "admin"
)

// Identity binding statuses reported on identity info responses.
const (
	IdentityStatusUnbound        = "unbound"
	IdentityStatusPublicKeyBound = "public_key_bound"
	IdentityStatusBound          = "bound"
	IdentityStatusVerified       = "verified"
)

// Keys of the cached IdentityMeta blob, re-derived on every bind.
const (
	MetaFingerprint          = "fingerprint_sha256"
	MetaSerialNumberHex      = "serial_number_hex"
	MetaIssuerCN             = "issuer_cn"
	MetaSubjectCN            = "subject_cn"
	MetaNotBefore            = "not_before"
	MetaNotAfter             = "not_after"
	MetaPublicKeyFingerprint = "public_key_fingerprint_sha256"
	MetaBoundAt              = "bound_at"
	MetaPublicKeyBoundAt     = "public_key_bound_at"
	MetaVerifiedAt           = "verified_at"
)

// Agent represents a logical identity (a human teammate or an automation)
// interacting with the boards via an API key. An agent may additionally carry
// an identity binding: an X.509 certificate and/or a raw public key used to
// verify signed writes.
type Agent struct {
	ID string `gorm:"primaryKey"`
	// Name is the unique logical name the agent authenticates as. Signed
	// canonical messages embed this name, not whatever the certificate claims.
	Name    string `gorm:"uniqueIndex"`
	Role    string
	OwnerID string `gorm:"index"`
	// KeyHash is the base64 SHA-256 hash of the full plain API key
	KeyHash string `json:"-" gorm:"index"`
	// KeySecret is the masked display form of the key ("mba_8*****")
	KeySecret  string
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
	LastSeenAt *time.Time

	// IdentityCertificatePEM holds the bound certificate, immutable except via rebind
	IdentityCertificatePEM string
	// IdentityPublicKeyPEM is the canonical SubjectPublicKeyInfo PEM. Present
	// whenever a certificate is bound (derived from it) or bound standalone.
	IdentityPublicKeyPEM string
	IdentityMeta         map[string]string `gorm:"serializer:json"`
}

// TableName returns the table name for GORM
func (Agent) TableName() string {
	return "agents"
}

// Copy creates a deep copy of the Agent
func (a *Agent) Copy() *Agent {
	meta := make(map[string]string, len(a.IdentityMeta))
	for k, v := range a.IdentityMeta {
		meta[k] = v
	}
	var lastSeen *time.Time
	if a.LastSeenAt != nil {
		t := *a.LastSeenAt
		lastSeen = &t
	}
	return &Agent{
		ID:                     a.ID,
		Name:                   a.Name,
		Role:                   a.Role,
		OwnerID:                a.OwnerID,
		KeyHash:                a.KeyHash,
		KeySecret:              a.KeySecret,
		CreatedAt:              a.CreatedAt,
		UpdatedAt:              a.UpdatedAt,
		LastSeenAt:             lastSeen,
		IdentityCertificatePEM: a.IdentityCertificatePEM,
		IdentityPublicKeyPEM:   a.IdentityPublicKeyPEM,
		IdentityMeta:           meta,
	}
}

// EventMeta returns activity event meta related to the agent
func (a *Agent) EventMeta() map[string]any {
	return map[string]any{"name": a.Name, "role": a.Role, "owner_id": a.OwnerID}
}

// GetLastSeenAt returns the time of the agent's last authenticated request.
func (a *Agent) GetLastSeenAt() time.Time {
	if a.LastSeenAt != nil {
		return *a.LastSeenAt
	}
	return time.Time{}
}

// IsOnline is true if the agent was seen within the online window
func (a *Agent) IsOnline(now time.Time) bool {
	if a.LastSeenAt == nil {
		return false
	}
	return now.Sub(*a.LastSeenAt) <= AgentOnlineWindow
}

// IdentityStatus derives the binding lifecycle state from the stored columns.
func (a *Agent) IdentityStatus() string {
	switch {
	case a.IdentityPublicKeyPEM == "":
		return IdentityStatusUnbound
	case a.IdentityCertificatePEM == "":
		return IdentityStatusPublicKeyBound
	case a.IdentityMeta[MetaVerifiedAt] != "":
		return IdentityStatusVerified
	default:
		return IdentityStatusBound
	}
}

// NewAgentID generates a new agent ID using xid
func NewAgentID() string {
	return xid.New().String()
}

// GenerateAgentKey creates a new plain API key and its stored hash. The plain
// key is mba_{30 char secret}{6 char base62 crc32 checksum} and is shown to
// the caller exactly once.
func GenerateAgentKey() (hash string, plainKey string, err error) {
	secret, err := generateRandomString(AgentKeySecretLength)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate random secret: %w", err)
	}

	checksum := base62.EncodePadded(crc32.ChecksumIEEE([]byte(secret)), AgentKeyChecksumLength)
	plainKey = AgentKeyPrefix + secret + checksum

	return HashAgentKey(plainKey), plainKey, nil
}

// HashAgentKey creates the base64 SHA-256 hash stored in place of a plain key
func HashAgentKey(plainKey string) string {
	hashed := sha256.Sum256([]byte(plainKey))
	return b64.StdEncoding.EncodeToString(hashed[:])
}

// VerifyAgentKeyHash verifies that the provided plain key matches the stored
// hash using constant-time comparison to prevent timing attacks
func VerifyAgentKeyHash(plainKey, storedHash string) bool {
	computedHash := HashAgentKey(plainKey)
	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(storedHash)) == 1
}

// ValidateAgentKeyFormat rejects keys that cannot have been issued by this
// server before any store lookup happens: wrong length, wrong prefix, or a
// checksum that does not match the secret.
func ValidateAgentKeyFormat(plainKey string) error {
	if len(plainKey) != AgentKeyLength {
		return fmt.Errorf("invalid key length: expected %d characters", AgentKeyLength)
	}
	if !strings.HasPrefix(plainKey, AgentKeyPrefix) {
		return fmt.Errorf("invalid key prefix")
	}

	secret := plainKey[len(AgentKeyPrefix) : len(AgentKeyPrefix)+AgentKeySecretLength]
	checksum, err := base62.Decode(plainKey[len(AgentKeyPrefix)+AgentKeySecretLength:])
	if err != nil {
		return fmt.Errorf("invalid key checksum: %w", err)
	}
	if checksum != crc32.ChecksumIEEE([]byte(secret)) {
		return fmt.Errorf("invalid key checksum")
	}
	return nil
}

// HiddenKey returns the key value hidden with "*" and a 5 character prefix.
// E.g., "mba_8*******************************"
func HiddenKey(key string, length int) string {
	prefix := key[0:5]
	if length > utf8.RuneCountInString(key) {
		length = utf8.RuneCountInString(key) - len(prefix)
	}
	return prefix + strings.Repeat("*", length)
}

// generateRandomString generates a cryptographically secure random string
func generateRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b), nil
}
