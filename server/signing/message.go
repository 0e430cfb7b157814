package signing

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

const (
	// SignatureVersion is the first line of every canonical signing message.
	SignatureVersion = "MB2"

	// DefaultAlgorithm labels RSASSA-PKCS1-v1_5 with SHA-256, assumed when a
	// signed request does not name an algorithm.
	DefaultAlgorithm = "rsa-v1_5-sha256"
)

// SHA256Base64 returns the standard-base64 SHA-256 digest of data.
func SHA256Base64(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// BuildMessage assembles the canonical signing message: the version tag, the
// timestamp and nonce exactly as sent, the trimmed agent name, the uppercased
// method, the path without query, and the base64 SHA-256 body digest, each
// field terminated by a newline.
func BuildMessage(ts, nonce, agentName, method, path, bodyHashB64 string) []byte {
	return buildMessageVariant(ts, nonce, agentName, method, path, bodyHashB64, "\n", true)
}

// buildMessageVariant is BuildMessage with the canonicalization knobs the
// mismatch diagnosis toggles: the line ending and whether the method is
// uppercased.
func buildMessageVariant(ts, nonce, agentName, method, path, bodyHashB64, lineEnding string, uppercaseMethod bool) []byte {
	if uppercaseMethod {
		method = strings.ToUpper(method)
	}
	var b strings.Builder
	for _, field := range []string{SignatureVersion, ts, nonce, strings.TrimSpace(agentName), method, path, bodyHashB64} {
		b.WriteString(field)
		b.WriteString(lineEnding)
	}
	return []byte(b.String())
}
