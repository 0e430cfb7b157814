package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_PKCS1v15(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")
	message := BuildMessage("1724", "n-1", "scout", "POST", "/p", SHA256Base64([]byte("body")))
	signature := signPKCS1v15(t, key, message)

	for _, alg := range []string{"rsa-sha256", "rsa-v1_5-sha256", "rsassa-pkcs1v15-sha256", " RSA-V1_5-SHA256 "} {
		t.Run(alg, func(t *testing.T) {
			ok, reason := VerifySignature(certPEM, signature, alg, message)
			assert.True(t, ok)
			assert.Equal(t, "ok", reason)
		})
	}
}

func TestVerifySignature_PSS(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")
	message := BuildMessage("1724", "n-1", "scout", "POST", "/p", SHA256Base64([]byte("body")))
	signature := signPSS(t, key, message)

	for _, alg := range []string{"rsa-pss-sha256", "rsassa-pss-sha256"} {
		t.Run(alg, func(t *testing.T) {
			ok, reason := VerifySignature(certPEM, signature, alg, message)
			assert.True(t, ok)
			assert.Equal(t, "ok", reason)
		})
	}

	// a PSS signature never verifies under the v1.5 tags
	ok, reason := VerifySignature(certPEM, signature, "rsa-v1_5-sha256", message)
	assert.False(t, ok)
	assert.Equal(t, "signature verification failed", reason)
}

func TestVerifySignature_Failures(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")
	message := BuildMessage("1724", "n-1", "scout", "POST", "/p", SHA256Base64([]byte("body")))
	signature := signPKCS1v15(t, key, message)

	tests := []struct {
		name           string
		certPEM        string
		signature      string
		algorithm      string
		message        []byte
		expectedReason string
	}{
		{
			name:           "empty signature",
			certPEM:        certPEM,
			signature:      "",
			algorithm:      "rsa-v1_5-sha256",
			message:        message,
			expectedReason: "empty signature",
		},
		{
			name:           "signature not base64",
			certPEM:        certPEM,
			signature:      "@@not-base64@@",
			algorithm:      "rsa-v1_5-sha256",
			message:        message,
			expectedReason: "signature is not valid base64",
		},
		{
			name:           "unsupported algorithm keeps the raw tag",
			certPEM:        certPEM,
			signature:      signature,
			algorithm:      "hmac-sha256",
			message:        message,
			expectedReason: "unsupported algorithm: hmac-sha256",
		},
		{
			name:           "tampered message",
			certPEM:        certPEM,
			signature:      signature,
			algorithm:      "rsa-v1_5-sha256",
			message:        BuildMessage("1724", "n-1", "scout", "POST", "/other", SHA256Base64([]byte("body"))),
			expectedReason: "signature verification failed",
		},
		{
			name:           "wrong key",
			certPEM:        makeValidCert(t, generateTestKey(t), "scout"),
			signature:      signature,
			algorithm:      "rsa-v1_5-sha256",
			message:        message,
			expectedReason: "signature verification failed",
		},
		{
			name:           "non rsa certificate",
			certPEM:        makeEd25519Cert(t),
			signature:      signature,
			algorithm:      "rsa-v1_5-sha256",
			message:        message,
			expectedReason: "certificate public key is not RSA",
		},
		{
			name:           "bad certificate",
			certPEM:        "garbage",
			signature:      signature,
			algorithm:      "rsa-v1_5-sha256",
			message:        message,
			expectedReason: "invalid certificate pem: no certificate block found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := VerifySignature(tc.certPEM, tc.signature, tc.algorithm, tc.message)
			assert.False(t, ok)
			assert.Equal(t, tc.expectedReason, reason)
		})
	}
}
