package signing

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePublicKey(t *testing.T) {
	key := generateTestKey(t)
	pkixPEM := publicKeyPEM(t, key)
	pkcs1PEM := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)}))

	t.Run("pkix input is stable", func(t *testing.T) {
		normalized, err := NormalizePublicKey("  " + pkixPEM + "\n")
		require.NoError(t, err)
		assert.Equal(t, pkixPEM, normalized)
	})

	t.Run("pkcs1 input converts to pkix", func(t *testing.T) {
		normalized, err := NormalizePublicKey(pkcs1PEM)
		require.NoError(t, err)
		assert.Equal(t, pkixPEM, normalized)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := NormalizePublicKey("   ")
		assert.EqualError(t, err, "empty public key")

		_, err = NormalizePublicKey("not a key")
		assert.EqualError(t, err, "invalid public key pem: no public key block found")

		wrongType := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{0x30}}))
		_, err = NormalizePublicKey(wrongType)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported block type")
	})
}

func TestPublicKeyFingerprint(t *testing.T) {
	key := generateTestKey(t)
	pkixPEM := publicKeyPEM(t, key)
	pkcs1PEM := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)}))

	fpPKIX, err := PublicKeyFingerprint(pkixPEM)
	require.NoError(t, err)
	assert.Regexp(t, fingerprintRE, fpPKIX)

	// the same key fingerprints identically regardless of the input encoding
	fpPKCS1, err := PublicKeyFingerprint(pkcs1PEM)
	require.NoError(t, err)
	assert.Equal(t, fpPKIX, fpPKCS1)

	otherFP, err := PublicKeyFingerprint(publicKeyPEM(t, generateTestKey(t)))
	require.NoError(t, err)
	assert.NotEqual(t, fpPKIX, otherFP)
}

func TestExtractCertificatePublicKey(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")

	extracted, err := ExtractCertificatePublicKey(certPEM)
	require.NoError(t, err)
	assert.Equal(t, publicKeyPEM(t, key), extracted)

	_, err = ExtractCertificatePublicKey("")
	assert.EqualError(t, err, "empty certificate")
}

func TestKeyMatchesCertificate(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")

	t.Run("matching key", func(t *testing.T) {
		ok, reason := KeyMatchesCertificate(publicKeyPEM(t, key), certPEM)
		assert.True(t, ok)
		assert.Equal(t, "ok", reason)
	})

	t.Run("different key", func(t *testing.T) {
		ok, reason := KeyMatchesCertificate(publicKeyPEM(t, generateTestKey(t)), certPEM)
		assert.False(t, ok)
		assert.Equal(t, "public key does not match certificate", reason)
	})

	t.Run("non rsa certificate", func(t *testing.T) {
		ok, reason := KeyMatchesCertificate(publicKeyPEM(t, key), makeEd25519Cert(t))
		assert.False(t, ok)
		assert.Equal(t, "public key type does not match certificate", reason)
	})

	t.Run("bad inputs", func(t *testing.T) {
		ok, reason := KeyMatchesCertificate(publicKeyPEM(t, key), "")
		assert.False(t, ok)
		assert.Equal(t, "empty certificate", reason)

		ok, reason = KeyMatchesCertificate("", certPEM)
		assert.False(t, ok)
		assert.Equal(t, "empty public key", reason)
	})
}
