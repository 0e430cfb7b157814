package signing

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// parsePublicKey accepts SubjectPublicKeyInfo ("PUBLIC KEY") and PKCS#1
// ("RSA PUBLIC KEY") PEM blocks.
func parsePublicKey(pubPEM string) (any, error) {
	trimmed := strings.TrimSpace(pubPEM)
	if trimmed == "" {
		return nil, errors.New("empty public key")
	}
	block, _ := pem.Decode([]byte(trimmed))
	if block == nil {
		return nil, errors.New("invalid public key pem: no public key block found")
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid public key pem: %w", err)
		}
		return key, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid public key pem: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("invalid public key pem: unsupported block type %q", block.Type)
	}
}

// NormalizePublicKey re-encodes a public key PEM into canonical
// SubjectPublicKeyInfo form, so that equal keys from different encodings
// compare and fingerprint identically.
func NormalizePublicKey(pubPEM string) (string, error) {
	key, err := parsePublicKey(pubPEM)
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid public key pem: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PublicKeyFingerprint returns the SHA-256 fingerprint of the canonical
// SubjectPublicKeyInfo encoding, as colon-separated uppercase hex pairs.
func PublicKeyFingerprint(pubPEM string) (string, error) {
	key, err := parsePublicKey(pubPEM)
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("invalid public key pem: %w", err)
	}
	return fingerprintSHA256(der), nil
}

// ExtractCertificatePublicKey returns the certificate public key as a
// canonical SubjectPublicKeyInfo PEM.
func ExtractCertificatePublicKey(certPEM string) (string, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to extract certificate public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// KeyMatchesCertificate reports whether the standalone public key is the
// certificate's key. Only RSA keys compare, by modulus and exponent; any
// other key type is a mismatch. The second return value is "ok" on a match
// and the failure reason otherwise.
func KeyMatchesCertificate(pubPEM, certPEM string) (bool, string) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return false, err.Error()
	}
	key, err := parsePublicKey(pubPEM)
	if err != nil {
		return false, err.Error()
	}

	rsaKey, keyOK := key.(*rsa.PublicKey)
	rsaCert, certOK := cert.PublicKey.(*rsa.PublicKey)
	if !keyOK || !certOK {
		return false, "public key type does not match certificate"
	}
	if rsaKey.N.Cmp(rsaCert.N) == 0 && rsaKey.E == rsaCert.E {
		return true, "ok"
	}
	return false, "public key does not match certificate"
}
