// Package signing implements agent identity certificate parsing and request
// signature verification. Verification is offline-first: signatures are
// checked against the agent-bound X.509 certificate public key, with an
// optional certificate time-window validation and no chain or revocation
// checks.
package signing

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Subject attribute OIDs looked up for identity extraction
var (
	oidSerialNumber       = asn1.ObjectIdentifier{2, 5, 4, 5}
	oidUserID             = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}
	oidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	oidOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
)

// CertMeta is the parsed metadata of an identity certificate. String fields
// are empty when the certificate does not carry the attribute.
type CertMeta struct {
	FingerprintSHA256    string
	SerialNumberHex      string
	IssuerCN             string
	SubjectCN            string
	SubjectSerialNumber  string
	SubjectUID           string
	SubjectOU            string
	SubjectO             string
	SubjectRDNValue      string
	SubjectIdentityValue string
	NotBefore            string
	NotAfter             string
	PublicKeyType        string
}

// Map returns the metadata as the flat key set cached on an agent's identity
// binding.
func (m *CertMeta) Map() map[string]string {
	return map[string]string{
		"fingerprint_sha256":     m.FingerprintSHA256,
		"serial_number_hex":      m.SerialNumberHex,
		"issuer_cn":              m.IssuerCN,
		"subject_cn":             m.SubjectCN,
		"subject_serial_number":  m.SubjectSerialNumber,
		"subject_uid":            m.SubjectUID,
		"subject_ou":             m.SubjectOU,
		"subject_o":              m.SubjectO,
		"subject_rdn_value":      m.SubjectRDNValue,
		"subject_identity_value": m.SubjectIdentityValue,
		"not_before":             m.NotBefore,
		"not_after":              m.NotAfter,
		"public_key_type":        m.PublicKeyType,
	}
}

// ParseCertificate parses a PEM-encoded X.509 certificate. It fails on empty
// input, a missing or non-certificate PEM block, and malformed DER.
func ParseCertificate(certPEM string) (*x509.Certificate, error) {
	trimmed := strings.TrimSpace(certPEM)
	if trimmed == "" {
		return nil, errors.New("empty certificate")
	}
	block, _ := pem.Decode([]byte(trimmed))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("invalid certificate pem: no certificate block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate pem: %w", err)
	}
	return cert, nil
}

// CertificateMeta parses a certificate and extracts its identity metadata.
func CertificateMeta(certPEM string) (*CertMeta, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, err
	}

	return &CertMeta{
		FingerprintSHA256:    fingerprintSHA256(cert.Raw),
		SerialNumberHex:      cert.SerialNumber.Text(16),
		IssuerCN:             cert.Issuer.CommonName,
		SubjectCN:            cert.Subject.CommonName,
		SubjectSerialNumber:  subjectAttr(cert.Subject, oidSerialNumber),
		SubjectUID:           subjectAttr(cert.Subject, oidUserID),
		SubjectOU:            subjectAttr(cert.Subject, oidOrganizationalUnit),
		SubjectO:             subjectAttr(cert.Subject, oidOrganization),
		SubjectRDNValue:      firstRDNValue(cert.Subject),
		SubjectIdentityValue: subjectIdentityValue(cert.Subject),
		NotBefore:            toUTCISO(cert.NotBefore),
		NotAfter:             toUTCISO(cert.NotAfter),
		PublicKeyType:        publicKeyType(cert.PublicKey),
	}, nil
}

// CheckValidity validates now against the certificate time window. The bounds
// are inclusive and there is no grace period. A zero now means current UTC
// time.
func CheckValidity(certPEM string, now time.Time) (bool, string) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return false, err.Error()
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	if now.Before(cert.NotBefore) {
		return false, "certificate not yet valid"
	}
	if now.After(cert.NotAfter) {
		return false, "certificate expired"
	}
	return true, "ok"
}

// fingerprintSHA256 formats the SHA-256 digest of der as colon-separated
// uppercase hex pairs.
func fingerprintSHA256(der []byte) string {
	sum := sha256.Sum256(der)
	hexUp := strings.ToUpper(hex.EncodeToString(sum[:]))
	pairs := make([]string, 0, len(hexUp)/2)
	for i := 0; i < len(hexUp); i += 2 {
		pairs = append(pairs, hexUp[i:i+2])
	}
	return strings.Join(pairs, ":")
}

// subjectAttr returns the first non-blank value of the given attribute type,
// walking subject attributes in RDN order.
func subjectAttr(name pkix.Name, oid asn1.ObjectIdentifier) string {
	for _, attr := range name.Names {
		if !attr.Type.Equal(oid) {
			continue
		}
		if value, ok := attr.Value.(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// firstRDNValue returns the first subject attribute value as-is, a
// low-confidence identity fallback.
func firstRDNValue(name pkix.Name) string {
	for _, attr := range name.Names {
		if value, ok := attr.Value.(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// subjectIdentityValue finds the best subject attribute value for identity
// parsing, preferring values that look like comma-separated identity payloads.
func subjectIdentityValue(name pkix.Name) string {
	var candidates []string
	for _, attr := range name.Names {
		if value, ok := attr.Value.(string); ok && strings.TrimSpace(value) != "" {
			candidates = append(candidates, strings.TrimSpace(value))
		}
	}

	for _, value := range candidates {
		parts := strings.Split(value, ",")
		if len(parts) >= 2 && strings.TrimSpace(parts[0]) != "" && strings.TrimSpace(parts[1]) != "" {
			return value
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func publicKeyType(pub any) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RSA"
	case *ecdsa.PublicKey:
		return "ECDSA"
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return "unknown"
	}
}

// toUTCISO renders a certificate timestamp as ISO-8601 UTC.
func toUTCISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
