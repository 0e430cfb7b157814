package signing

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// VerifySignature checks a base64 signature over message against the
// certificate public key. Algorithm tags are matched lowercase after
// trimming; "rsa-sha256", "rsa-v1_5-sha256" and "rsassa-pkcs1v15-sha256"
// select PKCS#1 v1.5, "rsa-pss-sha256" and "rsassa-pss-sha256" select PSS.
// The second return value is "ok" on success and a fixed reason otherwise,
// with a single generic reason for a failed check so callers never leak
// which verification step broke.
func VerifySignature(certPEM, signatureB64, algorithm string, message []byte) (bool, string) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return false, err.Error()
	}
	if signatureB64 == "" {
		return false, "empty signature"
	}
	sig, err := base64.StdEncoding.Strict().DecodeString(signatureB64)
	if err != nil {
		return false, "signature is not valid base64"
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false, "certificate public key is not RSA"
	}

	digest := sha256.Sum256(message)
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "rsa-sha256", "rsa-v1_5-sha256", "rsassa-pkcs1v15-sha256":
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			return false, "signature verification failed"
		}
	case "rsa-pss-sha256", "rsassa-pss-sha256":
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
		if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, opts); err != nil {
			return false, "signature verification failed"
		}
	default:
		return false, "unsupported algorithm: " + algorithm
	}
	return true, "ok"
}
