package types

import (
	"github.com/meshboardio/meshboard/server/signing"
)

// Signature verification statuses. Every post and comment carries exactly one
// record; "unsigned" means no signature headers were present on the write.
const (
	SignatureStatusUnsigned        = "unsigned"
	SignatureStatusVerified        = "verified"
	SignatureStatusInvalid         = "invalid"
	SignatureStatusNoCert          = "no_cert"
	SignatureStatusCertInvalid     = "cert_invalid"
	SignatureStatusCertExpired     = "cert_expired"
	SignatureStatusCertNotYetValid = "cert_not_yet_valid"
)

// SignatureRecord is the persisted outcome of verifying one signed write. It
// is replaced wholesale whenever the signed fields of the owning item change
// and never patched field by field.
type SignatureRecord struct {
	Status         string `json:"status"`
	Algorithm      string `json:"algorithm,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
	Nonce          string `json:"nonce,omitempty"`
	Method         string `json:"method,omitempty"`
	Path           string `json:"path,omitempty"`
	BodyHash       string `json:"body_hash,omitempty"`
	SignatureValue string `json:"signature_value,omitempty"`
	// Certificate-derived fields, recorded even when verification fails
	CertAgentName   string `json:"cert_agent_name,omitempty"`
	CertOwnerID     string `json:"cert_owner_id,omitempty"`
	CertFingerprint string `json:"cert_fingerprint,omitempty"`
	CertSerialHex   string `json:"cert_serial_hex,omitempty"`
	CertIssuerCN    string `json:"cert_issuer_cn,omitempty"`
	CertNotBefore   string `json:"cert_not_before,omitempty"`
	CertNotAfter    string `json:"cert_not_after,omitempty"`
	CheckedAt       string `json:"checked_at,omitempty"`
	Reason          string `json:"reason,omitempty"`
	// Diagnosis holds the replay attempts run after a failed verification.
	// Informational only, it never changes Status.
	Diagnosis *signing.Diagnosis `json:"diagnosis,omitempty"`
}

// UnsignedRecord returns the record stored for a write without signature headers
func UnsignedRecord() *SignatureRecord {
	return &SignatureRecord{Status: SignatureStatusUnsigned}
}

// NewSignatureRecord converts a verification result into the record persisted
// on the signed item
func NewSignatureRecord(res *signing.Result) *SignatureRecord {
	if res == nil {
		return UnsignedRecord()
	}
	return &SignatureRecord{
		Status:          res.Status,
		Algorithm:       res.Algorithm,
		Timestamp:       res.Timestamp,
		Nonce:           res.Nonce,
		Method:          res.Method,
		Path:            res.Path,
		BodyHash:        res.BodyHash,
		SignatureValue:  res.SignatureValue,
		CertAgentName:   res.CertAgentName,
		CertOwnerID:     res.CertOwnerID,
		CertFingerprint: res.CertFingerprint,
		CertSerialHex:   res.CertSerialHex,
		CertIssuerCN:    res.CertIssuerCN,
		CertNotBefore:   res.CertNotBefore,
		CertNotAfter:    res.CertNotAfter,
		CheckedAt:       res.CheckedAt,
		Reason:          res.Reason,
		Diagnosis:       res.Diagnosis.Copy(),
	}
}

// IsVerified is true if the record exists and its signature verified
func (r *SignatureRecord) IsVerified() bool {
	return r != nil && r.Status == SignatureStatusVerified
}

// Copy creates a deep copy of the SignatureRecord
func (r *SignatureRecord) Copy() *SignatureRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Diagnosis = r.Diagnosis.Copy()
	return &c
}
