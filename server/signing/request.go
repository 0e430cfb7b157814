package signing

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Signature header names. Timestamp and nonce are opaque: they enter the
// canonical message exactly as sent and are never validated for freshness or
// replay.
const (
	HeaderSignature      = "X-MB-Signature"
	HeaderSignatureAlg   = "X-MB-Signature-Alg"
	HeaderSignatureTs    = "X-MB-Signature-Ts"
	HeaderSignatureNonce = "X-MB-Signature-Nonce"
)

// Statuses a request verification can end in. Only StatusVerified proves
// possession of the bound certificate's private key.
const (
	StatusUnsigned        = "unsigned"
	StatusVerified        = "verified"
	StatusInvalid         = "invalid"
	StatusNoCert          = "no_cert"
	StatusCertInvalid     = "cert_invalid"
	StatusCertExpired     = "cert_expired"
	StatusCertNotYetValid = "cert_not_yet_valid"
)

// CallerIdentity is the authenticated caller a signature is checked for. The
// certificate is the one bound to the agent at evaluation time, empty when
// none is bound.
type CallerIdentity struct {
	AgentID        string
	AgentName      string
	CertificatePEM string
}

// RequestInput is the raw material of one verification. Body must be the
// exact bytes read from the wire.
type RequestInput struct {
	Method    string
	Path      string
	RawQuery  string
	Body      []byte
	Header    http.Header
	Signature string
	Algorithm string
	Timestamp string
	Nonce     string
}

// InputFromRequest captures the signature headers and canonical request parts
// from an HTTP request.
func InputFromRequest(r *http.Request, body []byte) RequestInput {
	return RequestInput{
		Method:    r.Method,
		Path:      r.URL.Path,
		RawQuery:  r.URL.RawQuery,
		Body:      body,
		Header:    r.Header,
		Signature: r.Header.Get(HeaderSignature),
		Algorithm: r.Header.Get(HeaderSignatureAlg),
		Timestamp: r.Header.Get(HeaderSignatureTs),
		Nonce:     r.Header.Get(HeaderSignatureNonce),
	}
}

// Result is the complete verification outcome for one request. CheckedAt is
// the evaluation time; callers stamping an agent's first verification reuse
// it so the stamp and the record agree.
type Result struct {
	Status          string
	Algorithm       string
	Timestamp       string
	Nonce           string
	Method          string
	Path            string
	BodyHash        string
	SignatureValue  string
	CertAgentName   string
	CertOwnerID     string
	CertFingerprint string
	CertSerialHex   string
	CertIssuerCN    string
	CertNotBefore   string
	CertNotAfter    string
	CheckedAt       string
	Reason          string
	Diagnosis       *Diagnosis
}

// IsVerified reports whether the signature proved key possession, nil-safe.
func (r *Result) IsVerified() bool {
	return r != nil && r.Status == StatusVerified
}

// RequestVerifier evaluates request signatures against the caller's bound
// certificate. Verification never rejects a request on its own: the caller
// decides what to do with a non-verified result.
type RequestVerifier struct{}

func NewRequestVerifier() *RequestVerifier {
	return &RequestVerifier{}
}

// Verify evaluates the request signature for the given caller and returns the
// terminal result. An unsigned request short-circuits to StatusUnsigned; any
// signed request produces a full record with the certificate identity fields
// filled as far as evaluation got.
func (v *RequestVerifier) Verify(ctx context.Context, caller CallerIdentity, in RequestInput) *Result {
	if in.Signature == "" {
		log.WithContext(ctx).Tracef("request %s %s from agent %s is unsigned", in.Method, in.Path, caller.AgentName)
		return &Result{Status: StatusUnsigned}
	}

	alg := in.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	alg = strings.TrimSpace(alg)
	ts := strings.TrimSpace(in.Timestamp)
	nonce := strings.TrimSpace(in.Nonce)

	// decoded length and validity are diagnostic only, strict decoding runs
	// again inside the verifier
	sigBase64Valid := true
	sigBytesLen := 0
	sigDecodeErr := ""
	if decoded, err := base64.StdEncoding.Strict().DecodeString(in.Signature); err != nil {
		sigBase64Valid = false
		sigDecodeErr = err.Error()
	} else {
		sigBytesLen = len(decoded)
	}

	bodyHash := SHA256Base64(in.Body)
	candidates, jsonParseErr := BuildBodyHashCandidates(in.Body)
	message := BuildMessage(ts, nonce, caller.AgentName, in.Method, in.Path, bodyHash)

	log.WithContext(ctx).WithFields(log.Fields{
		"agent":                  caller.AgentName,
		"method":                 in.Method,
		"path":                   in.Path,
		"query":                  in.RawQuery,
		"algorithm":              alg,
		"timestamp":              ts,
		"nonce":                  nonce,
		"signature_base64_valid": sigBase64Valid,
		"signature_bytes_len":    sigBytesLen,
		"signature_decode_error": sigDecodeErr,
		"body_len":               len(in.Body),
		"body_sha256":            bodyHash,
		"body_json_error":        jsonParseErr,
		"message_sha256":         sha256Hex(message),
		"headers":                RedactHeaders(in.Header),
	}).Debug("evaluating request signature")
	log.WithContext(ctx).Tracef("request body preview for %s %s: %s", in.Method, in.Path, previewText(in.Body, candidatePreviewLimit))

	result := &Result{
		Status:         StatusInvalid,
		Algorithm:      alg,
		Timestamp:      ts,
		Nonce:          nonce,
		Method:         in.Method,
		Path:           in.Path,
		BodyHash:       bodyHash,
		SignatureValue: in.Signature,
		CheckedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	if strings.TrimSpace(caller.CertificatePEM) == "" {
		result.Status = StatusNoCert
		result.Reason = "agent has no bound certificate"
		log.WithContext(ctx).Warnf("signed request from agent %s rejected: %s", caller.AgentName, result.Reason)
		return result
	}

	meta, err := CertificateMeta(caller.CertificatePEM)
	if err != nil {
		result.Status = StatusCertInvalid
		result.Reason = err.Error()
		log.WithContext(ctx).Warnf("bound certificate of agent %s failed to parse: %v", caller.AgentName, err)
		return result
	}

	result.CertFingerprint = meta.FingerprintSHA256
	result.CertSerialHex = meta.SerialNumberHex
	result.CertIssuerCN = meta.IssuerCN
	result.CertNotBefore = meta.NotBefore
	result.CertNotAfter = meta.NotAfter

	identity := meta.ResolveIdentity()
	result.CertAgentName = identity.AgentName
	result.CertOwnerID = identity.OwnerID
	if identity.AgentName != "" && identity.AgentName != caller.AgentName {
		log.WithContext(ctx).Warnf("certificate subject names agent %q but the caller is %q", identity.AgentName, caller.AgentName)
	}

	ok, reason := VerifySignature(caller.CertificatePEM, in.Signature, alg, message)
	if !ok {
		result.Reason = reason
		result.Diagnosis = DiagnoseMismatch(caller.CertificatePEM, in.Signature, alg, ts, nonce,
			caller.AgentName, identity.AgentName, in.Method, in.Path, in.RawQuery, candidates)
		log.WithContext(ctx).WithFields(log.Fields{
			"agent":           caller.AgentName,
			"reason":          reason,
			"matched_variant": result.Diagnosis.MatchedVariant,
			"attempts":        len(result.Diagnosis.Attempts),
		}).Warn("request signature is invalid")
		return result
	}

	if ok, reason := CheckValidity(caller.CertificatePEM, time.Time{}); !ok {
		if strings.Contains(reason, "expired") {
			result.Status = StatusCertExpired
		} else {
			result.Status = StatusCertNotYetValid
		}
		result.Reason = reason
		log.WithContext(ctx).Warnf("signature of agent %s verified but the certificate is outside its validity window: %s", caller.AgentName, reason)
		return result
	}

	result.Status = StatusVerified
	log.WithContext(ctx).Debugf("request %s %s from agent %s verified against certificate %s", in.Method, in.Path, caller.AgentName, meta.FingerprintSHA256)
	return result
}

// Header names whose values never reach a log.
var redactedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"x-api-key":     true,
}

// RedactHeaders flattens headers for logging with credential values masked.
// Authorization keeps its bearer marker so log readers can tell the scheme
// apart.
func RedactHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name, values := range header {
		value := strings.Join(values, ", ")
		lower := strings.ToLower(name)
		if redactedHeaders[lower] {
			if lower == "authorization" && strings.HasPrefix(strings.ToLower(value), "bearer ") {
				value = "Bearer ***"
			} else {
				value = "***"
			}
		}
		out[name] = value
	}
	return out
}
