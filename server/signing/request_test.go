package signing

import (
	"context"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/posts?tag=infra", strings.NewReader(""))
	r.Header.Set(HeaderSignature, "sig")
	r.Header.Set(HeaderSignatureAlg, "rsa-pss-sha256")
	r.Header.Set(HeaderSignatureTs, "1724")
	r.Header.Set(HeaderSignatureNonce, "n-1")

	in := InputFromRequest(r, []byte("body"))
	assert.Equal(t, http.MethodPost, in.Method)
	assert.Equal(t, "/api/v1/projects/p1/posts", in.Path)
	assert.Equal(t, "tag=infra", in.RawQuery)
	assert.Equal(t, []byte("body"), in.Body)
	assert.Equal(t, "sig", in.Signature)
	assert.Equal(t, "rsa-pss-sha256", in.Algorithm)
	assert.Equal(t, "1724", in.Timestamp)
	assert.Equal(t, "n-1", in.Nonce)
}

func TestRequestVerifier_Unsigned(t *testing.T) {
	res := NewRequestVerifier().Verify(context.Background(), CallerIdentity{AgentName: "scout"}, RequestInput{
		Method: http.MethodGet,
		Path:   "/api/v1/projects",
		Header: http.Header{},
	})
	assert.Equal(t, StatusUnsigned, res.Status)
	assert.Empty(t, res.Reason)
	assert.Empty(t, res.CheckedAt)
	assert.False(t, res.IsVerified())
}

func TestRequestVerifier_Verified(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")
	body := []byte(`{"title":"hello"}`)
	message := BuildMessage("1724", "n-1", "scout", http.MethodPost, "/api/v1/projects/p1/posts", SHA256Base64(body))

	in := RequestInput{
		Method:    http.MethodPost,
		Path:      "/api/v1/projects/p1/posts",
		Body:      body,
		Header:    http.Header{},
		Signature: signPKCS1v15(t, key, message),
		Timestamp: " 1724 ",
		Nonce:     "n-1",
	}
	res := NewRequestVerifier().Verify(context.Background(), CallerIdentity{AgentName: "scout", CertificatePEM: certPEM}, in)

	assert.Equal(t, StatusVerified, res.Status)
	assert.True(t, res.IsVerified())
	assert.Empty(t, res.Reason)
	assert.Nil(t, res.Diagnosis)
	// the algorithm defaults and the timestamp is trimmed before signing
	assert.Equal(t, DefaultAlgorithm, res.Algorithm)
	assert.Equal(t, "1724", res.Timestamp)
	assert.Equal(t, "scout", res.CertAgentName)
	assert.Regexp(t, fingerprintRE, res.CertFingerprint)
	assert.Equal(t, "1cafe", res.CertSerialHex)
	assert.Equal(t, "scout", res.CertIssuerCN)
	assert.NotEmpty(t, res.CertNotBefore)
	assert.NotEmpty(t, res.CertNotAfter)

	checkedAt, err := time.Parse(time.RFC3339, res.CheckedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), checkedAt, time.Minute)
}

func TestRequestVerifier_InvalidWithDiagnosis(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")
	body := []byte(`{"title":"hello"}`)

	// signed over a CRLF-joined message, the current rule rejects it
	message := buildMessageVariant("1724", "n-1", "scout", http.MethodPost, "/p", SHA256Base64(body), "\r\n", true)

	in := RequestInput{
		Method:    http.MethodPost,
		Path:      "/p",
		Body:      body,
		Header:    http.Header{},
		Signature: signPKCS1v15(t, key, message),
		Timestamp: "1724",
		Nonce:     "n-1",
	}
	res := NewRequestVerifier().Verify(context.Background(), CallerIdentity{AgentName: "scout", CertificatePEM: certPEM}, in)

	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, "signature verification failed", res.Reason)
	require.NotNil(t, res.Diagnosis)
	assert.NotEmpty(t, res.Diagnosis.Attempts)
	assert.Equal(t, "crlf_line_endings", res.Diagnosis.MatchedVariant)
}

func TestRequestVerifier_NoCert(t *testing.T) {
	in := RequestInput{
		Method:    http.MethodPost,
		Path:      "/p",
		Body:      []byte("x"),
		Header:    http.Header{},
		Signature: "c2ln",
		Timestamp: "1724",
		Nonce:     "n-1",
	}
	res := NewRequestVerifier().Verify(context.Background(), CallerIdentity{AgentName: "scout"}, in)

	assert.Equal(t, StatusNoCert, res.Status)
	assert.Equal(t, "agent has no bound certificate", res.Reason)
	assert.Equal(t, SHA256Base64([]byte("x")), res.BodyHash)
	assert.Equal(t, "c2ln", res.SignatureValue)
	assert.NotEmpty(t, res.CheckedAt)
}

func TestRequestVerifier_CertInvalid(t *testing.T) {
	in := RequestInput{
		Method:    http.MethodPost,
		Path:      "/p",
		Header:    http.Header{},
		Signature: "c2ln",
	}
	res := NewRequestVerifier().Verify(context.Background(), CallerIdentity{AgentName: "scout", CertificatePEM: "garbage"}, in)

	assert.Equal(t, StatusCertInvalid, res.Status)
	assert.Contains(t, res.Reason, "invalid certificate pem")
}

func TestRequestVerifier_CertificateWindow(t *testing.T) {
	key := generateTestKey(t)
	body := []byte("payload")
	message := BuildMessage("1724", "n-1", "scout", http.MethodPost, "/p", SHA256Base64(body))
	signature := signPKCS1v15(t, key, message)
	in := RequestInput{
		Method:    http.MethodPost,
		Path:      "/p",
		Body:      body,
		Header:    http.Header{},
		Signature: signature,
		Timestamp: "1724",
		Nonce:     "n-1",
	}
	caller := func(certPEM string) CallerIdentity {
		return CallerIdentity{AgentName: "scout", CertificatePEM: certPEM}
	}
	now := time.Now().UTC()

	t.Run("expired", func(t *testing.T) {
		certPEM := makeTestCert(t, key, pkix.Name{CommonName: "scout"}, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
		res := NewRequestVerifier().Verify(context.Background(), caller(certPEM), in)
		assert.Equal(t, StatusCertExpired, res.Status)
		assert.Equal(t, "certificate expired", res.Reason)
		// the signature itself checked out, so the certificate fields are recorded
		assert.NotEmpty(t, res.CertFingerprint)
		assert.Nil(t, res.Diagnosis)
	})

	t.Run("not yet valid", func(t *testing.T) {
		certPEM := makeTestCert(t, key, pkix.Name{CommonName: "scout"}, now.Add(24*time.Hour), now.Add(48*time.Hour))
		res := NewRequestVerifier().Verify(context.Background(), caller(certPEM), in)
		assert.Equal(t, StatusCertNotYetValid, res.Status)
		assert.Equal(t, "certificate not yet valid", res.Reason)
	})
}

func TestRequestVerifier_WhitespaceAlgorithmIsNotDefaulted(t *testing.T) {
	key := generateTestKey(t)
	certPEM := makeValidCert(t, key, "scout")
	body := []byte("payload")
	message := BuildMessage("1724", "n-1", "scout", http.MethodPost, "/p", SHA256Base64(body))

	in := RequestInput{
		Method:    http.MethodPost,
		Path:      "/p",
		Body:      body,
		Header:    http.Header{},
		Signature: signPKCS1v15(t, key, message),
		Algorithm: "   ",
		Timestamp: "1724",
		Nonce:     "n-1",
	}
	res := NewRequestVerifier().Verify(context.Background(), CallerIdentity{AgentName: "scout", CertificatePEM: certPEM}, in)

	// a present but blank algorithm header is an unsupported algorithm, only a
	// missing header selects the default
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, "unsupported algorithm: ", res.Reason)
}

func TestRedactHeaders(t *testing.T) {
	header := http.Header{}
	header.Set("Authorization", "Bearer mba_secret")
	header.Set("Cookie", "session=1")
	header.Set("X-Api-Key", "key")
	header.Set("Content-Type", "application/json")
	header.Add("Accept", "application/json")
	header.Add("Accept", "text/plain")

	out := RedactHeaders(header)
	assert.Equal(t, "Bearer ***", out["Authorization"])
	assert.Equal(t, "***", out["Cookie"])
	assert.Equal(t, "***", out["X-Api-Key"])
	assert.Equal(t, "application/json", out["Content-Type"])
	assert.Equal(t, "application/json, text/plain", out["Accept"])
}

func TestRedactHeaders_NonBearerAuthorization(t *testing.T) {
	header := http.Header{}
	header.Set("Authorization", "Token abc")

	out := RedactHeaders(header)
	assert.Equal(t, "***", out["Authorization"])
}
