package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/server/status"
)

const (
	adminSessionTTL    = time.Hour
	adminSessionIssuer = "meshboard"
	adminSubject       = "admin"
)

// AdminAuth guards the admin API. Callers present either the configured
// admin key or a session JWT previously minted from that key. An empty admin
// key disables the whole admin surface.
type AdminAuth struct {
	adminKeyHash  []byte
	sessionSecret []byte
	enabled       bool
}

// NewAdminAuth instance constructor. The session signing secret is generated
// per process, so minted sessions do not outlive a restart.
func NewAdminAuth(adminKey string) *AdminAuth {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatalf("failed to generate the admin session secret: %s", err)
	}

	keyHash := sha256.Sum256([]byte(adminKey))
	return &AdminAuth{
		adminKeyHash:  keyHash[:],
		sessionSecret: secret,
		enabled:       adminKey != "",
	}
}

// Handler method of the middleware which admits admin key or session JWT holders
func (a *AdminAuth) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			util.WriteError(status.Errorf(status.Unauthorized, "admin access disabled"), w)
			return
		}

		credential := CredentialFromRequest(r)
		if credential == "" {
			util.WriteError(status.NewUnauthenticatedError(), w)
			return
		}

		if !a.matchesAdminKey(credential) && !a.validSession(credential) {
			util.WriteError(status.Errorf(status.Unauthorized, "invalid admin credentials"), w)
			return
		}

		h.ServeHTTP(w, r)
	})
}

// MintSessionForKey exchanges the raw admin key for a session token. Session
// tokens cannot mint further sessions.
func (a *AdminAuth) MintSessionForKey(credential string) (string, time.Time, error) {
	if !a.enabled {
		return "", time.Time{}, status.Errorf(status.Unauthorized, "admin access disabled")
	}
	if !a.matchesAdminKey(credential) {
		return "", time.Time{}, status.Errorf(status.Unauthorized, "invalid admin credentials")
	}
	return a.MintSession()
}

// MintSession issues a short-lived HS256 session token for the admin key holder.
func (a *AdminAuth) MintSession() (string, time.Time, error) {
	if !a.enabled {
		return "", time.Time{}, status.Errorf(status.Unauthorized, "admin access disabled")
	}

	expiresAt := time.Now().Add(adminSessionTTL)
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		Issuer:    adminSessionIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.sessionSecret)
	if err != nil {
		return "", time.Time{}, status.Errorf(status.Internal, "failed to sign the session token")
	}
	return token, expiresAt, nil
}

func (a *AdminAuth) matchesAdminKey(credential string) bool {
	credentialHash := sha256.Sum256([]byte(credential))
	return subtle.ConstantTimeCompare(credentialHash[:], a.adminKeyHash) == 1
}

func (a *AdminAuth) validSession(credential string) bool {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return a.sessionSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminSessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return false
	}
	return claims.Subject == adminSubject
}
