// Package auth resolves an optional bearer token into a chat identity.
// Verification is opt-in: with no secret configured every connection is a
// guest, which keeps local development credential-free.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aelexs/chat-relay/internal/domain"
)

// ErrTokenExpired is returned when a validly signed token has expired.
// Callers can use errors.Is to check for this condition without importing
// the JWT library directly.
var ErrTokenExpired = jwt.ErrTokenExpired

// Identity is the resolved result of token verification. A zero Username is
// allowed; Role always holds a valid role.
type Identity struct {
	ID       string
	Username string
	Role     domain.Role
}

// GuestIdentity is the identity assigned when no token is presented or
// verification is disabled.
var GuestIdentity = Identity{Role: domain.RoleGuest}

// Verifier validates HMAC-signed access tokens issued by the companion
// identity service.
type Verifier struct {
	secret []byte
	issuer string
	clock  domain.Clock
}

// VerifierConfig holds configuration for creating a Verifier.
type VerifierConfig struct {
	Secret string
	Issuer string
	Clock  domain.Clock
}

// NewVerifier creates a new token verifier. An empty secret disables
// verification entirely.
func NewVerifier(cfg VerifierConfig) *Verifier {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		clock:  clock,
	}
}

// Enabled reports whether a signing secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses and validates a token string, returning the embedded
// identity. With verification disabled or an empty token it returns
// GuestIdentity and no error; a present but invalid token is an error so
// the caller can distinguish "anonymous" from "forged".
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if !v.Enabled() || tokenString == "" {
		return GuestIdentity, nil
	}

	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid access token: %w", err)
	}

	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("missing sub claim: %w", domain.ErrUnauthorized)
	}

	role := domain.Role(claims.Role)
	if !domain.IsValidRole(role) {
		role = domain.RoleClient
	}

	return Identity{
		ID:       claims.Subject,
		Username: claims.Username,
		Role:     role,
	}, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.secret, nil
}
