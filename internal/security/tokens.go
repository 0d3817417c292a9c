// Package security issues and verifies the signed session credential returned after a successful
// OTP verification.
package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"passwordless-auth/backend/internal/authz"
)

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or carries a bad signature.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned when a provider is built without a secret or key pair.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// Claims is the signed credential payload. Subject is the account email.
type Claims struct {
	jwt.RegisteredClaims
	Role authz.Role `json:"role"`
	ID   string     `json:"id"`
}

// Email returns the subject claim.
func (c *Claims) Email() string { return c.Subject }

// Actor converts verified claims into the caller identity.
func (c *Claims) Actor() authz.Actor {
	return authz.Actor{ID: c.ID, Email: c.Email(), Role: c.Role}
}

// Issuer signs credentials for authenticated accounts.
type Issuer interface {
	Issue(email string, role authz.Role, userID string) (token string, expiresAt time.Time, err error)
}

// Verifier checks credentials presented by callers.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// TokenProvider issues and verifies JWTs with HS256 (shared secret) or RS256/ES256 (key pair).
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	issuer    string
	audience  string
	ttl       time.Duration
	nowF      func() time.Time
}

var (
	_ Issuer   = (*TokenProvider)(nil)
	_ Verifier = (*TokenProvider)(nil)
)

// NewHMACTokenProvider returns a provider signing with HS256 over secret.
func NewHMACTokenProvider(secret []byte, issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, ErrNoSigningKey
	}
	return newProvider(jwt.SigningMethodHS256, secret, secret, issuer, audience, ttl), nil
}

// NewKeyPairTokenProvider returns a provider signing with privateKey (RS256 for RSA, ES256 for ECDSA)
// and verifying with publicKey.
func NewKeyPairTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrNoSigningKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, ErrInvalidKey
	}
	return newProvider(method, privateKey, publicKey, issuer, audience, ttl), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey interface{}, issuer, audience string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenProvider{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		nowF:      time.Now,
	}
}

// Alg returns the JWT alg header value this provider signs with.
func (p *TokenProvider) Alg() string { return p.method.Alg() }

// Issue signs a credential for the account: sub=email, role, id, exp=now+ttl.
func (p *TokenProvider) Issue(email string, role authz.Role, userID string) (string, time.Time, error) {
	now := p.nowF().UTC()
	expiresAt := now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
		ID:   userID,
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}
	token, err := jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses token and checks signature, expiry, issuer, and audience. Every failure is ErrInvalidToken.
func (p *TokenProvider) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
