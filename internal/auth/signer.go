package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is used when neither the signer nor the caller
// supplies a lifetime.
const DefaultAccessTokenTTL = 30 * time.Minute

// minSecretLength is the shortest accepted signing secret.
const minSecretLength = 32

// opaqueTokenBytes is the entropy of refresh tokens and session ids.
const opaqueTokenBytes = 32

// AccessClaims are the claims carried by an access token.
// The subject is the username.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// Identity is what an access token asserts about its bearer.
type Identity struct {
	PrincipalID int64
	Username    string
	Role        Role
}

// SignerConfig configures a Signer.
type SignerConfig struct {
	Secret    string
	Algorithm string        // HS256, HS384 or HS512; empty means HS256
	AccessTTL time.Duration // zero means DefaultAccessTokenTTL

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// Signer issues and verifies HMAC-signed access tokens. It is stateless and
// safe for concurrent use.
type Signer struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	clock  func() time.Time
}

// NewSigner validates cfg and returns a Signer.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes", ErrInvalidInput, minSecretLength)
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: unsupported signing algorithm %q", ErrInvalidInput, alg)
	}

	s := &Signer{
		secret: []byte(cfg.Secret),
		method: method,
		ttl:    cfg.AccessTTL,
		clock:  cfg.Clock,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultAccessTokenTTL
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// TTL returns the default access token lifetime.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue signs an access token for id that expires ttl from now.
// A ttl of zero or less uses the signer's default.
func (s *Signer) Issue(id Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.clock()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: id.PrincipalID,
		Role:   id.Role,
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, expiry and required claims.
// Every failure is reported as ErrTokenInvalid with no further detail.
func (s *Signer) Verify(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(_ *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Identity extracts the asserted identity from verified claims.
func (c *AccessClaims) Identity() Identity {
	return Identity{PrincipalID: c.UserID, Username: c.Subject, Role: c.Role}
}

// GenerateOpaqueToken returns a random URL-safe string with 256 bits of
// entropy. Used for refresh tokens and session ids.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken computes the SHA-256 digest of a raw token for storage.
// Raw refresh tokens are never stored.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
