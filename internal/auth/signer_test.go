package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestSigner(t *testing.T, clock *fakeClock, alg string) *Signer {
	t.Helper()
	s, err := NewSigner(SignerConfig{
		Secret:    testSecret,
		Algorithm: alg,
		AccessTTL: 30 * time.Minute,
		Clock:     clock.Now,
	})
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	return s
}

func TestSigner_IssueVerifyRoundTrip(t *testing.T) {
	clock := newFakeClock()
	s := newTestSigner(t, clock, "HS256")

	id := Identity{PrincipalID: 42, Username: "alice", Role: RoleDevOps}
	token, err := s.Issue(id, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got := claims.Identity(); got != id {
		t.Errorf("Identity() = %+v, want %+v", got, id)
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
	wantExp := clock.Now().Add(30 * time.Minute)
	if !claims.ExpiresAt.Time.Equal(wantExp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, wantExp)
	}
}

func TestSigner_Expiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestSigner(t, clock, "HS256")

	token, err := s.Issue(Identity{PrincipalID: 1, Username: "alice", Role: RoleDev}, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(29 * time.Minute)
	if _, err := s.Verify(token); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := s.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() after expiry error = %v, want ErrTokenInvalid", err)
	}
}

func TestSigner_CustomTTL(t *testing.T) {
	clock := newFakeClock()
	s := newTestSigner(t, clock, "HS384")

	token, err := s.Issue(Identity{PrincipalID: 1, Username: "alice", Role: RoleDev}, 5*time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(6 * time.Minute)
	if _, err := s.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}

func TestSigner_RejectsForgedTokens(t *testing.T) {
	clock := newFakeClock()
	s := newTestSigner(t, clock, "HS256")
	id := Identity{PrincipalID: 7, Username: "bob", Role: RoleQA}

	valid, err := s.Issue(id, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherKey, err := NewSigner(SignerConfig{Secret: strings.Repeat("k", 40), Clock: clock.Now})
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	wrongKey, _ := otherKey.Issue(id, 0) //nolint:errcheck // checked by Verify below

	otherAlg := newTestSigner(t, clock, "HS512")
	wrongAlg, _ := otherAlg.Issue(id, 0) //nolint:errcheck // checked by Verify below

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bob",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
		UserID: 7,
		Role:   RoleManagement,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"wrong key":       wrongKey,
		"wrong algorithm": wrongAlg,
		"none algorithm":  unsigned,
		"tampered":        tampered,
		"garbage":         "not.a.token",
		"empty":           "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(token)
			if err != ErrTokenInvalid { //nolint:errorlint // the error must be the bare sentinel
				t.Errorf("Verify() error = %v, want bare ErrTokenInvalid", err)
			}
		})
	}
}

func TestSigner_RequiresClaims(t *testing.T) {
	clock := newFakeClock()
	s := newTestSigner(t, clock, "HS256")

	sign := func(c AccessClaims) string {
		t.Helper()
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return tok
	}
	exp := jwt.NewNumericDate(clock.Now().Add(time.Hour))

	tests := map[string]AccessClaims{
		"missing subject": {RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}, UserID: 1},
		"missing user id": {RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp}},
		"missing expiry":  {RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}, UserID: 1},
	}
	for name, claims := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Verify(sign(claims)); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestNewSigner_Validation(t *testing.T) {
	if _, err := NewSigner(SignerConfig{Secret: "short"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short secret: error = %v, want ErrInvalidInput", err)
	}
	if _, err := NewSigner(SignerConfig{Secret: testSecret, Algorithm: "RS256"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("RS256: error = %v, want ErrInvalidInput", err)
	}

	s, err := NewSigner(SignerConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	if s.TTL() != DefaultAccessTokenTTL {
		t.Errorf("TTL() = %v, want %v", s.TTL(), DefaultAccessTokenTTL)
	}
}

func TestGenerateOpaqueToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := GenerateOpaqueToken()
		if err != nil {
			t.Fatalf("GenerateOpaqueToken() error = %v", err)
		}
		if len(tok) != 43 {
			t.Errorf("token length = %d, want 43", len(tok))
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Errorf("token %q is not URL-safe", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("raw-token")
	if a != HashToken("raw-token") {
		t.Error("HashToken should be deterministic")
	}
	if a == HashToken("raw-token2") {
		t.Error("different tokens should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
