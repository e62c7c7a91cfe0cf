package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := testHasher()
	passwords := []string{"correct-horse", "123456", "pässwörd✓"}

	for _, pw := range passwords {
		hash, err := h.Hash(pw)
		if err != nil {
			t.Fatalf("Hash(%q) error = %v", pw, err)
		}
		if !strings.HasPrefix(hash, "$2a$") {
			t.Errorf("hash should be bcrypt, got %q", hash)
		}
		if !h.Verify(pw, hash) {
			t.Errorf("Verify(%q) = false, want true", pw)
		}
		for _, mutated := range []string{pw + "x", strings.ToUpper(pw[:1]) + pw[1:] + "!", pw[:len(pw)-1]} {
			if h.Verify(mutated, hash) {
				t.Errorf("Verify(%q) against hash of %q = true", mutated, pw)
			}
		}
	}
}

func TestHasher_UniqueSalts(t *testing.T) {
	h := testHasher()
	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHasher_MalformedHash(t *testing.T) {
	h := testHasher()
	for _, bad := range []string{"", "not-a-hash", "$2a$04$short", "$argon2id$v=19$m=65536,t=3,p=1$abc$def"} {
		if h.Verify("password", bad) {
			t.Errorf("Verify() with malformed hash %q = true", bad)
		}
	}
}

func TestHasher_MaxLengthPassword(t *testing.T) {
	h := testHasher()
	pw := strings.Repeat("x", MaxPasswordLength)

	hash, err := h.Hash(pw)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !h.Verify(pw, hash) {
		t.Error("Verify() = false for 72-byte password")
	}
	if h.Verify(pw[:MaxPasswordLength-1], hash) {
		t.Error("Verify() = true for truncated password")
	}
}

func TestHasher_RejectsOverlongPassword(t *testing.T) {
	if _, err := testHasher().Hash(strings.Repeat("x", MaxPasswordLength+1)); err == nil {
		t.Error("Hash() expected error for password over 72 bytes")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"12345", true},
		{"123456", false},
		{strings.Repeat("a", MaxPasswordLength), false},
		{strings.Repeat("a", MaxPasswordLength+1), true},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(len=%d) error = %v, wantErr %v", len(tt.password), err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ValidatePassword() error = %v, want ErrInvalidInput", err)
		}
	}
}
