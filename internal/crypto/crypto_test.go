package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$") {
		t.Fatalf("unexpected format: %s", hash)
	}

	ok, err := VerifyPassword("hunter2", hash)
	if err != nil || !ok {
		t.Fatalf("correct password rejected: %v %v", ok, err)
	}
	ok, err = VerifyPassword("hunter3", hash)
	if err != nil || ok {
		t.Fatalf("wrong password accepted: %v %v", ok, err)
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Fatal("two hashes of the same password should use different salts")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, in := range []string{"", "plain", "bcrypt$aa$bb", "argon2id$zz$bb"} {
		if _, err := VerifyPassword("x", in); !errors.Is(err, ErrMalformedHash) {
			t.Errorf("%q: expected ErrMalformedHash, got %v", in, err)
		}
	}
}

func TestSecondPasswordHash(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	a, err := SecondPasswordHash("pw", salt)
	if err != nil {
		t.Fatalf("SecondPasswordHash: %v", err)
	}
	b, _ := SecondPasswordHash("pw", salt)
	if a != b {
		t.Fatal("second password hash must be deterministic for a salt")
	}
	other, _ := NewSalt()
	c, _ := SecondPasswordHash("pw", other)
	if a == c {
		t.Fatal("different salts must give different hashes")
	}
	if _, err := SecondPasswordHash("pw", "not-hex"); err == nil {
		t.Fatal("expected error for bad salt")
	}
}

func TestAttribution(t *testing.T) {
	a := Attribution(7, "dev", "secret", `{"v":1}`)
	if len(a) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(a))
	}
	if a != Attribution(7, "dev", "secret", `{"v":1}`) {
		t.Fatal("attribution must be deterministic")
	}
	for name, other := range map[string]string{
		"seq":     Attribution(8, "dev", "secret", `{"v":1}`),
		"device":  Attribution(7, "dev2", "secret", `{"v":1}`),
		"secret":  Attribution(7, "dev", "secret2", `{"v":1}`),
		"payload": Attribution(7, "dev", "secret", `{"v":2}`),
	} {
		if other == a {
			t.Errorf("changing %s must change the attribution", name)
		}
	}
}
