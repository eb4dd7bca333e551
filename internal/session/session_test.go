package session

import (
	"errors"
	"testing"
	"time"

	"sandyq.org/internal/vault"
)

func TestIssueAndResolve(t *testing.T) {
	m, err := NewManager("test-secret", "sandyq")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, expiresAt, err := m.Issue(vault.UserKey(42))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}
	key, err := m.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key != 42 {
		t.Fatalf("unexpected key: %d", key)
	}
}

func TestResolveRejectsGarbage(t *testing.T) {
	m, err := NewManager("test-secret", "sandyq")
	if err != nil {
		t.Fatal(err)
	}
	for _, token := range []string{"", "  ", "not.a.jwt", "a.b"} {
		if _, err := m.Resolve(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestResolveRejectsWrongSecret(t *testing.T) {
	issuer, err := NewManager("secret-a", "sandyq")
	if err != nil {
		t.Fatal(err)
	}
	verifier, err := NewManager("secret-b", "sandyq")
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := issuer.Issue(vault.UserKey(7))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Resolve(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	issuer, err := NewManager("test-secret", "sandyq",
		WithTTL(time.Minute),
		WithClock(func() time.Time { return past }),
	)
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := issuer.Issue(vault.UserKey(7))
	if err != nil {
		t.Fatal(err)
	}

	verifier, err := NewManager("test-secret", "sandyq")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Resolve(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("   ", "sandyq"); err == nil {
		t.Fatal("expected error for blank secret")
	}
}
