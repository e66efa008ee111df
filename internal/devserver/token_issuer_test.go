package devserver

import (
	"testing"
	"time"
)

func TestIssueAndValidateRoundTrips(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
	})

	token, expiresIn, err := issuer.Issue("owner-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", expiresIn)
	}

	ownerID, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if ownerID != "owner-1" {
		t.Fatalf("unexpected owner: %q", ownerID)
	}
}

func TestIssueRequiresOwner(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("test-secret")})

	if _, _, err := issuer.Issue(""); err == nil {
		t.Fatalf("expected empty owner rejected")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("test-secret")})
	other := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("different-secret")})

	token, _, err := issuer.Issue("owner-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := other.Validate(token); err == nil {
		t.Fatalf("expected token rejected by different secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1756600000, 0).UTC()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return now },
	})

	token, _, err := issuer.Issue("owner-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	late := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return now.Add(2 * time.Minute) },
	})
	if _, err := late.Validate(token); err == nil {
		t.Fatalf("expected expired token rejected")
	}
}
