package auth

import (
	"context"
	"testing"
	"time"
)

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "knowledgehub-auth",
		Audience:      "knowledgehub-api",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
}

func TestTokenRoundTripPreservesIdentity(t *testing.T) {
	issuer := newTestIssuer(nil)

	token, expiresIn, err := issuer.IssueToken(context.Background(), Identity{UserID: "user-1", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry: %d", expiresIn)
	}

	identity, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if identity.UserID != "user-1" || identity.Role != RoleAdmin {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if !identity.IsAdmin() {
		t.Fatalf("expected admin identity")
	}
}

func TestValidateTokenDefaultsMissingRoleToUser(t *testing.T) {
	issuer := newTestIssuer(nil)

	token, _, err := issuer.IssueToken(context.Background(), Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	identity, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if identity.Role != RoleUser {
		t.Fatalf("expected role to default to user, got %q", identity.Role)
	}
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return now })

	token, _, err := issuer.IssueToken(context.Background(), Identity{UserID: "user-1", Role: RoleUser})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := newTestIssuer(nil)
	token, _, err := issuer.IssueToken(context.Background(), Identity{UserID: "user-1", Role: RoleUser})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "knowledgehub-auth",
		Audience:      "knowledgehub-api",
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected signature mismatch to be rejected")
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	foreign := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "knowledgehub-auth",
		Audience:      "some-other-service",
	})
	token, _, err := foreign.IssueToken(context.Background(), Identity{UserID: "user-1", Role: RoleUser})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	issuer := newTestIssuer(nil)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected audience mismatch to be rejected")
	}
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(nil)
	if _, _, err := issuer.IssueToken(context.Background(), Identity{}); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}
