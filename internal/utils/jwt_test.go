package utils

import (
	"testing"
	"time"

	"github.com/polytech-superapp/campus-sso/internal/model"
)

const (
	accessSecret  = "access-secret"
	refreshSecret = "refresh-secret"
)

func testAccount() model.Account {
	entity := "ent-7"
	return model.Account{
		ID: "acc-1", Username: "jdoe", FullName: "J. Doe",
		App: model.AppServices, Role: "staff", EntityID: &entity, IsActive: true,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	acc := testAccount()
	token, exp, err := NewAccessToken(accessSecret, acc, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}
	claims, err := VerifyAccessToken(accessSecret, token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.AccountID != acc.ID || claims.App != acc.App || claims.Role != acc.Role {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.EntityID != "ent-7" {
		t.Fatalf("entity id not carried: %q", claims.EntityID)
	}
	if claims.AuthSource != "sso" {
		t.Fatalf("auth_source not stamped: %q", claims.AuthSource)
	}
}

func TestAccessTokenTampered(t *testing.T) {
	token, _, err := NewAccessToken(accessSecret, testAccount(), time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if _, err := VerifyAccessToken("wrong-secret", token); err != ErrInvalidToken {
		t.Fatalf("wrong secret must yield ErrInvalidToken, got %v", err)
	}
	if _, err := VerifyAccessToken(accessSecret, token[:len(token)-2]); err != ErrInvalidToken {
		t.Fatalf("truncated token must yield ErrInvalidToken, got %v", err)
	}
	if _, err := VerifyAccessToken(accessSecret, "not-a-jwt"); err != ErrInvalidToken {
		t.Fatalf("garbage must yield ErrInvalidToken, got %v", err)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	acc := testAccount()
	token, _, err := NewRefreshToken(refreshSecret, acc, "sess-9", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	claims, err := VerifyRefreshToken(refreshSecret, token)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if claims.AccountID != acc.ID || claims.SessionID != "sess-9" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

// An access token lacks the refresh type discriminator and must never
// pass refresh verification, even when signed with the same secret.
func TestRefreshVerifierRejectsAccessToken(t *testing.T) {
	token, _, err := NewAccessToken(refreshSecret, testAccount(), time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if _, err := VerifyRefreshToken(refreshSecret, token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashRefreshRaw(t *testing.T) {
	a, b := HashRefreshRaw("token-a"), HashRefreshRaw("token-a")
	if a != b {
		t.Fatalf("hash must be deterministic")
	}
	if HashRefreshRaw("token-b") == a {
		t.Fatalf("distinct tokens must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	b, _ := RandomHex(32)
	if len(a) != 64 || a == b {
		t.Fatalf("expected 64 distinct hex chars, got %q / %q", a, b)
	}
}
