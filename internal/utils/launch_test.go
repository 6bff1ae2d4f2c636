package utils

import (
	"testing"
	"time"
)

const launchSecret = "launch-secret"

var stu = StudentIdentity{ExternalID: "stu-100", Name: "Test Student", Email: "stu@example.edu"}

func TestLaunchTokenRoundTrip(t *testing.T) {
	token, err := NewLaunchToken(launchSecret, stu, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewLaunchToken: %v", err)
	}
	got, err := VerifyLaunchToken(launchSecret, token)
	if err != nil {
		t.Fatalf("VerifyLaunchToken: %v", err)
	}
	if got != stu {
		t.Fatalf("identity mismatch: %+v", got)
	}
}

func TestLaunchTokenExpiry(t *testing.T) {
	token, err := NewLaunchToken(launchSecret, stu, -time.Minute)
	if err != nil {
		t.Fatalf("NewLaunchToken: %v", err)
	}
	if _, err := VerifyLaunchToken(launchSecret, token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestLaunchTokenWrongSecret(t *testing.T) {
	token, _ := NewLaunchToken(launchSecret, stu, 5*time.Minute)
	if _, err := VerifyLaunchToken("other-secret", token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken under wrong secret, got %v", err)
	}
}

func TestLaunchTokenRequiresIdentityFields(t *testing.T) {
	token, _ := NewLaunchToken(launchSecret, StudentIdentity{ExternalID: "stu-100"}, 5*time.Minute)
	if _, err := VerifyLaunchToken(launchSecret, token); err != ErrInvalidToken {
		t.Fatalf("token without a display name must be rejected, got %v", err)
	}
}

func TestStudentSessionRoundTrip(t *testing.T) {
	token, exp, err := NewStudentSessionToken(launchSecret, stu, 2*time.Hour)
	if err != nil {
		t.Fatalf("NewStudentSessionToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}
	got, err := VerifyStudentSessionToken(launchSecret, token)
	if err != nil {
		t.Fatalf("VerifyStudentSessionToken: %v", err)
	}
	if got != stu {
		t.Fatalf("identity mismatch: %+v", got)
	}
}

// The two token kinds must never substitute for each other.
func TestTokenTypeDiscriminator(t *testing.T) {
	launch, _ := NewLaunchToken(launchSecret, stu, 5*time.Minute)
	session, _, _ := NewStudentSessionToken(launchSecret, stu, time.Hour)

	if _, err := VerifyStudentSessionToken(launchSecret, launch); err != ErrInvalidToken {
		t.Fatalf("launch token must not verify as a student session, got %v", err)
	}
	if _, err := VerifyLaunchToken(launchSecret, session); err != ErrInvalidToken {
		t.Fatalf("student session token must not verify as a launch token, got %v", err)
	}
}
