package utils

import (
	"testing"
	"time"
)

func TestProofWindowGrace(t *testing.T) {
	const (
		secret    = "0123456789abcdef"
		sessionID = "sess-1"
		rotate    = 5
	)
	base := time.Unix(1_700_000_000, 0)
	window := ProofWindow(base, rotate)
	proof := ProofToken(secret, sessionID, window)

	if !VerifyProof(secret, sessionID, rotate, proof, base) {
		t.Fatalf("proof must verify inside its own window")
	}
	nextWindowStart := time.Unix((window+1)*rotate, 0)
	if !VerifyProof(secret, sessionID, rotate, proof, nextWindowStart) {
		t.Fatalf("proof must survive into the following window (grace)")
	}
	twoWindowsLater := time.Unix((window+2)*rotate, 0)
	if VerifyProof(secret, sessionID, rotate, proof, twoWindowsLater) {
		t.Fatalf("proof must expire two windows later")
	}
}

func TestProofBoundToSession(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	window := ProofWindow(base, 5)
	proof := ProofToken("secret-a", "sess-1", window)

	if VerifyProof("secret-a", "sess-2", 5, proof, base) {
		t.Fatalf("proof for one session must not verify for another")
	}
	if VerifyProof("secret-b", "sess-1", 5, proof, base) {
		t.Fatalf("proof must not verify under a different secret")
	}
}

func TestProofLength(t *testing.T) {
	proof := ProofToken("s", "id", 42)
	if len(proof) != proofLen {
		t.Fatalf("expected %d-char proof, got %d", proofLen, len(proof))
	}
}
