package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// proofLen is the truncated hex length of a proof token. 16 hex chars
// (64 bits) keeps QR payloads small while leaving forgery infeasible
// within a rotation window.
const proofLen = 16

// ProofToken computes the rotating attendance proof for a session at
// the given time window: HMAC-SHA256(secret, "sessionID|window"),
// hex-truncated. The kiosk display computes the same value client-side
// from the session secret, so no polling is needed for QR refresh.
func ProofToken(secret, sessionID string, window int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%d", sessionID, window)
	return hex.EncodeToString(mac.Sum(nil))[:proofLen]
}

// ProofWindow maps an instant to its rotation window index.
func ProofWindow(now time.Time, rotateSeconds int) int64 {
	if rotateSeconds <= 0 {
		rotateSeconds = 1
	}
	return now.Unix() / int64(rotateSeconds)
}

// VerifyProof accepts a proof computed for the current or the previous
// window. The one-window grace absorbs display/scan latency without
// materially widening the forgery window. Comparison is constant time.
func VerifyProof(secret, sessionID string, rotateSeconds int, token string, now time.Time) bool {
	window := ProofWindow(now, rotateSeconds)
	for _, w := range []int64{window, window - 1} {
		expected := ProofToken(secret, sessionID, w)
		if hmac.Equal([]byte(expected), []byte(token)) {
			return true
		}
	}
	return false
}
