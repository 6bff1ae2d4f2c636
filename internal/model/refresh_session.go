package model

import "time"

// RefreshSession models a row in the `refresh_sessions` table. Each
// login creates one; each successful refresh revokes the old row and
// creates a new one (rotation). Only the SHA-256 hash of the refresh
// token string is stored, never the raw token.
//
// Fields:
//  ID        – UUID, also embedded in the refresh token as its session id.
//  AccountID – owner of the session.
//  TokenHash – SHA-256 hex digest of the current refresh token string.
//  ExpiresAt – absolute expiry; the session is dead past this point.
//  Revoked   – set on logout, rotation and reuse detection.
//  CreatedAt – creation timestamp.
type RefreshSession struct {
	ID        string    // refresh_sessions.id
	AccountID string    // refresh_sessions.account_id
	TokenHash string    // refresh_sessions.token_hash
	ExpiresAt time.Time // refresh_sessions.expires_at
	Revoked   bool      // refresh_sessions.revoked
	CreatedAt time.Time // refresh_sessions.created_at
}

// Usable reports whether the session can still back a refresh at the
// given instant.
func (s RefreshSession) Usable(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
