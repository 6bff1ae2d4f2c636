package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/polytech-superapp/campus-sso/internal/model"
)

// Refresh-session rejection reasons. Handlers collapse all of them to
// one uniform unauthenticated response; the audit log records which
// one actually fired.
var (
	ErrSessionRevoked  = errors.New("refresh session revoked")
	ErrSessionExpired  = errors.New("refresh session expired")
	ErrTokenMismatch   = errors.New("refresh token hash mismatch")
	ErrAccountMismatch = errors.New("refresh session account mismatch")
)

// SessionRepo persists refresh sessions. Rotation is strictly
// single-use: every successful refresh revokes the old row and inserts
// a new one inside one transaction.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a fresh session row. Called at login; every login
// gets its own session, never a reused one.
func (r *SessionRepo) Create(ctx context.Context, s model.RefreshSession) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_sessions (id, account_id, token_hash, expires_at, revoked, created_at) VALUES (?,?,?,?,0,NOW())",
		s.ID, s.AccountID, s.TokenHash, s.ExpiresAt)
	return err
}

// Get fetches one session by id.
func (r *SessionRepo) Get(ctx context.Context, id string) (model.RefreshSession, error) {
	s, err := scanSession(r.DB.QueryRowContext(ctx,
		"SELECT id, account_id, token_hash, expires_at, revoked, created_at FROM refresh_sessions WHERE id=? LIMIT 1", id))
	if err == sql.ErrNoRows {
		return model.RefreshSession{}, ErrNotFound
	}
	return s, err
}

// Rotate validates the presented token against the stored session and,
// if everything matches, revokes the old session and creates the new
// one atomically. The row lock plus the revoked=0 guard make two
// concurrent rotations of one session impossible: the loser's update
// touches zero rows. The hash check rejects tokens from earlier
// rotations even though they embed a session id that once was valid.
func (r *SessionRepo) Rotate(ctx context.Context, oldID, accountID, presentedHash string, next model.RefreshSession) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	old, err := scanSession(tx.QueryRowContext(ctx,
		"SELECT id, account_id, token_hash, expires_at, revoked, created_at FROM refresh_sessions WHERE id=? LIMIT 1 FOR UPDATE", oldID))
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	switch {
	case old.AccountID != accountID:
		return ErrAccountMismatch
	case old.Revoked:
		return ErrSessionRevoked
	case !time.Now().UTC().Before(old.ExpiresAt):
		return ErrSessionExpired
	case old.TokenHash != presentedHash:
		return ErrTokenMismatch
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked=1 WHERE id=? AND revoked=0", oldID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionRevoked
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_sessions (id, account_id, token_hash, expires_at, revoked, created_at) VALUES (?,?,?,?,0,NOW())",
		next.ID, next.AccountID, next.TokenHash, next.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

// Revoke marks a session revoked. Revoking an already-revoked or
// missing session is a no-op, which keeps logout idempotent.
func (r *SessionRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked=1 WHERE id=? AND revoked=0", id)
	return err
}

// RevokeAllForAccount kills every active session an account holds.
func (r *SessionRepo) RevokeAllForAccount(ctx context.Context, accountID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked=1 WHERE account_id=? AND revoked=0", accountID)
	return err
}

func scanSession(row rowScanner) (model.RefreshSession, error) {
	var s model.RefreshSession
	err := row.Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.ExpiresAt, &s.Revoked, &s.CreatedAt)
	return s, err
}
