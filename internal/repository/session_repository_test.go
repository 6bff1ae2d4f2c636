package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/polytech-superapp/campus-sso/internal/model"
)

var sessionCols = []string{"id", "account_id", "token_hash", "expires_at", "revoked", "created_at"}

func sessionRow(id, accountID, hash string, expiresAt time.Time, revoked bool) *sqlmock.Rows {
	return sqlmock.NewRows(sessionCols).AddRow(id, accountID, hash, expiresAt, revoked, time.Now())
}

func nextSession() model.RefreshSession {
	return model.RefreshSession{
		ID:        "sess-new",
		AccountID: "acc-1",
		TokenHash: "hash-new",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestRotateHappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE id=(.+) FOR UPDATE").
		WithArgs("sess-old").
		WillReturnRows(sessionRow("sess-old", "acc-1", "hash-old", time.Now().Add(time.Hour), false))
	mock.ExpectExec("UPDATE refresh_sessions SET revoked=1 WHERE id=(.+) AND revoked=0").
		WithArgs("sess-old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_sessions").
		WithArgs("sess-new", "acc-1", "hash-new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewSessionRepo(db)
	if err := repo.Rotate(context.Background(), "sess-old", "acc-1", "hash-old", nextSession()); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A token from an earlier rotation embeds a session id that once was
// valid, but the stored hash has moved on. Replay must fail.
func TestRotateRejectsReplayedToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE id=(.+) FOR UPDATE").
		WithArgs("sess-old").
		WillReturnRows(sessionRow("sess-old", "acc-1", "hash-current", time.Now().Add(time.Hour), false))
	mock.ExpectRollback()

	repo := NewSessionRepo(db)
	if err := repo.Rotate(context.Background(), "sess-old", "acc-1", "hash-stale", nextSession()); err != ErrTokenMismatch {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestRotateRejectsRevokedSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE id=(.+) FOR UPDATE").
		WithArgs("sess-old").
		WillReturnRows(sessionRow("sess-old", "acc-1", "hash-old", time.Now().Add(time.Hour), true))
	mock.ExpectRollback()

	repo := NewSessionRepo(db)
	if err := repo.Rotate(context.Background(), "sess-old", "acc-1", "hash-old", nextSession()); err != ErrSessionRevoked {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestRotateRejectsExpiredSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE id=(.+) FOR UPDATE").
		WithArgs("sess-old").
		WillReturnRows(sessionRow("sess-old", "acc-1", "hash-old", time.Now().Add(-time.Minute), false))
	mock.ExpectRollback()

	repo := NewSessionRepo(db)
	if err := repo.Rotate(context.Background(), "sess-old", "acc-1", "hash-old", nextSession()); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestRotateRejectsForeignAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE id=(.+) FOR UPDATE").
		WithArgs("sess-old").
		WillReturnRows(sessionRow("sess-old", "acc-other", "hash-old", time.Now().Add(time.Hour), false))
	mock.ExpectRollback()

	repo := NewSessionRepo(db)
	if err := repo.Rotate(context.Background(), "sess-old", "acc-1", "hash-old", nextSession()); err != ErrAccountMismatch {
		t.Fatalf("expected ErrAccountMismatch, got %v", err)
	}
}

// When two rotations race, the loser's guarded update touches zero
// rows and the rotation fails rather than double-issuing.
func TestRotateLosesRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE id=(.+) FOR UPDATE").
		WithArgs("sess-old").
		WillReturnRows(sessionRow("sess-old", "acc-1", "hash-old", time.Now().Add(time.Hour), false))
	mock.ExpectExec("UPDATE refresh_sessions SET revoked=1 WHERE id=(.+) AND revoked=0").
		WithArgs("sess-old").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewSessionRepo(db)
	if err := repo.Rotate(context.Background(), "sess-old", "acc-1", "hash-old", nextSession()); err != ErrSessionRevoked {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestRotateMissingSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM refresh_sessions WHERE id=(.+) FOR UPDATE").
		WithArgs("sess-gone").
		WillReturnRows(sqlmock.NewRows(sessionCols))
	mock.ExpectRollback()

	repo := NewSessionRepo(db)
	if err := repo.Rotate(context.Background(), "sess-gone", "acc-1", "hash", nextSession()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE refresh_sessions SET revoked=1 WHERE id=(.+) AND revoked=0").
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewSessionRepo(db)
	if err := repo.Revoke(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Revoke on already-revoked session must not fail: %v", err)
	}
}
