package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/polytech-superapp/campus-sso/internal/model"
)

const sessionColumns = "id, kiosk_id, teacher_id, teacher_name, discipline, qr_secret, rotate_seconds, started_at, ended_at, is_active"

// AttendRepo manages attendance sessions and marks.
type AttendRepo struct{ DB *sql.DB }

func NewAttendRepo(db *sql.DB) *AttendRepo { return &AttendRepo{DB: db} }

// CreateSession force-closes any active session on the kiosk and
// inserts the new one in a single transaction, so there is never a
// window with two active sessions on one kiosk.
func (r *AttendRepo) CreateSession(ctx context.Context, s model.AttendSession) (model.AttendSession, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.AttendSession{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET is_active=0, ended_at=NOW() WHERE kiosk_id=? AND is_active=1", s.KioskID); err != nil {
		return model.AttendSession{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sessions (id, kiosk_id, teacher_id, teacher_name, discipline, qr_secret, rotate_seconds, started_at, is_active) VALUES (?,?,?,?,?,?,?,NOW(),1)",
		s.ID, s.KioskID, s.TeacherID, s.TeacherName, s.Discipline, s.QRSecret, s.RotateSeconds); err != nil {
		return model.AttendSession{}, err
	}
	created, err := oneSessionTx(ctx, tx, "SELECT "+sessionColumns+" FROM sessions WHERE id=? LIMIT 1", s.ID)
	if err != nil {
		return model.AttendSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.AttendSession{}, err
	}
	return created, nil
}

// Get fetches one session by id.
func (r *AttendRepo) Get(ctx context.Context, id string) (model.AttendSession, error) {
	return r.oneSession(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id=? LIMIT 1", id)
}

// ActiveByKiosk returns the kiosk's active session, lazily closing it
// first if it has outlived maxAge. There is no background sweep; any
// read path that touches an over-age session expires it.
func (r *AttendRepo) ActiveByKiosk(ctx context.Context, kioskID string, maxAge time.Duration) (model.AttendSession, error) {
	s, err := r.oneSession(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE kiosk_id=? AND is_active=1 LIMIT 1", kioskID)
	if err != nil {
		return model.AttendSession{}, err
	}
	return r.expireIfStale(ctx, s, maxAge)
}

// GetActive fetches a session by id and applies the same lazy expiry.
// An inactive or expired session is ErrNotFound to the caller.
func (r *AttendRepo) GetActive(ctx context.Context, id string, maxAge time.Duration) (model.AttendSession, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return model.AttendSession{}, err
	}
	if !s.IsActive {
		return model.AttendSession{}, ErrNotFound
	}
	return r.expireIfStale(ctx, s, maxAge)
}

func (r *AttendRepo) expireIfStale(ctx context.Context, s model.AttendSession, maxAge time.Duration) (model.AttendSession, error) {
	if maxAge > 0 && time.Now().UTC().Sub(s.StartedAt) > maxAge {
		if err := r.CloseSession(ctx, s.ID); err != nil {
			return model.AttendSession{}, err
		}
		return model.AttendSession{}, ErrNotFound
	}
	return s, nil
}

// ListByTeacher returns a teacher's sessions, newest first, optionally
// filtered to one kiosk.
func (r *AttendRepo) ListByTeacher(ctx context.Context, teacherID, kioskID string) ([]model.AttendSession, error) {
	q := "SELECT " + sessionColumns + " FROM sessions WHERE teacher_id=?"
	args := []any{teacherID}
	if kioskID != "" {
		q += " AND kiosk_id=?"
		args = append(args, kioskID)
	}
	q += " ORDER BY started_at DESC"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendSession
	for rows.Next() {
		s, err := scanAttendSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CloseSession flips the active flag and stamps the end time.
func (r *AttendRepo) CloseSession(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET is_active=0, ended_at=NOW() WHERE id=? AND is_active=1", id)
	return err
}

// Mark inserts an attendance mark. The unique key on (session_id,
// student_external_id) is the source of truth for idempotence: a
// duplicate insert, even one racing a concurrent identical mark,
// reports created=false instead of an error.
func (r *AttendRepo) Mark(ctx context.Context, m model.AttendanceMark) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO attendance (id, session_id, student_external_id, student_name, student_email, marked_at) VALUES (?,?,?,?,?,NOW())",
		m.ID, m.SessionID, m.StudentExternalID, m.StudentName, m.StudentEmail)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Attendees lists a session's marks in arrival order.
func (r *AttendRepo) Attendees(ctx context.Context, sessionID string) ([]model.AttendanceMark, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, session_id, student_external_id, student_name, student_email, marked_at FROM attendance WHERE session_id=? ORDER BY marked_at",
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceMark
	for rows.Next() {
		var m model.AttendanceMark
		if err := rows.Scan(&m.ID, &m.SessionID, &m.StudentExternalID, &m.StudentName, &m.StudentEmail, &m.MarkedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountAttendance returns how many students are marked in a session.
func (r *AttendRepo) CountAttendance(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance WHERE session_id=?", sessionID).Scan(&n)
	return n, err
}

func (r *AttendRepo) oneSession(ctx context.Context, query string, args ...any) (model.AttendSession, error) {
	s, err := scanAttendSession(r.DB.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return model.AttendSession{}, ErrNotFound
	}
	return s, err
}

func oneSessionTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (model.AttendSession, error) {
	s, err := scanAttendSession(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return model.AttendSession{}, ErrNotFound
	}
	return s, err
}

func scanAttendSession(row rowScanner) (model.AttendSession, error) {
	var (
		s       model.AttendSession
		endedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.KioskID, &s.TeacherID, &s.TeacherName, &s.Discipline,
		&s.QRSecret, &s.RotateSeconds, &s.StartedAt, &endedAt, &s.IsActive)
	if err != nil {
		return model.AttendSession{}, err
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return s, nil
}
