package model

import "time"

// AttendSession is one attendance-taking session on a kiosk, stored in
// the `sessions` table. At most one session per kiosk is active at a
// time; starting a new one force-closes the previous. The per-session
// QRSecret keys the rotating HMAC proof token that students must
// reproduce to be marked present.
//
// Fields:
//  ID            – UUID primary key.
//  KioskID       – kiosk the session runs on.
//  TeacherID     – account id of the teacher who started it.
//  TeacherName   – denormalized so history survives account deletion.
//  Discipline    – subject shown on the kiosk.
//  QRSecret      – random hex secret for proof-token HMAC.
//  RotateSeconds – proof token rotation period.
//  StartedAt     – session start.
//  EndedAt       – session end (nullable while active).
//  IsActive      – active flag; flipped on close and lazy expiry.
type AttendSession struct {
	ID            string     // sessions.id
	KioskID       string     // sessions.kiosk_id
	TeacherID     string     // sessions.teacher_id
	TeacherName   string     // sessions.teacher_name
	Discipline    string     // sessions.discipline
	QRSecret      string     // sessions.qr_secret
	RotateSeconds int        // sessions.rotate_seconds
	StartedAt     time.Time  // sessions.started_at
	EndedAt       *time.Time // sessions.ended_at (nullable)
	IsActive      bool       // sessions.is_active
}

// AttendanceMark records one student marked present in one session.
// The unique key (session_id, student_external_id) is the source of
// truth for idempotence: a duplicate mark is an "already marked"
// acknowledgement, never a second row.
type AttendanceMark struct {
	ID                string    // attendance.id
	SessionID         string    // attendance.session_id
	StudentExternalID string    // attendance.student_external_id
	StudentName       string    // attendance.student_name
	StudentEmail      string    // attendance.student_email
	MarkedAt          time.Time // attendance.marked_at
}
