package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const studentSessionTokenType = "student_session"

// StudentIdentity is the payload of a launch token or student session
// token: a student authenticated by the campus super-app, handed to a
// dependent mini-app. ExternalID and Name are mandatory, Email may be
// empty.
type StudentIdentity struct {
	ExternalID string
	Name       string
	Email      string
}

// NewLaunchToken mints a one-shot identity handoff token. The TTL is
// deliberately minutes, not hours: the token only needs to survive the
// hop from one app to its sibling.
func NewLaunchToken(secret string, id StudentIdentity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"student_id":    id.ExternalID,
		"student_name":  id.Name,
		"student_email": id.Email,
		"exp":           time.Now().UTC().Add(ttl).Unix(),
		"iat":           time.Now().UTC().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyLaunchToken checks signature, expiry and required fields.
// Student session tokens carry a token_type discriminator and are
// rejected here; the two kinds must never substitute for each other.
func VerifyLaunchToken(secret, raw string) (StudentIdentity, error) {
	claims, err := parseHS256(secret, raw)
	if err != nil {
		return StudentIdentity{}, ErrInvalidToken
	}
	if stringClaim(claims, "token_type") != "" {
		return StudentIdentity{}, ErrInvalidToken
	}
	return identityFromClaims(claims)
}

// NewStudentSessionToken re-signs a verified student identity with a
// longer TTL and an explicit type discriminator, so a mini-app can
// keep its own student session without re-verifying the original
// launch token on every request.
func NewStudentSessionToken(secret string, id StudentIdentity, ttl time.Duration) (string, time.Time, error) {
	if ttl < time.Minute {
		ttl = time.Minute
	}
	exp := time.Now().UTC().Add(ttl)
	claims := jwt.MapClaims{
		"student_id":    id.ExternalID,
		"student_name":  id.Name,
		"student_email": id.Email,
		"token_type":    studentSessionTokenType,
		"exp":           exp.Unix(),
		"iat":           time.Now().UTC().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token, exp, err
}

// VerifyStudentSessionToken is the counterpart of
// NewStudentSessionToken. Launch tokens lack the discriminator and are
// rejected.
func VerifyStudentSessionToken(secret, raw string) (StudentIdentity, error) {
	claims, err := parseHS256(secret, raw)
	if err != nil {
		return StudentIdentity{}, ErrInvalidToken
	}
	if stringClaim(claims, "token_type") != studentSessionTokenType {
		return StudentIdentity{}, ErrInvalidToken
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (StudentIdentity, error) {
	id := StudentIdentity{
		ExternalID: stringClaim(claims, "student_id"),
		Name:       stringClaim(claims, "student_name"),
		Email:      stringClaim(claims, "student_email"),
	}
	if id.ExternalID == "" || id.Name == "" {
		return StudentIdentity{}, ErrInvalidToken
	}
	return id, nil
}
