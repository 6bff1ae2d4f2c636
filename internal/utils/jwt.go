package utils // helpers for token creation, verification and hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/polytech-superapp/campus-sso/internal/model"
)

// ErrInvalidToken is the uniform failure for every token verification
// path. Callers never learn whether a token was expired, tampered with
// or simply garbage; internal audit logs may record the specific
// reason, the HTTP response must not.
var ErrInvalidToken = errors.New("invalid or expired token")

const refreshTokenType = "refresh"

// AccessClaims is the decoded payload of an access token. It carries
// everything a mini-app needs for an authorization decision so that
// verification never touches storage.
type AccessClaims struct {
	AccountID  string
	Username   string
	FullName   string
	App        string
	Role       string
	EntityID   string // empty when the account has no entity binding
	AuthSource string
	ExpiresAt  time.Time
}

// RefreshClaims is the decoded payload of a refresh token. SessionID
// names the refresh_sessions row backing this token.
type RefreshClaims struct {
	AccountID string
	App       string
	Role      string
	SessionID string
	ExpiresAt time.Time
}

// NewAccessToken signs an HS256 bearer token for the account. The
// token embeds identity and scope claims plus an issuer tag, so any
// mini-app sharing the secret can verify it locally.
func NewAccessToken(secret string, acc model.Account, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().UTC().Add(ttl)
	entityID := ""
	if acc.EntityID != nil {
		entityID = *acc.EntityID
	}
	claims := jwt.MapClaims{
		"sub":         acc.ID,
		"username":    acc.Username,
		"full_name":   acc.FullName,
		"app":         acc.App,
		"role":        acc.Role,
		"entity_id":   entityID,
		"auth_source": "sso",
		"exp":         exp.Unix(),
		"iat":         time.Now().UTC().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature and expiry and returns the
// decoded claims. Any failure collapses to ErrInvalidToken.
func VerifyAccessToken(secret, raw string) (AccessClaims, error) {
	claims, err := parseHS256(secret, raw)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	out := AccessClaims{
		AccountID:  stringClaim(claims, "sub"),
		Username:   stringClaim(claims, "username"),
		FullName:   stringClaim(claims, "full_name"),
		App:        stringClaim(claims, "app"),
		Role:       stringClaim(claims, "role"),
		EntityID:   stringClaim(claims, "entity_id"),
		AuthSource: stringClaim(claims, "auth_source"),
		ExpiresAt:  expClaim(claims),
	}
	if out.AccountID == "" || out.App == "" || out.Role == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return out, nil
}

// NewRefreshToken signs the refresh token paired with a refresh
// session. The raw string goes back to the client; only its SHA-256
// hash is persisted (HashRefreshRaw).
func NewRefreshToken(secret string, acc model.Account, sessionID string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().UTC().Add(ttl)
	claims := jwt.MapClaims{
		"sub":        acc.ID,
		"app":        acc.App,
		"role":       acc.Role,
		"token_type": refreshTokenType,
		"sid":        sessionID,
		"exp":        exp.Unix(),
		"iat":        time.Now().UTC().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyRefreshToken decodes a refresh token, rejecting access tokens
// and anything else lacking the refresh type discriminator.
func VerifyRefreshToken(secret, raw string) (RefreshClaims, error) {
	claims, err := parseHS256(secret, raw)
	if err != nil {
		return RefreshClaims{}, ErrInvalidToken
	}
	if stringClaim(claims, "token_type") != refreshTokenType {
		return RefreshClaims{}, ErrInvalidToken
	}
	out := RefreshClaims{
		AccountID: stringClaim(claims, "sub"),
		App:       stringClaim(claims, "app"),
		Role:      stringClaim(claims, "role"),
		SessionID: stringClaim(claims, "sid"),
		ExpiresAt: expClaim(claims),
	}
	if out.AccountID == "" || out.SessionID == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	return out, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as
// a hex string. Only the hash is stored, so a leaked database dump
// cannot be replayed as live refresh tokens.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex string built from n bytes of secure random
// data. Used for per-session QR secrets.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// parseHS256 parses and validates an HMAC-signed token and returns its
// claim map. Expiry is enforced by the jwt library.
func parseHS256(secret, raw string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func expClaim(claims jwt.MapClaims) time.Time {
	if v, ok := claims["exp"].(float64); ok {
		return time.Unix(int64(v), 0).UTC()
	}
	return time.Time{}
}
