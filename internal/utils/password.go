package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns the bcrypt digest of a plaintext password. Cost
// is tunable so tests can run cheap and production can run slow.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt digest against a plaintext password
// using the scheme's own constant-time comparison. The plaintext is
// never logged.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
