package utils

import "testing"

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("s3cret", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatalf("hash must not equal the plaintext")
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Fatalf("correct password must verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatalf("wrong password must not verify")
	}
}
