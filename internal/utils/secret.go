package utils

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for one-time codes
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ResetCodeBytes is the amount of entropy in a password reset code. The
// code is rendered as upper-case hex, so 4 bytes give 8 characters.
const ResetCodeBytes = 4

// NewResetCode returns a random one-time code suitable for out-of-band
// delivery (e-mail, SMS).
func NewResetCode() (string, error) {
	raw, err := randomHex(ResetCodeBytes)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(raw), nil
}

// HashSecret returns the SHA-256 hash of a one-time secret as a hex
// string.  Only the hash is persisted, so a leaked table row cannot be
// redeemed.  Codes are compared case-insensitively.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(raw))))
	return hex.EncodeToString(sum[:])
}

// SecretMatches compares a stored hash with the hash of candidate in
// constant time.
func SecretMatches(storedHash, candidate string) bool {
	got := HashSecret(candidate)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(got)) == 1
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
