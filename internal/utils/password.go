package utils

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when the configured cost is out of range.
const DefaultBcryptCost = 12

// HashPassword returns bcrypt hash using the given cost. bcrypt draws a
// fresh random salt on every call and embeds it in the returned string.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// BurnPasswordCheck runs one bcrypt comparison against a throwaway hash of
// the given cost. Login calls it for unknown identifiers so both failure
// paths take roughly the same time.
func BurnPasswordCheck(plain string, cost int) {
	dummyOnce.Do(func() {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			cost = DefaultBcryptCost
		}
		h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
		if err != nil {
			h = nil
		}
		dummyHash = h
	})
	if dummyHash == nil {
		return
	}
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}

// ErrPasswordTooLong mirrors bcrypt's 72 byte input limit.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// CheckPasswordLength reports ErrPasswordTooLong for inputs bcrypt rejects.
func CheckPasswordLength(plain string) error {
	if len(plain) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}
