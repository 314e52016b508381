package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	h2, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "each hash must use a fresh salt")
	assert.True(t, VerifyPassword(h1, "secret1"))
	assert.False(t, VerifyPassword(h1, "secret2"))
}

func TestHashPassword_InvalidCostFallsBack(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("pw1234", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(h))
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, cost)
}

func TestCheckPasswordLength(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckPasswordLength(strings.Repeat("a", 72)))
	assert.ErrorIs(t, CheckPasswordLength(strings.Repeat("a", 73)), ErrPasswordTooLong)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewTokenService("super-secret", time.Hour, func() time.Time { return now })

	tok, err := svc.Issue(42, "ORGANIZER")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), tok.Exp)

	id, claims, err := svc.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, "ORGANIZER", claims.Role)
	assert.Equal(t, now, claims.IssuedAt.Time.UTC())
}

func TestTokenService_Expired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	svc := NewTokenService("secret", time.Minute, func() time.Time { return clock })

	tok, err := svc.Issue(7, "STANDARD")
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, _, err = svc.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewTokenService("right-secret", time.Hour, nil).Issue(1, "STANDARD")
	require.NoError(t, err)

	_, _, err = NewTokenService("wrong-secret", time.Hour, nil).Verify(tok.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_ExpiredWithWrongSecretIsInvalid(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-48 * time.Hour)
	tok, err := NewTokenService("right", time.Hour, func() time.Time { return past }).Issue(1, "STANDARD")
	require.NoError(t, err)

	_, _, err = NewTokenService("wrong", time.Hour, nil).Verify(tok.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid, "a forged token must never be reported as merely expired")
}

func TestTokenService_Malformed(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("k", time.Hour, nil)
	for _, raw := range []string{"", "not.a.jwt", "abc"} {
		_, _, err := svc.Verify(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid, raw)
	}
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	claims := jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = NewTokenService("k", time.Hour, nil).Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_RejectsMissingSubject(t *testing.T) {
	t.Parallel()

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, _, err = NewTokenService("k", time.Hour, nil).Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResetCode(t *testing.T) {
	t.Parallel()

	code, err := NewResetCode()
	require.NoError(t, err)
	assert.Len(t, code, ResetCodeBytes*2)
	assert.Equal(t, strings.ToUpper(code), code)

	h := HashSecret(code)
	assert.True(t, SecretMatches(h, code))
	assert.True(t, SecretMatches(h, strings.ToLower(code)), "codes are case-insensitive")
	assert.False(t, SecretMatches(h, "00000000"))
}
