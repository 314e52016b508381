package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Token verification failures. Callers distinguish the two to decide
// whether to prompt a re-login (expired) or fail outright (invalid).
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims carried by every session token. The subject is the decimal
// user id; Role is informational only, the authoritative role is
// reloaded from the store on every verification.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// TokenService issues and verifies HS256 session tokens. Tokens are
// stateless: validity is computed from the signature and exp claim and
// nothing is stored.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a TokenService. now may be nil, in which case
// time.Now is used.
func NewTokenService(secret string, ttl time.Duration, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL returns the lifetime of newly issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue builds and signs a token for userID.  The claims include the
// subject (sub), role, issued at (iat) and expiration (exp).
func (s *TokenService) Issue(userID uint64, role string) (AccessToken, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	// exp is truncated to seconds in the token; report the same instant.
	return AccessToken{Token: signed, Exp: time.Unix(exp.Unix(), 0).UTC()}, nil
}

// Verify checks the signature and expiry of raw and returns the subject
// user id. It returns ErrTokenExpired for a correctly signed token past
// its exp claim and ErrTokenInvalid for everything else.
func (s *TokenService) Verify(raw string) (uint64, *Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC so an attacker cannot pick "none"
		// or an asymmetric algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, nil, ErrTokenExpired
		}
		return 0, nil, ErrTokenInvalid
	}
	if !tok.Valid {
		return 0, nil, ErrTokenInvalid
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, nil, ErrTokenInvalid
	}
	return id, claims, nil
}
