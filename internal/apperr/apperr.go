// Package apperr defines the typed errors returned by the service layer.
// Every error a caller can act on carries a Kind and a stable,
// user-displayable message; anything else is treated as internal and
// reported without details.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindAuthz
	KindNotFound
	KindConflict
	KindRateLimited
	KindInvalidState
	KindSelfRating
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindAuthz:
		return "authz"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidState:
		return "invalid_state"
	case KindSelfRating:
		return "self_rating"
	default:
		return "internal"
	}
}

// Stable codes for the two token failure modes. Callers use them to decide
// between prompting a re-login and failing immediately.
const (
	CodeTokenExpired = "token_expired"
	CodeTokenInvalid = "token_invalid"
)

// Error is the concrete error type. Code refines Kind (for example the
// token failure mode) and defaults to Kind.String().
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind and Code so sentinel comparisons work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Code: kind.String(), Message: msg}
}

func Validation(msg string) *Error   { return newErr(KindValidation, msg) }
func Auth(msg string) *Error         { return newErr(KindAuth, msg) }
func Authz(msg string) *Error        { return newErr(KindAuthz, msg) }
func NotFound(msg string) *Error     { return newErr(KindNotFound, msg) }
func Conflict(msg string) *Error     { return newErr(KindConflict, msg) }
func InvalidState(msg string) *Error { return newErr(KindInvalidState, msg) }
func SelfRating(msg string) *Error   { return newErr(KindSelfRating, msg) }

// RateLimited builds a rate limit error with the time until the window
// admits another attempt.
func RateLimited(retryAfter time.Duration) *Error {
	e := newErr(KindRateLimited, "too many attempts, please try again later")
	e.RetryAfter = retryAfter
	return e
}

// TokenExpired and TokenInvalid are the AuthError subtypes produced by
// token verification.
func TokenExpired() *Error {
	return &Error{Kind: KindAuth, Code: CodeTokenExpired, Message: "token expired"}
}

func TokenInvalid() *Error {
	return &Error{Kind: KindAuth, Code: CodeTokenInvalid, Message: "invalid token"}
}

// Internal wraps an unexpected failure. The message shown to clients is
// always generic; err is kept for logging.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: KindInternal.String(), Message: "internal error", Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal when err is not typed.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the transport returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSelfRating:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthz:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
