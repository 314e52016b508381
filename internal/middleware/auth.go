package middleware // middleware holds the echo middleware shared by every route group

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/model"
)

// TokenVerifier resolves a raw bearer token to the stored user it was
// issued for. service.AuthService implements it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (model.User, error)
}

// Authenticate returns an Echo middleware that validates the Bearer token
// through v and stores the resolved user and the raw token in the
// context. Handlers read them back with CurrentUser and BearerToken.
// Expired and invalid tokens are reported with distinct error codes so a
// client can tell whether logging in again will help.
func Authenticate(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperr.Auth("missing bearer token")
			}
			u, err := v.VerifyToken(c.Request().Context(), raw)
			if err != nil {
				return err
			}
			c.Set(ctxUser, u)
			c.Set(ctxToken, raw)
			return next(c)
		}
	}
}

// bearer extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func bearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}
