package middleware // middleware provides shared request processing for handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/model"
)

// RequireRole returns a middleware that lets the request through only when
// the authenticated user has one of roles. It must run after
// Authenticate. The role is the one stored on the user row, not the
// informational claim inside the token.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.Auth("missing bearer token")
			}
			if !allowed[u.Role] {
				return apperr.Authz("forbidden")
			}
			return next(c)
		}
	}
}
