package handler // handler contains the echo handlers and the error writer they share

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/middleware"
	"github.com/iliyamo/eventdesk/internal/model"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ErrorHandler maps errors returned by handlers and middleware to
// responses. Typed errors keep their message; echo's own errors (unknown
// route, wrong method, oversized body) keep their status; everything else
// is logged and reported as a generic 500.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := http.StatusInternalServerError, errorBody{Error: "internal error", Code: apperr.KindInternal.String()}
		var he *echo.HTTPError
		switch e, ok := apperr.As(err); {
		case ok && e.Kind != apperr.KindInternal:
			status = apperr.HTTPStatus(e)
			body = errorBody{Error: e.Message, Code: e.Code}
			if e.Kind == apperr.KindRateLimited {
				c.Response().Header().Set("Retry-After", retryAfter(e.RetryAfter))
			}
		case errors.As(err, &he) && he.Code < http.StatusInternalServerError:
			status = he.Code
			body = errorBody{Error: http.StatusText(he.Code), Code: "http_" + strconv.Itoa(he.Code)}
			if msg, ok := he.Message.(string); ok && msg != "" {
				body.Error = msg
			}
		default:
			log.WithError(err).WithFields(logrus.Fields{
				"request_id": middleware.RequestIDFrom(c),
				"method":     c.Request().Method,
				"path":       c.Path(),
			}).Error("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.WithError(werr).Warn("write error response")
		}
	}
}

// retryAfter renders d as whole seconds, rounded up and at least 1.
func retryAfter(d time.Duration) string {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}

// reqCtx derives the per-request context handed to the services.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// bind decodes the request body into v. Malformed bodies are validation
// errors rather than echo's generic 400.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// currentUser returns the authenticated user. Routes that call it are
// registered behind middleware.Authenticate.
func currentUser(c echo.Context) (model.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return model.User{}, apperr.Auth("missing bearer token")
	}
	return u, nil
}

// idParam parses the named path parameter as a positive id.
func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}
