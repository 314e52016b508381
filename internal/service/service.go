// Package service holds the business rules: the credential and session
// manager, the event workflow and the rating aggregation engine. Services
// return *apperr.Error for every failure a caller can act on; anything
// else is wrapped with apperr.Internal.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/store"
)

// Notifier delivers messages out of band. The queue publisher implements
// it; failures are logged by the services and never fail the request.
type Notifier interface {
	ResetRequested(ctx context.Context, u model.User, code string, expiresAt time.Time) error
	EventAssigned(ctx context.Context, e model.Event) error
	EventStatusChanged(ctx context.Context, e model.Event) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) ResetRequested(context.Context, model.User, string, time.Time) error { return nil }
func (NopNotifier) EventAssigned(context.Context, model.Event) error                    { return nil }
func (NopNotifier) EventStatusChanged(context.Context, model.Event) error               { return nil }

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)
)

const minPasswordLen = 6

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// internal wraps an unexpected store failure.
func internal(op string, err error) error {
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

func orNop(n Notifier) Notifier {
	if n == nil {
		return NopNotifier{}
	}
	return n
}

func orStd(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}

func orNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

// optional trims s and returns nil when nothing is left.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
