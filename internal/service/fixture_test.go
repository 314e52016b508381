package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/ratelimit"
	"github.com/iliyamo/eventdesk/internal/utils"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentReset struct {
	user      model.User
	code      string
	expiresAt time.Time
}

// recordingNotifier keeps every notification it is handed.
type recordingNotifier struct {
	mu      sync.Mutex
	resets  []sentReset
	events  []model.Event
	changes []model.Event
}

func (n *recordingNotifier) ResetRequested(_ context.Context, u model.User, code string, exp time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentReset{u, code, exp})
	return nil
}

func (n *recordingNotifier) EventAssigned(_ context.Context, e model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) EventStatusChanged(_ context.Context, e model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, e)
	return nil
}

func (n *recordingNotifier) lastReset(t *testing.T) sentReset {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.resets, "no reset code was sent")
	return n.resets[len(n.resets)-1]
}

type fixture struct {
	store   *memStore
	clock   *testClock
	notes   *recordingNotifier
	tokens  *utils.TokenService
	auth    *AuthService
	events  *EventService
	ratings *RatingService
}

const testTokenTTL = time.Hour

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLimiter(t, nil)
}

// newFixtureWithLimiter builds the services on an in-memory store. A nil
// limiter means the real sliding-window limiter with the default policy.
func newFixtureWithLimiter(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	if limiter == nil {
		limiter = ratelimit.NewMemory(ratelimit.DefaultPolicy, clock.Now)
	}
	st := newMemStore()
	notes := &recordingNotifier{}
	tokens := utils.NewTokenService("test-secret-0123456789", testTokenTTL, clock.Now)

	return &fixture{
		store:  st,
		clock:  clock,
		notes:  notes,
		tokens: tokens,
		auth: NewAuthService(AuthDeps{
			Store:        st,
			Tokens:       tokens,
			Limiter:      limiter,
			Notifier:     notes,
			Log:          logger,
			Now:          clock.Now,
			BcryptCost:   bcrypt.MinCost,
			ResetCodeTTL: 15 * time.Minute,
		}),
		events:  NewEventService(st, notes, logger, clock.Now),
		ratings: NewRatingService(st, logger, clock.Now),
	}
}

// signup registers username with password "secret1" from its own client
// key and returns the stored user.
func (f *fixture) signup(t *testing.T, username string, role model.Role) model.User {
	t.Helper()
	res, err := f.auth.Signup(context.Background(), "setup-"+username, SignupInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret1",
		Name:     "User " + username,
		Role:     role,
	})
	require.NoError(t, err)
	u, err := f.store.Users().ByID(context.Background(), res.User.ID)
	require.NoError(t, err)
	return u
}

func (f *fixture) reload(t *testing.T, id uint64) model.User {
	t.Helper()
	u, err := f.store.Users().ByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}
