package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/ratelimit"
	"github.com/iliyamo/eventdesk/internal/store"
	"github.com/iliyamo/eventdesk/internal/utils"
)

// Rate limited actions. Each forms the prefix of a limiter key, so the
// quota of one action never eats into another.
const (
	ActionSignup       = "signup"
	ActionLogin        = "login"
	ActionResetRequest = "reset-request"
	ActionReset        = "reset"
)

var (
	errInvalidCredentials = apperr.Auth("invalid credentials")
	errInvalidResetCode   = apperr.Auth("invalid or expired reset code")
)

// AuthDeps wires an AuthService.
type AuthDeps struct {
	Store        store.Store
	Tokens       *utils.TokenService
	Limiter      ratelimit.Limiter
	Notifier     Notifier
	Log          logrus.FieldLogger
	Now          func() time.Time
	BcryptCost   int
	ResetCodeTTL time.Duration
}

// AuthService is the credential and session manager. Tokens are stateless:
// nothing about a session is stored, so logout cannot revoke a token
// before it expires.
type AuthService struct {
	store    store.Store
	tokens   *utils.TokenService
	limiter  ratelimit.Limiter
	notify   Notifier
	log      logrus.FieldLogger
	now      func() time.Time
	cost     int
	resetTTL time.Duration
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Limiter == nil {
		d.Limiter = ratelimit.Noop{}
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = utils.DefaultBcryptCost
	}
	if d.ResetCodeTTL <= 0 {
		d.ResetCodeTTL = 15 * time.Minute
	}
	return &AuthService{
		store:    d.Store,
		tokens:   d.Tokens,
		limiter:  d.Limiter,
		notify:   orNop(d.Notifier),
		log:      orStd(d.Log).WithField("component", "auth"),
		now:      orNow(d.Now),
		cost:     d.BcryptCost,
		resetTTL: d.ResetCodeTTL,
	}
}

// SignupInput is the signup payload. An empty Role means STANDARD.
type SignupInput struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
}

// AuthResult is returned by signup, login and refresh.
type AuthResult struct {
	User      model.PublicUser `json:"user"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Signup registers a new account and signs it in.
func (s *AuthService) Signup(ctx context.Context, clientKey string, in SignupInput) (AuthResult, error) {
	if err := s.limit(ctx, ActionSignup, clientKey); err != nil {
		return AuthResult{}, err
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = model.RoleStandard
	}
	if err := validateSignup(in); err != nil {
		return AuthResult{}, err
	}

	users := s.store.Users()
	taken, err := users.UsernameTaken(ctx, in.Username)
	if err != nil {
		return AuthResult{}, internal("check username", err)
	}
	if taken {
		return AuthResult{}, apperr.Conflict("username already taken")
	}
	taken, err = users.EmailTaken(ctx, in.Email)
	if err != nil {
		return AuthResult{}, internal("check email", err)
	}
	if taken {
		return AuthResult{}, apperr.Conflict("email already registered")
	}

	hash, err := utils.HashPassword(in.Password, s.cost)
	if err != nil {
		return AuthResult{}, internal("hash password", err)
	}
	u := model.User{
		Username:     in.Username,
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    s.now().UTC(),
	}
	id, err := users.Create(ctx, u)
	if errors.Is(err, store.ErrDuplicate) {
		// lost a race with a concurrent signup for the same name or email
		return AuthResult{}, apperr.Conflict("username or email already taken")
	}
	if err != nil {
		return AuthResult{}, internal("create user", err)
	}
	u.ID = id

	s.log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("user signed up")
	return s.issue(u)
}

func validateSignup(in SignupInput) error {
	switch {
	case in.Username == "" || in.Email == "" || in.Password == "" || in.Name == "":
		return apperr.Validation("username, email, password and name are required")
	case !usernameRe.MatchString(in.Username):
		return apperr.Validation("username must be 3-64 letters, digits, '.', '_' or '-'")
	case !emailRe.MatchString(in.Email):
		return apperr.Validation("please provide a valid email address")
	case !in.Role.Valid():
		return apperr.Validation("role must be STANDARD or ORGANIZER")
	}
	return validatePassword(in.Password)
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return apperr.Validation("password must be at least 6 characters long")
	}
	if utils.CheckPasswordLength(pw) != nil {
		return apperr.Validation("password must be at most 72 bytes long")
	}
	return nil
}

// Login authenticates by username or email. Unknown identifiers and wrong
// passwords produce the same error, and an unknown identifier still pays
// for one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, clientKey, identifier, password string) (AuthResult, error) {
	if err := s.limit(ctx, ActionLogin, clientKey); err != nil {
		return AuthResult{}, err
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return AuthResult{}, apperr.Validation("identifier and password are required")
	}

	var (
		u   model.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = s.store.Users().ByEmail(ctx, normalizeEmail(identifier))
	} else {
		u, err = s.store.Users().ByUsername(ctx, identifier)
	}
	if isNotFound(err) {
		utils.BurnPasswordCheck(password, s.cost)
		return AuthResult{}, errInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, internal("load user", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return AuthResult{}, errInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.store.Users().TouchLogin(ctx, u.ID, now); err != nil {
		return AuthResult{}, internal("record login", err)
	}
	u.LastLoginAt = &now
	return s.issue(u)
}

// VerifyToken is the gate in front of every protected operation. It
// resolves the token subject to a stored user.
func (s *AuthService) VerifyToken(ctx context.Context, raw string) (model.User, error) {
	id, _, err := s.tokens.Verify(raw)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return model.User{}, apperr.TokenExpired()
	case err != nil:
		return model.User{}, apperr.TokenInvalid()
	}

	u, err := s.store.Users().ByID(ctx, id)
	if isNotFound(err) {
		return model.User{}, apperr.TokenInvalid()
	}
	if err != nil {
		return model.User{}, internal("load token subject", err)
	}
	return u, nil
}

// Refresh issues a fresh token for the subject of a currently valid one.
// Expired tokens cannot be refreshed.
func (s *AuthService) Refresh(ctx context.Context, raw string) (AuthResult, error) {
	u, err := s.VerifyToken(ctx, raw)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(u)
}

// Logout only checks that the token is valid. The token stays usable
// until it expires; clients discard it.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	u, err := s.VerifyToken(ctx, raw)
	if err != nil {
		return err
	}
	s.log.WithField("user_id", u.ID).Debug("user logged out")
	return nil
}

// Me returns the caller's own view.
func (s *AuthService) Me(_ context.Context, u model.User) model.PublicUser {
	return u.Public()
}

// Profile returns the public view of username. The email address is
// only included when viewers look at themselves.
func (s *AuthService) Profile(ctx context.Context, viewer model.User, username string) (model.PublicUser, error) {
	u, err := s.store.Users().ByUsername(ctx, strings.TrimSpace(username))
	if isNotFound(err) {
		return model.PublicUser{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return model.PublicUser{}, internal("load profile", err)
	}
	p := u.Public()
	if viewer.ID != u.ID {
		p.Email = ""
		p.LastLoginAt = nil
	}
	return p, nil
}

// RequestPasswordReset always succeeds for a well-formed email so the
// response cannot be used to probe for accounts. Only when the account
// exists is a code generated, stored as a hash and handed to the
// notifier.
func (s *AuthService) RequestPasswordReset(ctx context.Context, clientKey, email string) error {
	if err := s.limit(ctx, ActionResetRequest, clientKey); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if !emailRe.MatchString(email) {
		return apperr.Validation("please provide a valid email address")
	}

	u, err := s.store.Users().ByEmail(ctx, email)
	if isNotFound(err) {
		s.log.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return internal("load user", err)
	}

	code, err := utils.NewResetCode()
	if err != nil {
		return internal("generate reset code", err)
	}
	now := s.now().UTC()
	req := model.ResetRequest{
		UserID:    u.ID,
		CodeHash:  utils.HashSecret(code),
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.store.Resets().Upsert(ctx, req); err != nil {
		return internal("store reset request", err)
	}

	if err := s.notify.ResetRequested(ctx, u, code, req.ExpiresAt); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Error("reset code delivery failed")
	}
	return nil
}

// ResetPassword redeems a reset code. The code is accepted up to and
// including its expiry instant. The request row is locked for the
// duration of the check so a code can be redeemed only once; an expired
// row found on the way is deleted. Issued tokens stay valid.
func (s *AuthService) ResetPassword(ctx context.Context, clientKey, email, code, newPassword string) error {
	if err := s.limit(ctx, ActionReset, clientKey); err != nil {
		return err
	}
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return apperr.Validation("email, code and new password are required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	u, err := s.store.Users().ByEmail(ctx, email)
	if isNotFound(err) {
		return errInvalidResetCode
	}
	if err != nil {
		return internal("load user", err)
	}

	// hash before taking the row lock; bcrypt is the slow part
	hash, err := utils.HashPassword(newPassword, s.cost)
	if err != nil {
		return internal("hash password", err)
	}

	expired := false
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		req, err := tx.Resets().LockByUser(ctx, u.ID)
		if isNotFound(err) {
			return errInvalidResetCode
		}
		if err != nil {
			return internal("lock reset request", err)
		}
		if !req.Usable(s.now().UTC()) {
			expired = true
			if err := tx.Resets().Delete(ctx, u.ID); err != nil {
				return internal("clear expired reset request", err)
			}
			return nil
		}
		if !utils.SecretMatches(req.CodeHash, code) {
			return errInvalidResetCode
		}
		if err := tx.Users().UpdatePassword(ctx, u.ID, hash); err != nil {
			return internal("update password", err)
		}
		if err := tx.Resets().Delete(ctx, u.ID); err != nil {
			return internal("consume reset request", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if expired {
		return errInvalidResetCode
	}

	s.log.WithField("user_id", u.ID).Info("password reset")
	return nil
}

func (s *AuthService) issue(u model.User) (AuthResult, error) {
	tok, err := s.tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return AuthResult{}, internal("issue token", err)
	}
	return AuthResult{User: u.Public(), Token: tok.Token, ExpiresAt: tok.Exp}, nil
}

// limit records one attempt of action for clientKey. A limiter outage
// lets the attempt through.
func (s *AuthService) limit(ctx context.Context, action, clientKey string) error {
	if clientKey == "" {
		clientKey = "unknown"
	}
	d, err := s.limiter.Allow(ctx, action+":"+clientKey)
	if err != nil {
		s.log.WithError(err).WithField("action", action).Warn("rate limiter unavailable, allowing attempt")
		return nil
	}
	if !d.Allowed {
		return apperr.RateLimited(d.RetryAfter)
	}
	return nil
}
