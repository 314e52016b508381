package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventdesk/internal/middleware"
	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/service"
)

// AuthService is the part of service.AuthService the handlers use.
type AuthService interface {
	Signup(ctx context.Context, clientKey string, in service.SignupInput) (service.AuthResult, error)
	Login(ctx context.Context, clientKey, identifier, password string) (service.AuthResult, error)
	Refresh(ctx context.Context, raw string) (service.AuthResult, error)
	Logout(ctx context.Context, raw string) error
	Me(ctx context.Context, u model.User) model.PublicUser
	Profile(ctx context.Context, viewer model.User, username string) (model.PublicUser, error)
	RequestPasswordReset(ctx context.Context, clientKey, email string) error
	ResetPassword(ctx context.Context, clientKey, email, code, newPassword string) error
}

// AuthHandler serves the account endpoints.
type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// ----- DTOs -----

// loginReq accepts the identifier under any of three names so clients
// can send whichever they collected.
type loginReq struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (r loginReq) id() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.Username != "":
		return r.Username
	}
	return r.Email
}

type forgotReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type tokenResp struct {
	User      model.PublicUser `json:"user"`
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
}

func toTokenResp(r service.AuthResult) tokenResp {
	return tokenResp{User: r.User, Token: r.Token, TokenType: "Bearer", ExpiresAt: r.ExpiresAt}
}

type messageResp struct {
	Message string `json:"message"`
}

// Signup: create the account and sign it in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req service.SignupInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.svc.Signup(ctx, middleware.ClientKey(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toTokenResp(res))
}

// Login: verify credentials and issue a token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.svc.Login(ctx, middleware.ClientKey(c), req.id(), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTokenResp(res))
}

// Refresh: exchange the presented, still valid token for a fresh one.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.svc.Refresh(ctx, middleware.BearerToken(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toTokenResp(res))
}

// Logout acknowledges the logout. Tokens are stateless and stay valid
// until they expire; the client is expected to drop its copy.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.svc.Logout(ctx, middleware.BearerToken(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword starts a reset. The response is the same whether or not
// the address belongs to an account.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.svc.RequestPasswordReset(ctx, middleware.ClientKey(c), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, messageResp{"if the address is registered, a reset code has been sent"})
}

// ResetPassword redeems a reset code.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.svc.ResetPassword(ctx, middleware.ClientKey(c), req.Email, req.Code, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResp{"password updated"})
}

// Me returns the caller's own account.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.Me(c.Request().Context(), u))
}

// Profile returns another user's public profile.
func (h *AuthHandler) Profile(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.svc.Profile(ctx, u, c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
