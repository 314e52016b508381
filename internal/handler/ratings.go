package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/service"
)

// RatingService is the part of service.RatingService the handlers use.
type RatingService interface {
	Submit(ctx context.Context, rater model.User, kind model.TargetKind, targetID uint64, score int, review string) (service.RatingResult, error)
	ListFor(ctx context.Context, kind model.TargetKind, targetID uint64) ([]model.Rating, error)
}

// RatingHandler serves ratings of users and events. Users are addressed
// by username in the URL and resolved through the profile lookup.
type RatingHandler struct {
	svc   RatingService
	users AuthService
}

func NewRatingHandler(svc RatingService, users AuthService) *RatingHandler {
	return &RatingHandler{svc: svc, users: users}
}

type rateReq struct {
	Score  int    `json:"score"`
	Review string `json:"review"`
}

// RateUser records the caller's rating of the user in the path.
func (h *RatingHandler) RateUser(c echo.Context) error {
	return h.submit(c, model.TargetUser)
}

// RateEvent records the caller's rating of the event in the path.
func (h *RatingHandler) RateEvent(c echo.Context) error {
	return h.submit(c, model.TargetEvent)
}

// ListUser returns the ratings a user received.
func (h *RatingHandler) ListUser(c echo.Context) error {
	return h.list(c, model.TargetUser)
}

// ListEvent returns the ratings of an event.
func (h *RatingHandler) ListEvent(c echo.Context) error {
	return h.list(c, model.TargetEvent)
}

func (h *RatingHandler) submit(c echo.Context, kind model.TargetKind) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req rateReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	target, err := h.target(ctx, c, u, kind)
	if err != nil {
		return err
	}
	res, err := h.svc.Submit(ctx, u, kind, target, req.Score, req.Review)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *RatingHandler) list(c echo.Context, kind model.TargetKind) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	target, err := h.target(ctx, c, u, kind)
	if err != nil {
		return err
	}
	out, err := h.svc.ListFor(ctx, kind, target)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// target resolves the path to the id of the rated row.
func (h *RatingHandler) target(ctx context.Context, c echo.Context, viewer model.User, kind model.TargetKind) (uint64, error) {
	if kind == model.TargetEvent {
		return idParam(c, "id")
	}
	p, err := h.users.Profile(ctx, viewer, c.Param("username"))
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}
