package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/service"
)

// EventService is the part of service.EventService the handlers use.
type EventService interface {
	Create(ctx context.Context, actor model.User, in service.EventInput) (model.EventDetail, error)
	List(ctx context.Context, f model.EventFilter) ([]model.EventDetail, error)
	Get(ctx context.Context, id uint64) (model.EventDetail, error)
	Update(ctx context.Context, actor model.User, id uint64, p service.EventPatch) (model.EventDetail, error)
	Delete(ctx context.Context, actor model.User, id uint64) error
	Accept(ctx context.Context, actor model.User, id uint64) (model.EventDetail, error)
	Reject(ctx context.Context, actor model.User, id uint64, reason string) (model.EventDetail, error)
}

// EventHandler serves the event workflow endpoints.
type EventHandler struct {
	svc EventService
}

func NewEventHandler(svc EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

type rejectReq struct {
	Reason string `json:"reason"`
}

// Create posts a new event.
func (h *EventHandler) Create(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.EventInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ev, err := h.svc.Create(ctx, u, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ev)
}

// List returns events, newest first. Query parameters posted_by,
// assigned_to and status narrow the result; "me" stands for the caller's
// username in the first two.
func (h *EventHandler) List(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	self := func(v string) string {
		if v == "me" {
			return u.Username
		}
		return v
	}
	f := model.EventFilter{
		PostedBy:   self(strings.TrimSpace(c.QueryParam("posted_by"))),
		AssignedTo: self(strings.TrimSpace(c.QueryParam("assigned_to"))),
		Status:     model.EventStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))),
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.svc.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one event.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ev, err := h.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// Update edits name and description. PUT and PATCH behave the same:
// omitted fields are left unchanged.
func (h *EventHandler) Update(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req service.EventPatch
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ev, err := h.svc.Update(ctx, u, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// Delete removes an event with its ratings.
func (h *EventHandler) Delete(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.svc.Delete(ctx, u, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Accept is called by the assignee.
func (h *EventHandler) Accept(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ev, err := h.svc.Accept(ctx, u, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// Reject is called by the assignee. The body and its reason are optional.
func (h *EventHandler) Reject(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req rejectReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ev, err := h.svc.Reject(ctx, u, id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}
