package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventdesk/internal/apperr"
	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/store"
)

const (
	maxEventName    = 255
	maxRejectReason = 1000
)

// EventService runs the event workflow: organizers post events assigned
// to a user, the assignee accepts or rejects them once.
type EventService struct {
	store  store.Store
	notify Notifier
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewEventService(st store.Store, n Notifier, log logrus.FieldLogger, now func() time.Time) *EventService {
	return &EventService{
		store:  st,
		notify: orNop(n),
		log:    orStd(log).WithField("component", "events"),
		now:    orNow(now),
	}
}

// EventInput is the create payload.
type EventInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
}

// EventPatch carries the editable fields. Nil fields are left unchanged.
type EventPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Create posts a new event. Only organizers may post.
func (s *EventService) Create(ctx context.Context, actor model.User, in EventInput) (model.EventDetail, error) {
	if actor.Role != model.RoleOrganizer {
		return model.EventDetail{}, apperr.Authz("only organizers can create events")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	if in.Name == "" || in.AssignedTo == "" {
		return model.EventDetail{}, apperr.Validation("name and assigned_to are required")
	}
	if utf8.RuneCountInString(in.Name) > maxEventName {
		return model.EventDetail{}, apperr.Validation("name is too long")
	}

	assignee, err := s.store.Users().ByUsername(ctx, in.AssignedTo)
	if isNotFound(err) {
		return model.EventDetail{}, apperr.NotFound("assigned user not found")
	}
	if err != nil {
		return model.EventDetail{}, internal("load assignee", err)
	}

	now := s.now().UTC()
	e := model.Event{
		Name:        in.Name,
		Description: in.Description,
		PostedBy:    actor.Username,
		AssignedTo:  assignee.Username,
		Status:      model.EventPosted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.store.Events().Create(ctx, e)
	if err != nil {
		return model.EventDetail{}, internal("create event", err)
	}
	e.ID = id

	s.log.WithFields(logrus.Fields{"event_id": id, "posted_by": e.PostedBy, "assigned_to": e.AssignedTo}).Info("event posted")
	if err := s.notify.EventAssigned(ctx, e); err != nil {
		s.log.WithError(err).WithField("event_id", id).Warn("assignment notice not sent")
	}
	return s.Get(ctx, id)
}

// List returns events newest first.
func (s *EventService) List(ctx context.Context, f model.EventFilter) ([]model.EventDetail, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("status must be POSTED, ACCEPTED or REJECTED")
	}
	out, err := s.store.Events().List(ctx, f)
	if err != nil {
		return nil, internal("list events", err)
	}
	return out, nil
}

// Get returns one event with poster and assignee summaries.
func (s *EventService) Get(ctx context.Context, id uint64) (model.EventDetail, error) {
	d, err := s.store.Events().Detail(ctx, id)
	if isNotFound(err) {
		return model.EventDetail{}, apperr.NotFound("event not found")
	}
	if err != nil {
		return model.EventDetail{}, internal("load event", err)
	}
	return d, nil
}

// Update edits name and description. Only the poster may edit; status
// and assignment never change here.
func (s *EventService) Update(ctx context.Context, actor model.User, id uint64, p EventPatch) (model.EventDetail, error) {
	e, err := s.ownedBy(ctx, actor, id)
	if err != nil {
		return model.EventDetail{}, err
	}

	name, desc := e.Name, e.Description
	if p.Name != nil {
		name = strings.TrimSpace(*p.Name)
		if name == "" {
			return model.EventDetail{}, apperr.Validation("name must not be empty")
		}
		if utf8.RuneCountInString(name) > maxEventName {
			return model.EventDetail{}, apperr.Validation("name is too long")
		}
	}
	if p.Description != nil {
		desc = strings.TrimSpace(*p.Description)
	}

	if err := s.store.Events().UpdateDetails(ctx, id, name, desc); err != nil {
		return model.EventDetail{}, internal("update event", err)
	}
	return s.Get(ctx, id)
}

// Delete removes the event and its ratings in one transaction.
func (s *EventService) Delete(ctx context.Context, actor model.User, id uint64) error {
	if _, err := s.ownedBy(ctx, actor, id); err != nil {
		return err
	}
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		// rating writers take the same row lock, so none can slip in
		// between the two deletes
		if err := tx.Ratings().LockTarget(ctx, model.TargetEvent, id); err != nil {
			return err
		}
		if err := tx.Ratings().DeleteForTarget(ctx, model.TargetEvent, id); err != nil {
			return err
		}
		return tx.Events().Delete(ctx, id)
	})
	if isNotFound(err) {
		// deleted concurrently
		return apperr.NotFound("event not found")
	}
	if err != nil {
		return internal("delete event", err)
	}
	s.log.WithFields(logrus.Fields{"event_id": id, "user_id": actor.ID}).Info("event deleted")
	return nil
}

// Accept moves a POSTED event to ACCEPTED. Only the assignee may accept.
func (s *EventService) Accept(ctx context.Context, actor model.User, id uint64) (model.EventDetail, error) {
	return s.transition(ctx, actor, id, model.EventAccepted, nil)
}

// Reject moves a POSTED event to REJECTED with an optional reason.
func (s *EventService) Reject(ctx context.Context, actor model.User, id uint64, reason string) (model.EventDetail, error) {
	r := optional(reason)
	if r != nil && utf8.RuneCountInString(*r) > maxRejectReason {
		return model.EventDetail{}, apperr.Validation("reason is too long")
	}
	return s.transition(ctx, actor, id, model.EventRejected, r)
}

func (s *EventService) transition(ctx context.Context, actor model.User, id uint64, to model.EventStatus, reason *string) (model.EventDetail, error) {
	e, err := s.store.Events().ByID(ctx, id)
	if isNotFound(err) {
		return model.EventDetail{}, apperr.NotFound("event not found")
	}
	if err != nil {
		return model.EventDetail{}, internal("load event", err)
	}
	if actor.Username != e.AssignedTo {
		return model.EventDetail{}, apperr.Authz("only the assignee can accept or reject this event")
	}
	if !e.Status.CanTransition(to) {
		return model.EventDetail{}, apperr.InvalidState(fmt.Sprintf("event is already %s", e.Status))
	}

	ok, err := s.store.Events().Transition(ctx, id, to, reason)
	if err != nil {
		return model.EventDetail{}, internal("transition event", err)
	}
	if !ok {
		// another request moved it first
		return model.EventDetail{}, apperr.InvalidState("event is no longer POSTED")
	}
	e.Status = to
	e.RejectReason = reason

	s.log.WithFields(logrus.Fields{"event_id": id, "status": to}).Info("event status changed")
	if err := s.notify.EventStatusChanged(ctx, e); err != nil {
		s.log.WithError(err).WithField("event_id", id).Warn("status notice not sent")
	}
	return s.Get(ctx, id)
}

// ownedBy loads the event and checks that actor posted it.
func (s *EventService) ownedBy(ctx context.Context, actor model.User, id uint64) (model.Event, error) {
	e, err := s.store.Events().ByID(ctx, id)
	if isNotFound(err) {
		return model.Event{}, apperr.NotFound("event not found")
	}
	if err != nil {
		return model.Event{}, internal("load event", err)
	}
	if e.PostedBy != actor.Username {
		return model.Event{}, apperr.Authz("only the poster can modify this event")
	}
	return e, nil
}
