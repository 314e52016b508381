package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/eventdesk/internal/model"
	"github.com/iliyamo/eventdesk/internal/store"
)

// memStore is an in-memory store.Store for service tests. Transactions
// are serialized and roll back by restoring a snapshot.
type memStore struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	d    *memData
	inTx bool
}

type ratingKey struct{ rater, target uint64 }

type memData struct {
	users   map[uint64]model.User
	resets  map[uint64]model.ResetRequest
	events  map[uint64]model.Event
	ratings map[model.TargetKind]map[ratingKey]model.Rating
	seq     uint64
}

func newMemStore() *memStore {
	return &memStore{
		mu:   &sync.Mutex{},
		txMu: &sync.Mutex{},
		d: &memData{
			users:  map[uint64]model.User{},
			resets: map[uint64]model.ResetRequest{},
			events: map[uint64]model.Event{},
			ratings: map[model.TargetKind]map[ratingKey]model.Rating{
				model.TargetUser:  {},
				model.TargetEvent: {},
			},
		},
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		users:   make(map[uint64]model.User, len(d.users)),
		resets:  make(map[uint64]model.ResetRequest, len(d.resets)),
		events:  make(map[uint64]model.Event, len(d.events)),
		ratings: map[model.TargetKind]map[ratingKey]model.Rating{},
		seq:     d.seq,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.resets {
		c.resets[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for kind, m := range d.ratings {
		cm := make(map[ratingKey]model.Rating, len(m))
		for k, v := range m {
			cm[k] = v
		}
		c.ratings[kind] = cm
	}
	return c
}

func (s *memStore) Users() store.UserRepository     { return memUsers{s} }
func (s *memStore) Resets() store.ResetRepository   { return memResets{s} }
func (s *memStore) Events() store.EventRepository   { return memEvents{s} }
func (s *memStore) Ratings() store.RatingRepository { return memRatings{s} }

func (s *memStore) WithinTx(_ context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.d.clone()
	s.mu.Unlock()

	if err := fn(&memStore{mu: s.mu, txMu: s.txMu, d: s.d, inTx: true}); err != nil {
		s.mu.Lock()
		*s.d = *snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) userByName(name string) (model.User, bool) {
	for _, u := range s.d.users {
		if u.Username == name {
			return u, true
		}
	}
	return model.User{}, false
}

func summary(u model.User) model.UserSummary {
	return model.UserSummary{ID: u.ID, Username: u.Username, Name: u.Name}
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u model.User) (uint64, error) {
	defer r.s.lock()()
	for _, o := range r.s.d.users {
		if o.Username == u.Username || o.Email == normalizeEmail(u.Email) {
			return 0, store.ErrDuplicate
		}
	}
	r.s.d.seq++
	u.ID = r.s.d.seq
	u.Email = normalizeEmail(u.Email)
	u.AverageRating, u.TotalRatings = nil, 0
	r.s.d.users[u.ID] = u
	return u.ID, nil
}

func (r memUsers) ByID(_ context.Context, id uint64) (model.User, error) {
	defer r.s.lock()()
	u, ok := r.s.d.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r memUsers) ByUsername(_ context.Context, username string) (model.User, error) {
	defer r.s.lock()()
	u, ok := r.s.userByName(username)
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r memUsers) ByEmail(_ context.Context, email string) (model.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.d.users {
		if u.Email == normalizeEmail(email) {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (r memUsers) UsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := r.ByUsername(ctx, username)
	return err == nil, nil
}

func (r memUsers) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := r.ByEmail(ctx, email)
	return err == nil, nil
}

func (r memUsers) TouchLogin(_ context.Context, id uint64, at time.Time) error {
	defer r.s.lock()()
	u, ok := r.s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLoginAt = &at
	r.s.d.users[id] = u
	return nil
}

func (r memUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	defer r.s.lock()()
	u, ok := r.s.d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	r.s.d.users[id] = u
	return nil
}

type memResets struct{ s *memStore }

func (r memResets) Upsert(_ context.Context, req model.ResetRequest) error {
	defer r.s.lock()()
	r.s.d.resets[req.UserID] = req
	return nil
}

func (r memResets) LockByUser(_ context.Context, userID uint64) (model.ResetRequest, error) {
	defer r.s.lock()()
	req, ok := r.s.d.resets[userID]
	if !ok {
		return model.ResetRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (r memResets) Delete(_ context.Context, userID uint64) error {
	defer r.s.lock()()
	delete(r.s.d.resets, userID)
	return nil
}

type memEvents struct{ s *memStore }

func (r memEvents) Create(_ context.Context, e model.Event) (uint64, error) {
	defer r.s.lock()()
	r.s.d.seq++
	e.ID = r.s.d.seq
	e.Status = model.EventPosted
	r.s.d.events[e.ID] = e
	return e.ID, nil
}

func (r memEvents) ByID(_ context.Context, id uint64) (model.Event, error) {
	defer r.s.lock()()
	e, ok := r.s.d.events[id]
	if !ok {
		return model.Event{}, store.ErrNotFound
	}
	return e, nil
}

func (r memEvents) detail(e model.Event) model.EventDetail {
	p, _ := r.s.userByName(e.PostedBy)
	a, _ := r.s.userByName(e.AssignedTo)
	return model.EventDetail{Event: e, Poster: summary(p), Assignee: summary(a)}
}

func (r memEvents) Detail(_ context.Context, id uint64) (model.EventDetail, error) {
	defer r.s.lock()()
	e, ok := r.s.d.events[id]
	if !ok {
		return model.EventDetail{}, store.ErrNotFound
	}
	return r.detail(e), nil
}

func (r memEvents) List(_ context.Context, f model.EventFilter) ([]model.EventDetail, error) {
	defer r.s.lock()()
	out := make([]model.EventDetail, 0)
	for _, e := range r.s.d.events {
		if f.PostedBy != "" && e.PostedBy != f.PostedBy ||
			f.AssignedTo != "" && e.AssignedTo != f.AssignedTo ||
			f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, r.detail(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r memEvents) UpdateDetails(_ context.Context, id uint64, name, description string) error {
	defer r.s.lock()()
	e, ok := r.s.d.events[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Name, e.Description = name, description
	r.s.d.events[id] = e
	return nil
}

func (r memEvents) Transition(_ context.Context, id uint64, status model.EventStatus, reason *string) (bool, error) {
	defer r.s.lock()()
	e, ok := r.s.d.events[id]
	if !ok || e.Status != model.EventPosted {
		return false, nil
	}
	e.Status, e.RejectReason = status, reason
	r.s.d.events[id] = e
	return true, nil
}

func (r memEvents) Delete(_ context.Context, id uint64) error {
	defer r.s.lock()()
	if _, ok := r.s.d.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.d.events, id)
	return nil
}

type memRatings struct{ s *memStore }

func (r memRatings) exists(kind model.TargetKind, id uint64) bool {
	if kind == model.TargetUser {
		_, ok := r.s.d.users[id]
		return ok
	}
	_, ok := r.s.d.events[id]
	return ok
}

func (r memRatings) LockTarget(_ context.Context, kind model.TargetKind, targetID uint64) error {
	defer r.s.lock()()
	if !r.exists(kind, targetID) {
		return store.ErrNotFound
	}
	return nil
}

func (r memRatings) TargetExists(_ context.Context, kind model.TargetKind, targetID uint64) (bool, error) {
	defer r.s.lock()()
	return r.exists(kind, targetID), nil
}

func (r memRatings) Upsert(_ context.Context, rt model.Rating) error {
	defer r.s.lock()()
	k := ratingKey{rt.RaterID, rt.TargetID}
	m := r.s.d.ratings[rt.Kind]
	if old, ok := m[k]; ok {
		rt.ID, rt.CreatedAt = old.ID, old.CreatedAt
	} else {
		r.s.d.seq++
		rt.ID = r.s.d.seq
	}
	m[k] = rt
	return nil
}

func (r memRatings) withRater(rt model.Rating) model.Rating {
	rt.Rater = summary(r.s.d.users[rt.RaterID])
	return rt
}

func (r memRatings) Get(_ context.Context, kind model.TargetKind, raterID, targetID uint64) (model.Rating, error) {
	defer r.s.lock()()
	rt, ok := r.s.d.ratings[kind][ratingKey{raterID, targetID}]
	if !ok {
		return model.Rating{}, store.ErrNotFound
	}
	return r.withRater(rt), nil
}

func (r memRatings) Aggregate(_ context.Context, kind model.TargetKind, targetID uint64) (model.Aggregate, error) {
	defer r.s.lock()()
	var sum, n int
	for k, rt := range r.s.d.ratings[kind] {
		if k.target == targetID {
			sum += int(rt.Score)
			n++
		}
	}
	agg := model.Aggregate{Count: uint32(n)}
	if n > 0 {
		avg := float64(sum) / float64(n)
		agg.Average = &avg
	}
	return agg, nil
}

func (r memRatings) SetAggregate(_ context.Context, kind model.TargetKind, targetID uint64, agg model.Aggregate) error {
	defer r.s.lock()()
	if kind == model.TargetUser {
		u := r.s.d.users[targetID]
		u.AverageRating, u.TotalRatings = agg.Average, agg.Count
		r.s.d.users[targetID] = u
		return nil
	}
	e := r.s.d.events[targetID]
	e.AverageRating, e.TotalRatings = agg.Average, agg.Count
	r.s.d.events[targetID] = e
	return nil
}

func (r memRatings) ListFor(_ context.Context, kind model.TargetKind, targetID uint64) ([]model.Rating, error) {
	defer r.s.lock()()
	out := make([]model.Rating, 0)
	for k, rt := range r.s.d.ratings[kind] {
		if k.target == targetID {
			out = append(out, r.withRater(rt))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r memRatings) DeleteForTarget(_ context.Context, kind model.TargetKind, targetID uint64) error {
	defer r.s.lock()()
	for k := range r.s.d.ratings[kind] {
		if k.target == targetID {
			delete(r.s.d.ratings[kind], k)
		}
	}
	return nil
}
