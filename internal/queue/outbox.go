package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/eventdesk/internal/model"
)

// Sender publishes one notification. *Publisher implements it.
type Sender interface {
	Publish(ctx context.Context, n Notification) error
}

// Outbox buffers notifications and publishes them from a single
// background goroutine, so a request never waits on the broker. When the
// buffer is full the notification is dropped and logged.
type Outbox struct {
	sender  Sender
	log     logrus.FieldLogger
	now     func() time.Time
	timeout time.Duration // per publish

	mu     sync.RWMutex
	closed bool
	ch     chan Notification
	done   chan struct{}
}

// NewOutbox starts the background sender. Close stops it.
func NewOutbox(s Sender, size int, log logrus.FieldLogger) *Outbox {
	if size <= 0 {
		size = 256
	}
	o := &Outbox{
		sender:  s,
		log:     log.WithField("component", "outbox"),
		now:     time.Now,
		timeout: 5 * time.Second,
		ch:      make(chan Notification, size),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) ResetRequested(_ context.Context, u model.User, code string, expiresAt time.Time) error {
	o.enqueue(resetRequested(u, code, expiresAt))
	return nil
}

func (o *Outbox) EventAssigned(_ context.Context, e model.Event) error {
	o.enqueue(eventAssigned(e))
	return nil
}

func (o *Outbox) EventStatusChanged(_ context.Context, e model.Event) error {
	o.enqueue(eventStatusChanged(e))
	return nil
}

func (o *Outbox) enqueue(n Notification) {
	n.OccurredAt = o.now().UTC()

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.log.WithField("type", n.Type).Warn("outbox closed, notification dropped")
		return
	}
	select {
	case o.ch <- n:
	default:
		o.log.WithField("type", n.Type).Error("outbox full, notification dropped")
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	for n := range o.ch {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		if err := o.sender.Publish(ctx, n); err != nil {
			o.log.WithError(err).WithField("type", n.Type).Error("notification delivery failed")
		}
		cancel()
	}
}

// Close stops accepting notifications and waits until the buffered ones
// have been handed to the sender or ctx ends.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
