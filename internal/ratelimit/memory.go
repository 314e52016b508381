package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// window is the attempt log of one key.
type window struct {
	mu     sync.Mutex
	events []time.Time
}

type shard struct {
	mu   sync.Mutex
	keys map[string]*window
}

// Memory is a process-local sliding-window limiter. Keys are spread over
// shards so unrelated clients never wait on the same lock; the per-key
// mutex makes check-and-record atomic.
type Memory struct {
	policy Policy
	now    func() time.Time
	shards [shardCount]shard

	sweepEvery int
	calls      int
	callsMu    sync.Mutex
}

// NewMemory constructs a Memory limiter. now may be nil.
func NewMemory(p Policy, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	m := &Memory{policy: p.normalized(), now: now, sweepEvery: 1024}
	for i := range m.shards {
		m.shards[i].keys = make(map[string]*window)
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%shardCount]
}

// Allow reports whether an attempt for key at the current time is permitted
// and records it when it is.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	sh := m.shardFor(key)
	sh.mu.Lock()
	w, ok := sh.keys[key]
	if !ok {
		w = &window{events: make([]time.Time, 0, m.policy.Limit)}
		sh.keys[key] = w
	}
	// Lock the window before releasing the shard so Sweep cannot drop it
	// between lookup and record.
	w.mu.Lock()
	sh.mu.Unlock()
	d := w.allow(now, m.policy)
	w.mu.Unlock()

	m.maybeSweep(now)
	return d, nil
}

// allow must be called with w.mu held.
func (w *window) allow(now time.Time, p Policy) Decision {
	cut := now.Add(-p.Window)
	dst := w.events[:0]
	for _, t := range w.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	w.events = dst

	if len(w.events) >= p.Limit {
		retry := w.events[0].Add(p.Window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Limit: p.Limit, Remaining: 0, RetryAfter: retry}
	}
	w.events = append(w.events, now)
	return Decision{Allowed: true, Limit: p.Limit, Remaining: p.Limit - len(w.events)}
}

// maybeSweep drops idle keys every sweepEvery calls so the map does not
// grow with every address ever seen.
func (m *Memory) maybeSweep(now time.Time) {
	m.callsMu.Lock()
	m.calls++
	run := m.calls%m.sweepEvery == 0
	m.callsMu.Unlock()
	if run {
		m.Sweep(now)
	}
}

// Sweep removes keys whose newest attempt is older than the window.
func (m *Memory) Sweep(now time.Time) {
	cut := now.Add(-m.policy.Window)
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for k, w := range sh.keys {
			w.mu.Lock()
			idle := len(w.events) == 0 || !w.events[len(w.events)-1].After(cut)
			w.mu.Unlock()
			if idle {
				delete(sh.keys, k)
			}
		}
		sh.mu.Unlock()
	}
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		n += len(sh.keys)
		sh.mu.Unlock()
	}
	return n
}
