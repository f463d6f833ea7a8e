// Package connectivity tracks whether the remote store is reachable and
// notifies subscribers on online/offline transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/medmentor/backend/internal/platform/logger"
)

type Signal interface {
	Online() bool
	// Subscribe registers fn for transitions. fn runs on the goroutine that
	// observed the change and must not block for long.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// broadcaster holds the current state and fans transitions out.
type broadcaster struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe(fn func(online bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(bool))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// set stores the state and reports whether it changed. Subscribers are called
// outside the lock.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	fns := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

// ── Manual ──────────────────────────────────────────────

// Manual is flipped by hand, for tests and embedding callers that track
// connectivity themselves.
type Manual struct {
	broadcaster
}

func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

func (m *Manual) Set(online bool) {
	m.set(online)
}

// ── Monitor ─────────────────────────────────────────────

// Monitor derives connectivity from periodic pings of the remote store.
type Monitor struct {
	broadcaster
	pinger  Pinger
	timeout time.Duration
	log     *logger.Logger
}

func NewMonitor(p Pinger, timeout time.Duration, initial bool, log *logger.Logger) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	m := &Monitor{pinger: p, timeout: timeout, log: log.With("component", "connectivity")}
	m.online = initial
	return m
}

// Check pings once and publishes the result.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx)
	online := err == nil
	if m.set(online) {
		if online {
			m.log.Info("remote reachable again")
		} else {
			m.log.Warn("remote unreachable", "error", err)
		}
	}
	return online
}

// MarkOffline records a failure seen elsewhere (e.g. a timed-out write)
// without waiting for the next probe.
func (m *Monitor) MarkOffline() {
	if m.set(false) {
		m.log.Warn("remote marked offline after failed request")
	}
}
