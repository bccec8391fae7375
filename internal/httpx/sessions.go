package httpx

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/presentation"
)

// Session is one buyer's checkout, kept in memory between requests.
type Session struct {
	ID       string
	Checkout *checkout.Orchestrator
	View     *presentation.Controller

	lastSeen time.Time
}

// Factory builds the orchestrator for a new session.
type Factory func(sessionID string) *checkout.Orchestrator

type Sessions struct {
	mu    sync.Mutex
	items map[string]*Session
	ttl   time.Duration
	build Factory
	now   func() time.Time
}

func NewSessions(ttl time.Duration, build Factory) *Sessions {
	return &Sessions{
		items: map[string]*Session{},
		ttl:   ttl,
		build: build,
		now:   time.Now,
	}
}

// Get returns the session for id, creating it when absent. created is true
// for a new session.
func (s *Sessions) Get(id string) (sess *Session, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.items[id]; ok {
		sess.lastSeen = s.now()
		return sess, false
	}
	o := s.build(id)
	sess = &Session{
		ID:       id,
		Checkout: o,
		View:     presentation.NewController(o, nil),
		lastSeen: s.now(),
	}
	s.items[id] = sess
	return sess, true
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep drops sessions idle for longer than the ttl. A session whose
// attempt is waiting on the order service or a payment provider is kept
// until it settles, and so is one that was used while being swept.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*Session
	for _, sess := range s.items {
		if !sess.lastSeen.After(cutoff) {
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, sess := range expired {
		// Cancel decides under the orchestrator's own lock.
		snap, err := sess.Checkout.Cancel()
		if errors.Is(err, checkout.ErrNotCancellable) || snap.Intent.Status.InFlight() {
			continue
		}
		if err != nil {
			log.WithError(err).WithField("session", sess.ID).Warn("cancel expired session")
			continue
		}
		s.mu.Lock()
		if cur, ok := s.items[sess.ID]; ok && cur == sess && !sess.lastSeen.After(cutoff) {
			delete(s.items, sess.ID)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Run sweeps every interval until ctx ends.
func (s *Sessions) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				log.WithField("expired", n).Debug("checkout sessions swept")
			}
		}
	}
}
