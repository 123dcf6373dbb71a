package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
)

// DisplayProvider acquires the exclusive presentation surface. Acquire
// fails when the surface is unavailable, typically because the display
// permission was never granted; presentation is then skipped while the
// record stays safely queued.
type DisplayProvider interface {
	Acquire(ctx context.Context) (Display, error)
}

// Manager opens sessions on demand. It satisfies both the dispatch
// coordinator's Presenter and the host bridge's SessionOpener, so a
// capture triggered by an inbound message and one requested by the
// host application run through the same path.
type Manager struct {
	opts     Options
	displays DisplayProvider
	outcomes OutcomeHandler
	log      zerolog.Logger

	mu     sync.Mutex
	active map[string]*Session
}

// NewManager builds a session manager with the given default options.
func NewManager(opts Options, displays DisplayProvider, outcomes OutcomeHandler, log zerolog.Logger) *Manager {
	return &Manager{
		opts:     opts,
		displays: displays,
		outcomes: outcomes,
		log:      log,
		active:   make(map[string]*Session),
	}
}

// Open starts a session for rec, overriding the default category list
// when the caller supplied one. Implements host.SessionOpener.
func (m *Manager) Open(ctx context.Context, rec domain.TransactionRecord, categories []domain.Category) error {
	display, err := m.displays.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire display for %s: %w", rec.Code, err)
	}

	opts := m.opts
	if len(categories) > 0 {
		opts.Categories = categories
	}

	s := Open(rec, opts, display, m.outcomes, m.log)
	s.onClose = func() { m.evict(rec.Code, s) }

	m.mu.Lock()
	prev := m.active[rec.Code]
	m.active[rec.Code] = s
	m.mu.Unlock()

	if prev != nil {
		// One surface per transaction: a re-triggered capture replaces
		// the stale session and frees its display.
		prev.Close()
	}
	return nil
}

// evict drops a finished session, unless a replacement already took
// its slot.
func (m *Manager) evict(code string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.active[code]; ok && cur == s {
		delete(m.active, code)
	}
}

// Present implements dispatch.Presenter.
func (m *Manager) Present(ctx context.Context, rec domain.TransactionRecord) error {
	return m.Open(ctx, rec, nil)
}

// Get returns the active session for a transaction code, if any.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[code]
	return s, ok
}

// CloseAll closes every active session, releasing their displays.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.active = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
