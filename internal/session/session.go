// Package session implements the presentation session: a short-lived
// interactive surface through which the user confirms, edits, or
// dismisses one detected transaction. One Session type, parameterized
// by Options, covers every capture variant (with or without category
// selection, notes, location).
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
	"mpesa-capture/internal/location"
)

// State is the lifecycle state of a session.
type State string

const (
	StateOpened    State = "opened"
	StateEditing   State = "editing"
	StateConfirmed State = "confirmed"
	StateDismissed State = "dismissed"
	StateClosed    State = "closed"
)

var (
	// ErrTitleRequired rejects a confirm with an empty title. The
	// session stays open; no transaction is lost.
	ErrTitleRequired = errors.New("title is required")

	// ErrCategoryRequired rejects a confirm with no category selected.
	ErrCategoryRequired = errors.New("category is required")

	// ErrSessionClosed rejects any interaction after a terminal state.
	ErrSessionClosed = errors.New("session already closed")
)

// Display is the exclusive system-level surface a session draws on. It
// must be released exactly once on every exit path.
type Display interface {
	Release()
}

// OutcomeHandler receives the session's terminal outcome. The dispatch
// coordinator satisfies this.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, out domain.Outcome) error
}

// Options selects which optional capture features a session offers.
type Options struct {
	// Categories offered for selection. When empty the default MPESA
	// category is offered and preselected.
	Categories []domain.Category

	// EnableNotes allows free-text notes on the confirmed record.
	EnableNotes bool

	// Location enables best-effort location enrichment when non-nil.
	Location location.Provider

	// LocationTimeout bounds the fresh-fix phase; zero means the
	// package default.
	LocationTimeout time.Duration
}

// Edits is one round of user edits. Nil fields are left unchanged.
type Edits struct {
	Title      *string
	CategoryID *string
	Notes      *string
}

// Session drives one transaction through confirm/edit/dismiss. All
// methods are safe for concurrent use; the location goroutine races
// only to fill an optional field and never delays a transition.
type Session struct {
	ID uuid.UUID

	opts     Options
	display  Display
	outcomes OutcomeHandler
	log      zerolog.Logger

	mu         sync.Mutex
	state      State
	rec        domain.TransactionRecord
	title      string
	categoryID string
	notes      string

	cancelLocation context.CancelFunc
	released       bool
	// onClose runs once on the first Close; the manager uses it to
	// drop the session from its active set.
	onClose func()
}

// Open starts a session over rec and begins location capture in the
// background when enabled. The display is guaranteed to be released by
// the time the session reaches StateClosed, whatever path it takes.
func Open(rec domain.TransactionRecord, opts Options, display Display, outcomes OutcomeHandler, log zerolog.Logger) *Session {
	s := &Session{
		ID:         uuid.New(),
		opts:       opts,
		display:    display,
		outcomes:   outcomes,
		state:      StateOpened,
		rec:        rec,
		title:      rec.Title,
		categoryID: defaultCategoryID(opts.Categories),
	}
	s.log = log.With().Stringer("session_id", s.ID).Str("code", rec.Code).Logger()
	s.log.Info().Str("title", rec.Title).Msg("Presentation session opened")

	if opts.Location != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelLocation = cancel
		go location.Capture(ctx, opts.Location, opts.LocationTimeout, s.applyLocation, s.log)
	}
	return s
}

// defaultCategoryID mirrors the original preselection: the MPESA
// category when present, the first offered one otherwise, the built-in
// default when none were offered.
func defaultCategoryID(categories []domain.Category) string {
	if len(categories) == 0 {
		return domain.DefaultCategory().ID
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, "MPESA") {
			return c.ID
		}
	}
	return categories[0].ID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Location returns the position captured so far, nil when none. The
// surface uses this for its capture-status indicator.
func (s *Session) Location() *domain.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Location
}

// Edit stages one round of user edits.
func (s *Session) Edit(e Edits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal() {
		return ErrSessionClosed
	}
	if e.Title != nil {
		s.title = *e.Title
	}
	if e.CategoryID != nil {
		s.categoryID = *e.CategoryID
	}
	if e.Notes != nil && s.opts.EnableNotes {
		s.notes = *e.Notes
	}
	s.state = StateEditing
	return nil
}

// Confirm validates the edited fields and emits the confirmed record.
// Validation failure leaves the session open for another attempt.
// Whatever location has been captured by this moment is attached; a
// fix resolving later is discarded.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.terminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if strings.TrimSpace(s.title) == "" {
		s.mu.Unlock()
		return ErrTitleRequired
	}
	if s.categoryID == "" {
		s.mu.Unlock()
		return ErrCategoryRequired
	}

	rec := s.rec
	rec.Title = strings.TrimSpace(s.title)
	category := s.categoryID
	rec.CategoryID = &category
	if notes := strings.TrimSpace(s.notes); notes != "" {
		rec.Notes = &notes
	}
	s.state = StateConfirmed
	s.mu.Unlock()

	defer s.Close()

	s.log.Info().Str("title", rec.Title).Msg("Session confirmed")
	if err := s.outcomes.HandleOutcome(ctx, domain.Outcome{Confirmed: true, Record: rec}); err != nil {
		s.log.Error().Err(err).Msg("Failed to hand off confirmed transaction")
		return err
	}
	return nil
}

// Dismiss emits a dismissal for the original record and closes.
func (s *Session) Dismiss(ctx context.Context) error {
	s.mu.Lock()
	if s.terminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	rec := s.rec
	s.state = StateDismissed
	s.mu.Unlock()

	defer s.Close()

	s.log.Info().Msg("Session dismissed")
	if err := s.outcomes.HandleOutcome(ctx, domain.Outcome{Confirmed: false, Record: rec}); err != nil {
		s.log.Error().Err(err).Msg("Failed to hand off dismissal")
		return err
	}
	return nil
}

// Close releases the display and stops location capture. It is
// idempotent and safe to call from any state, including after abnormal
// termination of the surface that owned the session.
func (s *Session) Close() {
	s.mu.Lock()
	alreadyReleased := s.released
	s.released = true
	s.state = StateClosed
	cancel := s.cancelLocation
	s.cancelLocation = nil
	onClose := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !alreadyReleased && s.display != nil {
		s.display.Release()
		s.log.Debug().Msg("Display released")
	}
	if onClose != nil {
		onClose()
	}
}

func (s *Session) terminal() bool {
	switch s.state {
	case StateConfirmed, StateDismissed, StateClosed:
		return true
	}
	return false
}

func (s *Session) applyLocation(loc domain.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal() {
		s.log.Debug().Msg("Discarding location resolved after session end")
		return
	}
	s.rec.Location = &loc
}
