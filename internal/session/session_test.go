package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mpesa-capture/internal/domain"
)

type fakeDisplay struct {
	mu       sync.Mutex
	releases int
}

func (f *fakeDisplay) Release() {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
}

func (f *fakeDisplay) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
}

func (r *outcomeRecorder) HandleOutcome(ctx context.Context, out domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
	return nil
}

func (r *outcomeRecorder) last(t *testing.T) domain.Outcome {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		t.Fatal("no outcome recorded")
	}
	return r.outcomes[len(r.outcomes)-1]
}

type blockingProvider struct {
	cached *domain.Location
	wait   time.Duration
	fresh  domain.Location
}

func (p *blockingProvider) LastKnown() (domain.Location, bool) {
	if p.cached == nil {
		return domain.Location{}, false
	}
	return *p.cached, true
}

func (p *blockingProvider) Acquire(ctx context.Context) (domain.Location, error) {
	select {
	case <-time.After(p.wait):
		return p.fresh, nil
	case <-ctx.Done():
		return domain.Location{}, ctx.Err()
	}
}

func testRecord() domain.TransactionRecord {
	return domain.TransactionRecord{
		Code:   "QCX4T7R9K1",
		Title:  "Received from JANE DOE",
		Amount: decimal.RequireFromString("1500.00"),
		Kind:   domain.KindIncome,
		Sender: "MPESA",
	}
}

func str(s string) *string { return &s }

func TestConfirmWithEdits(t *testing.T) {
	display := &fakeDisplay{}
	outcomes := &outcomeRecorder{}
	s := Open(testRecord(), Options{EnableNotes: true}, display, outcomes, zerolog.Nop())

	if s.State() != StateOpened {
		t.Errorf("state = %q, want %q", s.State(), StateOpened)
	}

	if err := s.Edit(Edits{Title: str("January rent"), Notes: str("from Jane")}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if s.State() != StateEditing {
		t.Errorf("state = %q, want %q", s.State(), StateEditing)
	}

	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	out := outcomes.last(t)
	if !out.Confirmed {
		t.Error("expected a confirmed outcome")
	}
	if out.Record.Title != "January rent" {
		t.Errorf("Title = %q", out.Record.Title)
	}
	if out.Record.Notes == nil || *out.Record.Notes != "from Jane" {
		t.Errorf("Notes = %v", out.Record.Notes)
	}
	if out.Record.CategoryID == nil || *out.Record.CategoryID != domain.DefaultCategory().ID {
		t.Errorf("expected the default category preselected, got %v", out.Record.CategoryID)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %q, want %q", s.State(), StateClosed)
	}
	if display.releaseCount() != 1 {
		t.Errorf("display released %d times, want 1", display.releaseCount())
	}
}

func TestEmptyTitleKeepsSessionOpen(t *testing.T) {
	display := &fakeDisplay{}
	outcomes := &outcomeRecorder{}
	s := Open(testRecord(), Options{}, display, outcomes, zerolog.Nop())

	if err := s.Edit(Edits{Title: str("   ")}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := s.Confirm(context.Background()); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("Confirm = %v, want ErrTitleRequired", err)
	}
	if s.State() == StateClosed {
		t.Fatal("expected session to stay open after rejected confirm")
	}
	if display.releaseCount() != 0 {
		t.Error("display must not be released while the session is open")
	}

	// The user fixes the title and the confirm goes through.
	if err := s.Edit(Edits{Title: str("Rent")}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm after fix: %v", err)
	}
	if len(outcomes.outcomes) != 1 {
		t.Errorf("expected exactly one outcome, got %d", len(outcomes.outcomes))
	}
}

func TestDismiss(t *testing.T) {
	display := &fakeDisplay{}
	outcomes := &outcomeRecorder{}
	s := Open(testRecord(), Options{}, display, outcomes, zerolog.Nop())

	if err := s.Dismiss(context.Background()); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	out := outcomes.last(t)
	if out.Confirmed {
		t.Error("expected a dismissal outcome")
	}
	if out.Record.Code != "QCX4T7R9K1" {
		t.Errorf("Code = %q", out.Record.Code)
	}
	if display.releaseCount() != 1 {
		t.Errorf("display released %d times, want 1", display.releaseCount())
	}

	if err := s.Confirm(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Confirm after dismiss = %v, want ErrSessionClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	display := &fakeDisplay{}
	s := Open(testRecord(), Options{}, display, &outcomeRecorder{}, zerolog.Nop())

	s.Close()
	s.Close()

	if display.releaseCount() != 1 {
		t.Errorf("display released %d times, want 1", display.releaseCount())
	}
	if s.State() != StateClosed {
		t.Errorf("state = %q, want %q", s.State(), StateClosed)
	}
}

func TestLocationAttachedWhenAvailable(t *testing.T) {
	provider := &blockingProvider{cached: &domain.Location{Latitude: -1.29, Longitude: 36.82}}
	outcomes := &outcomeRecorder{}
	s := Open(testRecord(), Options{Location: provider}, &fakeDisplay{}, outcomes, zerolog.Nop())

	deadline := time.Now().Add(time.Second)
	for s.Location() == nil {
		if time.Now().After(deadline) {
			t.Fatal("location was never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	out := outcomes.last(t)
	if out.Record.Location == nil || out.Record.Location.Latitude != -1.29 {
		t.Errorf("expected location on confirmed record, got %+v", out.Record.Location)
	}
}

func TestSlowLocationNeverBlocksConfirm(t *testing.T) {
	provider := &blockingProvider{wait: 5 * time.Second, fresh: domain.Location{Latitude: 1}}
	outcomes := &outcomeRecorder{}
	s := Open(testRecord(), Options{Location: provider}, &fakeDisplay{}, outcomes, zerolog.Nop())

	start := time.Now()
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("confirm was blocked by the location request")
	}
	if out := outcomes.last(t); out.Record.Location != nil {
		t.Errorf("expected no location on the record, got %+v", out.Record.Location)
	}
}

func TestLateLocationFixDiscarded(t *testing.T) {
	s := Open(testRecord(), Options{}, &fakeDisplay{}, &outcomeRecorder{}, zerolog.Nop())

	if err := s.Dismiss(context.Background()); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	s.applyLocation(domain.Location{Latitude: 9, Longitude: 9})
	if s.Location() != nil {
		t.Error("expected a fix resolving after close to be discarded")
	}
}

func TestNotesDisabledIgnored(t *testing.T) {
	outcomes := &outcomeRecorder{}
	s := Open(testRecord(), Options{EnableNotes: false}, &fakeDisplay{}, outcomes, zerolog.Nop())

	if err := s.Edit(Edits{Notes: str("should vanish")}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if out := outcomes.last(t); out.Record.Notes != nil {
		t.Errorf("expected notes to stay absent when disabled, got %q", *out.Record.Notes)
	}
}
