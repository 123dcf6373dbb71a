package session

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
)

type fakeDisplayProvider struct {
	err      error
	acquired []*fakeDisplay
}

func (p *fakeDisplayProvider) Acquire(ctx context.Context) (Display, error) {
	if p.err != nil {
		return nil, p.err
	}
	d := &fakeDisplay{}
	p.acquired = append(p.acquired, d)
	return d, nil
}

func TestManagerOpenAndConfirm(t *testing.T) {
	displays := &fakeDisplayProvider{}
	outcomes := &outcomeRecorder{}
	m := NewManager(Options{}, displays, outcomes, zerolog.Nop())

	if err := m.Present(context.Background(), testRecord()); err != nil {
		t.Fatalf("Present: %v", err)
	}

	s, ok := m.Get("QCX4T7R9K1")
	if !ok {
		t.Fatal("expected an active session")
	}
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !outcomes.last(t).Confirmed {
		t.Error("expected a confirmed outcome")
	}
}

func TestManagerAcquireFailure(t *testing.T) {
	permErr := errors.New("overlay permission not granted")
	m := NewManager(Options{}, &fakeDisplayProvider{err: permErr}, &outcomeRecorder{}, zerolog.Nop())

	err := m.Present(context.Background(), testRecord())
	if !errors.Is(err, permErr) {
		t.Fatalf("Present = %v, want wrapped %v", err, permErr)
	}
	if _, ok := m.Get("QCX4T7R9K1"); ok {
		t.Error("no session should be tracked after a failed acquire")
	}
}

func TestManagerReplacesStaleSession(t *testing.T) {
	displays := &fakeDisplayProvider{}
	m := NewManager(Options{}, displays, &outcomeRecorder{}, zerolog.Nop())

	if err := m.Present(context.Background(), testRecord()); err != nil {
		t.Fatalf("first Present: %v", err)
	}
	first, _ := m.Get("QCX4T7R9K1")

	if err := m.Present(context.Background(), testRecord()); err != nil {
		t.Fatalf("second Present: %v", err)
	}
	second, _ := m.Get("QCX4T7R9K1")

	if first == second {
		t.Fatal("expected a fresh session for the re-triggered capture")
	}
	if first.State() != StateClosed {
		t.Errorf("stale session state = %q, want %q", first.State(), StateClosed)
	}
	if displays.acquired[0].releaseCount() != 1 {
		t.Error("stale session's display was not released")
	}
	if displays.acquired[1].releaseCount() != 0 {
		t.Error("fresh session's display must stay held")
	}
}

func TestManagerCategoryOverride(t *testing.T) {
	displays := &fakeDisplayProvider{}
	outcomes := &outcomeRecorder{}
	defaults := Options{Categories: []domain.Category{{ID: "general", Name: "General"}}}
	m := NewManager(defaults, displays, outcomes, zerolog.Nop())

	override := []domain.Category{{ID: "rent", Name: "Rent"}, {ID: "food", Name: "Food"}}
	if err := m.Open(context.Background(), testRecord(), override); err != nil {
		t.Fatalf("Open: %v", err)
	}

	s, _ := m.Get("QCX4T7R9K1")
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	out := outcomes.last(t)
	if out.Record.CategoryID == nil || *out.Record.CategoryID != "rent" {
		t.Errorf("CategoryID = %v, want the first override category", out.Record.CategoryID)
	}
}

func TestManagerCloseAll(t *testing.T) {
	displays := &fakeDisplayProvider{}
	m := NewManager(Options{}, displays, &outcomeRecorder{}, zerolog.Nop())

	first := testRecord()
	second := testRecord()
	second.Code = "RBY8N2M4P6"
	if err := m.Present(context.Background(), first); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if err := m.Present(context.Background(), second); err != nil {
		t.Fatalf("Present: %v", err)
	}

	m.CloseAll()

	for _, d := range displays.acquired {
		if d.releaseCount() != 1 {
			t.Errorf("display released %d times, want 1", d.releaseCount())
		}
	}
	if _, ok := m.Get("QCX4T7R9K1"); ok {
		t.Error("expected no active sessions after CloseAll")
	}
}

func TestManagerPrunesFinishedSessions(t *testing.T) {
	displays := &fakeDisplayProvider{}
	m := NewManager(Options{}, displays, &outcomeRecorder{}, zerolog.Nop())

	if err := m.Present(context.Background(), testRecord()); err != nil {
		t.Fatalf("Present: %v", err)
	}
	s, ok := m.Get("QCX4T7R9K1")
	if !ok {
		t.Fatal("expected an active session")
	}
	if err := s.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, ok := m.Get("QCX4T7R9K1"); ok {
		t.Error("confirmed session must leave the active set")
	}

	if err := m.Present(context.Background(), testRecord()); err != nil {
		t.Fatalf("second Present: %v", err)
	}
	s, _ = m.Get("QCX4T7R9K1")
	s.Close()
	if _, ok := m.Get("QCX4T7R9K1"); ok {
		t.Error("closed session must leave the active set")
	}
}
