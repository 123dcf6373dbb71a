// Package inmemory holds the pending queue in process memory. It
// mirrors the bolt store's semantics exactly and is used by tests and
// by deployments where the host application is always live. Data is
// lost on restart.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"mpesa-capture/internal/domain"
	"mpesa-capture/internal/pending"
)

// Store is an in-memory implementation of pending.Store. It is safe
// for concurrent use; a single mutex serializes every read-modify-write
// on the collection.
type Store struct {
	mu      sync.Mutex
	records []domain.TransactionRecord
}

// NewStore creates an empty in-memory pending queue.
func NewStore() *Store {
	return &Store{}
}

// Append implements pending.Store.
func (s *Store) Append(ctx context.Context, rec domain.TransactionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("append pending: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = pending.Upsert(s.records, rec)
	return nil
}

// List implements pending.Store.
func (s *Store) List(ctx context.Context) ([]domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy out so callers cannot mutate the stored collection.
	out := make([]domain.TransactionRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// RemoveByCode implements pending.Store.
func (s *Store) RemoveByCode(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept, found := pending.RemoveCode(s.records, code)
	s.records = kept
	return found, nil
}

// Clear implements pending.Store.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

// Close implements pending.Store. There is nothing to release.
func (s *Store) Close() error {
	return nil
}

var _ pending.Store = (*Store)(nil)
