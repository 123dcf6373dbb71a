// Package pending defines the durable pending-transaction queue: an
// ordered collection of transaction records keyed by code, persisted on
// device so detected transactions survive until the host application
// collects them.
package pending

import (
	"context"

	"mpesa-capture/internal/domain"
)

// Store is the durable pending queue. Implementations must serialize
// all mutating operations on the same underlying key: three independent
// triggers (inbound message, session save, notification action) mutate
// the queue concurrently, and a torn read-modify-write would silently
// drop one of them.
//
// The collection is logically keyed by record code even though it is
// persisted in insertion order: Append with an already-present code
// overwrites the existing entry in place rather than adding a second
// one.
type Store interface {
	// Append inserts the record, overwriting in place any entry with
	// the same code. A zero Timestamp is stamped at persist time.
	Append(ctx context.Context, rec domain.TransactionRecord) error

	// List returns all stored records in insertion order. Malformed
	// persisted entries are skipped, not fatal.
	List(ctx context.Context) ([]domain.TransactionRecord, error)

	// RemoveByCode removes every record whose code equals code and
	// reports whether anything was removed.
	RemoveByCode(ctx context.Context, code string) (bool, error)

	// Clear replaces the collection with empty.
	Clear(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
