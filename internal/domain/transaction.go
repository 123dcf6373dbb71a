package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a transaction as money coming in or going out.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Valid reports whether k is one of the known transaction kinds.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// UnknownCode is stored when no transaction code could be extracted
// from the source message.
const UnknownCode = "UNKNOWN"

// Location is a best-effort position captured while a transaction was
// being confirmed. A missing location is a nil pointer on the record,
// never zero coordinates.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TransactionRecord is the central entity of the capture pipeline: one
// detected transaction, extracted from a single inbound message and
// possibly enriched by the user before reaching the host application.
//
// Code is the deduplication and removal key: the pending store holds at
// most one record per code. Sender and RawMessage are provenance, kept
// verbatim for audit. CategoryID, Notes and Location stay absent until
// a presentation session fills them in; they marshal away entirely when
// nil so an absent field round-trips as absent.
type TransactionRecord struct {
	Code       string          `json:"transactionCode"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	Kind       Kind            `json:"type"`
	Sender     string          `json:"sender,omitempty"`
	RawMessage string          `json:"rawMessage,omitempty"`
	CategoryID *string         `json:"categoryId,omitempty"`
	Notes      *string         `json:"notes,omitempty"`
	Location   *Location       `json:"location,omitempty"`

	// Timestamp is set when the record is persisted, not when the
	// source message arrived.
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Validate checks the structural invariants every record must hold
// before it is queued or forwarded.
func (r TransactionRecord) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("transaction record: empty code")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("transaction record %s: invalid kind %q", r.Code, r.Kind)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("transaction record %s: negative amount %s", r.Code, r.Amount)
	}
	return nil
}

// Equal reports structural equality of two records, comparing amounts
// numerically and optional fields by presence and value.
func (r TransactionRecord) Equal(other TransactionRecord) bool {
	if r.Code != other.Code || r.Title != other.Title || r.Kind != other.Kind ||
		r.Sender != other.Sender || r.RawMessage != other.RawMessage {
		return false
	}
	if !r.Amount.Equal(other.Amount) {
		return false
	}
	if !equalPtr(r.CategoryID, other.CategoryID) || !equalPtr(r.Notes, other.Notes) {
		return false
	}
	if (r.Location == nil) != (other.Location == nil) {
		return false
	}
	if r.Location != nil && *r.Location != *other.Location {
		return false
	}
	return r.Timestamp.Equal(other.Timestamp)
}

func equalPtr[T comparable](a, b *T) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// Outcome is the terminal result of a presentation session or a
// notification action, fed back into the dispatch coordinator.
type Outcome struct {
	Confirmed bool              `json:"confirmed"`
	Record    TransactionRecord `json:"record"`
}
