package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
	"mpesa-capture/internal/pending"
)

// Inbound method names a host application may invoke.
const (
	MethodShowTransactionOverlay   = "showTransactionOverlay"
	MethodGetPendingTransactions   = "getPendingTransactions"
	MethodClearPendingTransactions = "clearPendingTransactions"
	MethodRemovePendingTransaction = "removePendingTransaction"
)

var (
	// ErrCodeRequired signals a removal call missing its transaction code.
	ErrCodeRequired = errors.New("transactionCode is required")

	// ErrUnknownMethod signals an invocation of an unregistered method.
	ErrUnknownMethod = errors.New("unknown method")
)

// SessionOpener opens a presentation session for one record. The call
// must return promptly; the session runs on its own.
type SessionOpener interface {
	Open(ctx context.Context, rec domain.TransactionRecord, categories []domain.Category) error
}

// Bridge routes host-invoked operations by method name, the way the
// original in-process message channel does.
type Bridge struct {
	store  pending.Store
	opener SessionOpener
	log    zerolog.Logger
}

// NewBridge builds a bridge over the pending store. opener may be nil
// when overlay presentation is unavailable.
func NewBridge(store pending.Store, opener SessionOpener, log zerolog.Logger) *Bridge {
	return &Bridge{store: store, opener: opener, log: log}
}

type showOverlayArgs struct {
	domain.TransactionRecord
	Categories []domain.Category `json:"categories,omitempty"`
}

type removeArgs struct {
	Code string `json:"transactionCode"`
}

// Handle executes one host-invoked operation. args is the raw method
// payload; the result is the method's return value, nil for void
// methods.
func (b *Bridge) Handle(ctx context.Context, method string, args json.RawMessage) (any, error) {
	switch method {
	case MethodShowTransactionOverlay:
		var in showOverlayArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("%s: decode args: %w", method, err)
		}
		if b.opener == nil {
			b.log.Warn().Str("code", in.Code).Msg("Overlay requested but no session opener configured")
			return nil, nil
		}
		// Returns immediately; the session drives itself to a terminal
		// state and reports through the coordinator.
		go func() {
			if err := b.opener.Open(context.WithoutCancel(ctx), in.TransactionRecord, in.Categories); err != nil {
				b.log.Warn().Err(err).Str("code", in.Code).Msg("Failed to open overlay session")
			}
		}()
		return nil, nil

	case MethodGetPendingTransactions:
		records, err := b.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		b.log.Debug().Int("count", len(records)).Msg("Returning pending transactions to host")
		return records, nil

	case MethodClearPendingTransactions:
		if err := b.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		b.log.Info().Msg("Pending transactions cleared by host")
		return nil, nil

	case MethodRemovePendingTransaction:
		var in removeArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("%s: decode args: %w", method, err)
		}
		if in.Code == "" {
			return nil, ErrCodeRequired
		}
		found, err := b.store.RemoveByCode(ctx, in.Code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		return map[string]bool{"removed": found}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
}
