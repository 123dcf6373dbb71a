// Package dispatch routes captured transactions between the live host
// application channel and the durable pending queue. It owns the
// per-transaction delivery state machine and guarantees at-most-one
// delivery per transaction code.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
	"mpesa-capture/internal/parser"
	"mpesa-capture/internal/pending"
)

// Outbound method names on the host channel.
const (
	MethodSMSReceived          = "onMpesaSmsReceived"
	MethodOpenTransactionForm  = "openTransactionForm"
	MethodTransactionConfirmed = "onTransactionConfirmed"
	MethodTransactionDismissed = "onTransactionDismissed"
)

// ErrNotAttached is returned by a HostChannel whose host application is
// not currently connected.
var ErrNotAttached = errors.New("host channel not attached")

// HostChannel is the explicit handle to the host application's live
// in-process channel. Availability is checked at the moment of use;
// callers must treat a failed Invoke as "unavailable now" and fall back
// to the durable path, never as fatal.
type HostChannel interface {
	// Attached reports whether a host application is connected right now.
	Attached() bool

	// Invoke sends one named notification to the host application.
	Invoke(ctx context.Context, method string, payload any) error
}

// Presenter opens a user-facing capture surface (overlay session or
// actionable notification) for a queued record. A nil Presenter on the
// Coordinator disables user-facing capture entirely.
type Presenter interface {
	Present(ctx context.Context, rec domain.TransactionRecord) error
}

// State is the delivery state of one transaction code.
type State string

const (
	StateParsed         State = "parsed"
	StateLiveDelivered  State = "live_delivered"
	StateQueued         State = "queued"
	StateSessionPending State = "session_pending"
	StateReconciled     State = "reconciled"
	StateDropped        State = "dropped"
)

// SMSPayload is the raw-message notification forwarded to a live host.
type SMSPayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// DismissPayload notifies the host that a transaction was dismissed.
type DismissPayload struct {
	Code string `json:"transactionCode"`
}

// Coordinator is the dispatch state machine. All dependencies are
// explicit construction-time handles; nothing is looked up globally.
type Coordinator struct {
	channel   HostChannel
	store     pending.Store
	presenter Presenter
	log       zerolog.Logger

	mu       sync.Mutex
	states   map[string]State
	terminal []string
	// terminalLimit bounds how many reconciled/dropped codes stay in
	// the registry for duplicate suppression; the oldest are evicted.
	terminalLimit int
}

// maxTerminalHistory is the default number of terminal codes retained.
const maxTerminalHistory = 1024

// NewCoordinator builds a coordinator over the given channel handle and
// durable store. presenter may be nil to disable user-facing capture.
func NewCoordinator(channel HostChannel, store pending.Store, presenter Presenter, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		channel:       channel,
		store:         store,
		presenter:     presenter,
		log:           log,
		states:        make(map[string]State),
		terminalLimit: maxTerminalHistory,
	}
}

// StateOf returns the delivery state recorded for a transaction code.
func (c *Coordinator) StateOf(code string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[code]
	return s, ok
}

func (c *Coordinator) setState(code string, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, existed := c.states[code]
	c.states[code] = s

	if !isTerminal(s) || (existed && isTerminal(prev)) {
		return
	}
	c.terminal = append(c.terminal, code)
	for len(c.terminal) > c.terminalLimit {
		oldest := c.terminal[0]
		c.terminal = c.terminal[1:]
		// A code can leave a terminal state again (a dropped record may
		// be re-confirmed); evict only if it is still terminal.
		if isTerminal(c.states[oldest]) {
			delete(c.states, oldest)
		}
	}
}

func isTerminal(s State) bool {
	return s == StateReconciled || s == StateDropped
}

// HandleMessage is the inbound-message trigger. Non-MPESA messages are
// ignored; unparseable MPESA messages are dropped and logged. A parsed
// record is forwarded live when the channel is available, otherwise
// queued durably and, when capture is enabled, presented to the user.
func (c *Coordinator) HandleMessage(ctx context.Context, sender, body string) error {
	if !parser.IsMpesa(sender, body) {
		c.log.Debug().Str("sender", sender).Msg("Ignoring non-MPESA message")
		return nil
	}

	rec := parser.Parse(body)
	if rec == nil {
		c.log.Warn().Str("sender", sender).Msg("Failed to parse MPESA message, dropping")
		return nil
	}
	rec.Sender = sender

	// Redelivered copies of a message already forwarded, under capture,
	// or fully handled must not reach the host again.
	switch s, _ := c.StateOf(rec.Code); s {
	case StateLiveDelivered, StateSessionPending, StateReconciled, StateDropped:
		c.log.Warn().Str("code", rec.Code).Str("state", string(s)).Msg("Duplicate message ignored")
		return nil
	}
	c.setState(rec.Code, StateParsed)

	if c.channel.Attached() {
		err := c.channel.Invoke(ctx, MethodSMSReceived, SMSPayload{Sender: sender, Message: body})
		if err == nil {
			c.setState(rec.Code, StateLiveDelivered)
			c.log.Info().Str("code", rec.Code).Msg("Message forwarded to live host")
			return nil
		}
		c.log.Warn().Err(err).Str("code", rec.Code).Msg("Live forward failed, falling back to durable queue")
	}

	if err := c.store.Append(ctx, *rec); err != nil {
		c.log.Error().Err(err).Str("code", rec.Code).Msg("Failed to queue transaction")
		return err
	}
	c.setState(rec.Code, StateQueued)
	c.log.Info().Str("code", rec.Code).Str("title", rec.Title).Msg("Transaction queued")

	if c.presenter != nil {
		if err := c.presenter.Present(ctx, *rec); err != nil {
			// The record is already queued; presentation is best-effort.
			c.log.Warn().Err(err).Str("code", rec.Code).Msg("Presentation skipped")
		} else {
			c.setState(rec.Code, StateSessionPending)
		}
	}
	return nil
}

// HandleConfirm is the terminal confirm trigger from a presentation
// session or a notification action. The (possibly edited) record is
// forwarded live when possible; otherwise it is upserted into the
// durable queue under its code for later host retrieval.
func (c *Coordinator) HandleConfirm(ctx context.Context, rec domain.TransactionRecord) error {
	if s, _ := c.StateOf(rec.Code); s == StateReconciled {
		c.log.Warn().Str("code", rec.Code).Msg("Duplicate confirm ignored, already delivered")
		return nil
	}

	if c.channel.Attached() {
		out := domain.Outcome{Confirmed: true, Record: rec}
		err := c.channel.Invoke(ctx, MethodTransactionConfirmed, out)
		if err == nil {
			// Confirmed handoff: drop any queued copy exactly once.
			removed, rmErr := c.store.RemoveByCode(ctx, rec.Code)
			if rmErr != nil {
				c.log.Error().Err(rmErr).Str("code", rec.Code).Msg("Failed to remove delivered transaction from queue")
			} else if removed {
				c.log.Debug().Str("code", rec.Code).Msg("Queued copy removed after live handoff")
			}
			c.setState(rec.Code, StateReconciled)
			c.log.Info().Str("code", rec.Code).Msg("Transaction confirmed to live host")
			return nil
		}
		c.log.Warn().Err(err).Str("code", rec.Code).Msg("Confirm forward failed, falling back to durable queue")
	}

	if err := c.store.Append(ctx, rec); err != nil {
		c.log.Error().Err(err).Str("code", rec.Code).Msg("Failed to queue confirmed transaction")
		return err
	}
	c.setState(rec.Code, StateQueued)
	c.log.Info().Str("code", rec.Code).Msg("Confirmed transaction queued for later retrieval")
	return nil
}

// HandleDismiss is the terminal dismiss trigger. With a live channel
// the dismissal is forwarded and the queued copy discarded; without one
// the record stays queued so the host can still reconcile it later.
func (c *Coordinator) HandleDismiss(ctx context.Context, code string) error {
	if s, _ := c.StateOf(code); s == StateReconciled {
		c.log.Warn().Str("code", code).Msg("Dismiss ignored, transaction already delivered")
		return nil
	}

	if c.channel.Attached() {
		if err := c.channel.Invoke(ctx, MethodTransactionDismissed, DismissPayload{Code: code}); err == nil {
			if _, rmErr := c.store.RemoveByCode(ctx, code); rmErr != nil {
				c.log.Error().Err(rmErr).Str("code", code).Msg("Failed to remove dismissed transaction from queue")
			}
			c.setState(code, StateDropped)
			c.log.Info().Str("code", code).Msg("Transaction dismissed")
			return nil
		}
	}

	// No live channel: keep the queued record for later retrieval.
	c.log.Info().Str("code", code).Msg("Transaction dismissed while offline, kept in queue")
	return nil
}

// HandleOpenForm asks a live host to open its transaction form
// pre-filled with rec, the path taken when the user taps a
// notification body rather than one of its actions. Without a live
// channel the record is upserted into the durable queue so the host
// picks it up on its next start.
func (c *Coordinator) HandleOpenForm(ctx context.Context, rec domain.TransactionRecord) error {
	if s, _ := c.StateOf(rec.Code); s == StateReconciled {
		c.log.Warn().Str("code", rec.Code).Msg("Open-form ignored, transaction already delivered")
		return nil
	}

	if c.channel.Attached() {
		err := c.channel.Invoke(ctx, MethodOpenTransactionForm, rec)
		if err == nil {
			c.setState(rec.Code, StateSessionPending)
			c.log.Info().Str("code", rec.Code).Msg("Transaction form opened on live host")
			return nil
		}
		c.log.Warn().Err(err).Str("code", rec.Code).Msg("Open-form forward failed, falling back to durable queue")
	}

	if err := c.store.Append(ctx, rec); err != nil {
		c.log.Error().Err(err).Str("code", rec.Code).Msg("Failed to queue transaction for form entry")
		return err
	}
	c.setState(rec.Code, StateQueued)
	return nil
}

// HandleOutcome routes a presentation-session outcome to the matching
// terminal trigger.
func (c *Coordinator) HandleOutcome(ctx context.Context, out domain.Outcome) error {
	if out.Confirmed {
		return c.HandleConfirm(ctx, out.Record)
	}
	return c.HandleDismiss(ctx, out.Record.Code)
}
