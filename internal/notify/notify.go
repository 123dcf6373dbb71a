// Package notify builds and delivers transaction notifications with
// Add and Dismiss actions, the capture path used when no interactive
// surface is available. Action payloads carry the full record so a
// confirmation raised hours later still reconciles.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mpesa-capture/internal/domain"
)

const channelID = "mpesa_transactions"

// ActionKind distinguishes the two notification buttons.
type ActionKind string

const (
	ActionAdd     ActionKind = "add"
	ActionDismiss ActionKind = "dismiss"

	// ActionOpen is the notification body tap: open the host
	// application's transaction form instead of deciding inline.
	ActionOpen ActionKind = "open"
)

// ErrUnknownAction rejects an action payload with an unrecognized kind.
var ErrUnknownAction = errors.New("unknown notification action")

// Action is the payload attached to a notification button. Add carries
// the complete record, including any category and notes chosen at
// build time; Dismiss only needs the code.
type Action struct {
	Kind   ActionKind               `json:"kind"`
	Record domain.TransactionRecord `json:"record"`
}

// Notification is one deliverable transaction alert. Tap is the body
// tap; Actions are the inline buttons.
type Notification struct {
	ID      string
	Channel string
	Title   string
	Text    string
	BigText string
	Tap     Action
	Actions []Action
}

// Sink delivers notifications to the platform surface. Enabled reports
// whether the user has granted the notification permission.
type Sink interface {
	Enabled() bool
	Show(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id string) error
}

// OutcomeRouter receives the outcome produced by a tapped action. The
// dispatch coordinator satisfies this.
type OutcomeRouter interface {
	HandleOutcome(ctx context.Context, out domain.Outcome) error
}

// FormOpener is the optional router capability behind ActionOpen:
// forwarding a record to the host application's transaction form. A
// router without it degrades body taps to a no-op.
type FormOpener interface {
	HandleOpenForm(ctx context.Context, rec domain.TransactionRecord) error
}

// Notifier posts transaction notifications and routes their actions
// back into the reconciliation path.
type Notifier struct {
	sink     Sink
	outcomes OutcomeRouter
	log      zerolog.Logger
}

// NewNotifier builds a notifier. outcomes may be nil when the router
// is constructed later; it must then be supplied with Bind before the
// first action arrives.
func NewNotifier(sink Sink, outcomes OutcomeRouter, log zerolog.Logger) *Notifier {
	return &Notifier{sink: sink, outcomes: outcomes, log: log}
}

// Bind sets the outcome router. The notifier and the coordinator
// reference each other, so one of them is always bound after
// construction.
func (n *Notifier) Bind(outcomes OutcomeRouter) {
	n.outcomes = outcomes
}

// Build assembles the notification for rec: id derived from the
// transaction code, a one-line summary, and the expanded body shown
// when the alert is unfolded.
func Build(rec domain.TransactionRecord) Notification {
	amount := rec.Amount.StringFixed(2)
	return Notification{
		ID:      rec.Code,
		Channel: channelID,
		Title:   "MPESA Transaction Detected",
		Text:    fmt.Sprintf("%s - KES %s", rec.Title, amount),
		BigText: fmt.Sprintf("%s\nAmount: KES %s\nFrom: %s\nCode: %s",
			rec.Title, amount, rec.Sender, rec.Code),
		Tap: Action{Kind: ActionOpen, Record: rec},
		Actions: []Action{
			{Kind: ActionAdd, Record: rec},
			{Kind: ActionDismiss, Record: domain.TransactionRecord{Code: rec.Code}},
		},
	}
}

// Notify posts a notification for rec. A missing notification
// permission is not an error: the record is already queued, so the
// alert is skipped with a warning and the user finds the transaction
// in the pending list instead.
func (n *Notifier) Notify(ctx context.Context, rec domain.TransactionRecord) error {
	if !n.sink.Enabled() {
		n.log.Warn().Str("code", rec.Code).
			Msg("Notification permission not granted, skipping alert; transaction stays queued")
		return nil
	}

	notification := Build(rec)
	if err := n.sink.Show(ctx, notification); err != nil {
		return fmt.Errorf("show notification %s: %w", notification.ID, err)
	}
	n.log.Info().Str("code", rec.Code).Str("title", rec.Title).Msg("Transaction notification posted")
	return nil
}

// Present implements the dispatch coordinator's Presenter over Notify.
func (n *Notifier) Present(ctx context.Context, rec domain.TransactionRecord) error {
	return n.Notify(ctx, rec)
}

// HandleAction processes a tapped notification button: the alert is
// cancelled and the payload re-enters the coordinator as a confirm or
// a dismissal.
func (n *Notifier) HandleAction(ctx context.Context, a Action) error {
	code := a.Record.Code
	if err := n.sink.Cancel(ctx, code); err != nil {
		n.log.Warn().Err(err).Str("code", code).Msg("Failed to cancel notification")
	}

	switch a.Kind {
	case ActionAdd:
		n.log.Info().Str("code", code).Msg("Notification action: add transaction")
		return n.outcomes.HandleOutcome(ctx, domain.Outcome{Confirmed: true, Record: a.Record})
	case ActionDismiss:
		n.log.Info().Str("code", code).Msg("Notification action: dismiss transaction")
		return n.outcomes.HandleOutcome(ctx, domain.Outcome{Confirmed: false, Record: a.Record})
	case ActionOpen:
		opener, ok := n.outcomes.(FormOpener)
		if !ok {
			n.log.Debug().Str("code", code).Msg("No form opener bound, ignoring body tap")
			return nil
		}
		n.log.Info().Str("code", code).Msg("Notification tapped: opening transaction form")
		return opener.HandleOpenForm(ctx, a.Record)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
}
