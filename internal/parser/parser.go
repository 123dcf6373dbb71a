// Package parser turns raw MPESA notification text into typed
// transaction records. It is heuristic and best-effort: a message it
// cannot make sense of yields nil, never an error or a panic.
package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"mpesa-capture/internal/domain"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Transaction codes are a fixed-length run of uppercase
	// alphanumerics anywhere in the message.
	codeRe = regexp.MustCompile(`[A-Z0-9]{10}`)

	// Amounts are currency-prefixed with optional thousands separators,
	// e.g. "Ksh1,500.00". A message with no matchable amount is not a
	// transaction.
	amountRe = regexp.MustCompile(`Ksh([\d,]+\.?\d*)`)

	// Counterparty extraction, best-effort: an uppercase name followed
	// by a phone number, falling back to a bare number.
	receivedNameRe   = regexp.MustCompile(`from\s+([A-Z\s]+)\s+\d`)
	receivedNumberRe = regexp.MustCompile(`from\s+(\d+)`)
	sentNameRe       = regexp.MustCompile(`to\s+([A-Za-z\s]+)\s+\d`)
	sentNumberRe     = regexp.MustCompile(`to\s+(\d+)`)
	paidMerchantRe   = regexp.MustCompile(`to\s+([A-Z\s]+)\.`)
)

// IsMpesa reports whether a message should enter the capture pipeline
// at all: either the sender or the body mentions MPESA.
func IsMpesa(sender, body string) bool {
	return strings.Contains(strings.ToUpper(sender), "MPESA") ||
		strings.Contains(strings.ToUpper(body), "MPESA")
}

// Parse extracts a transaction record from raw message text. It
// returns nil when the text carries no extractable amount or when any
// internal extraction step fails; errors never escape this boundary.
func Parse(raw string) (rec *domain.TransactionRecord) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
		}
	}()

	clean := strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))

	code := domain.UnknownCode
	if m := codeRe.FindString(clean); m != "" {
		code = m
	}

	m := amountRe.FindStringSubmatch(clean)
	if m == nil {
		return nil
	}
	amountStr := strings.TrimSuffix(strings.ReplaceAll(m[1], ",", ""), ".")
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil
	}

	kind, title := classify(clean)

	return &domain.TransactionRecord{
		Code:       code,
		Title:      title,
		Amount:     amount,
		Kind:       kind,
		RawMessage: raw,
	}
}

// classify evaluates the ordered rule set against the normalized text.
// First match wins; a message matching no rule is a generic expense.
func classify(clean string) (domain.Kind, string) {
	lower := strings.ToLower(clean)

	switch {
	case strings.Contains(lower, "received"):
		if name := counterparty(clean, receivedNameRe, receivedNumberRe); name != "" {
			return domain.KindIncome, "Received from " + name
		}
		return domain.KindIncome, "Money Received"

	case strings.Contains(lower, "sent to"):
		if name := counterparty(clean, sentNameRe, sentNumberRe); name != "" {
			return domain.KindExpense, "Sent to " + name
		}
		return domain.KindExpense, "Money Sent"

	case strings.Contains(lower, "paid to"):
		if m := paidMerchantRe.FindStringSubmatch(clean); m != nil {
			return domain.KindExpense, "Paid to " + strings.TrimSpace(m[1])
		}
		return domain.KindExpense, "Payment"

	case strings.Contains(lower, "withdrawn"):
		return domain.KindExpense, "Cash Withdrawal"

	case strings.Contains(lower, "bought"):
		if strings.Contains(lower, "airtime") {
			return domain.KindExpense, "Airtime Purchase"
		}
		return domain.KindExpense, "Purchase"
	}

	return domain.KindExpense, "MPESA Transaction"
}

func counterparty(clean string, name, number *regexp.Regexp) string {
	if m := name.FindStringSubmatch(clean); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := number.FindStringSubmatch(clean); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
