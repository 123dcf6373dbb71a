package parser

import (
	"testing"

	"github.com/shopspring/decimal"

	"mpesa-capture/internal/domain"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantNil    bool
		wantCode   string
		wantTitle  string
		wantAmount string
		wantKind   domain.Kind
	}{
		{
			name:       "received with name",
			raw:        "QCX4T7R9K1 Confirmed. You have received Ksh1,500.00 from JANE DOE 0798765432 on 1/1/24 at 2:15 PM.",
			wantCode:   "QCX4T7R9K1",
			wantTitle:  "Received from JANE DOE",
			wantAmount: "1500.00",
			wantKind:   domain.KindIncome,
		},
		{
			name:       "received with number only",
			raw:        "QCX4T7R9K2 Confirmed. You have received Ksh500.00 from 254798765432.",
			wantCode:   "QCX4T7R9K2",
			wantTitle:  "Received from 254798765432",
			wantAmount: "500.00",
			wantKind:   domain.KindIncome,
		},
		{
			name:       "sent to name",
			raw:        "QDM8WE2LP0 Confirmed. Ksh750.50 sent to John Doe 0712345678 on 3/1/24.",
			wantCode:   "QDM8WE2LP0",
			wantTitle:  "Sent to John Doe",
			wantAmount: "750.50",
			wantKind:   domain.KindExpense,
		},
		{
			name:       "paid to merchant",
			raw:        "QRT5UI890O Confirmed. Ksh300.00 paid to NAIVAS SUPERMARKET. on 2/1/24 at 9:01 AM.",
			wantCode:   "QRT5UI890O",
			wantTitle:  "Paid to NAIVAS SUPERMARKET",
			wantAmount: "300.00",
			wantKind:   domain.KindExpense,
		},
		{
			name:       "withdrawal",
			raw:        "QWE3RT56Y7 Confirmed. Ksh2,000.00 withdrawn at Agent 48291 Nairobi.",
			wantCode:   "QWE3RT56Y7",
			wantTitle:  "Cash Withdrawal",
			wantAmount: "2000.00",
			wantKind:   domain.KindExpense,
		},
		{
			name:       "airtime purchase",
			raw:        "QPL9OK34M5 Confirmed. You bought Ksh100.00 of airtime on 4/1/24.",
			wantCode:   "QPL9OK34M5",
			wantTitle:  "Airtime Purchase",
			wantAmount: "100.00",
			wantKind:   domain.KindExpense,
		},
		{
			name:       "generic purchase",
			raw:        "QPL9OK34M6 Confirmed. You bought Ksh450.00 of goods.",
			wantCode:   "QPL9OK34M6",
			wantTitle:  "Purchase",
			wantAmount: "450.00",
			wantKind:   domain.KindExpense,
		},
		{
			name:       "no rule matched",
			raw:        "QAB1CD2EF3 Confirmed. Transaction cost Ksh50.00. New M-PESA balance is hidden.",
			wantCode:   "QAB1CD2EF3",
			wantTitle:  "MPESA Transaction",
			wantAmount: "50.00",
			wantKind:   domain.KindExpense,
		},
		{
			name:       "missing code yields UNKNOWN",
			raw:        "You have received Ksh250.00 from 0712.",
			wantCode:   domain.UnknownCode,
			wantTitle:  "Received from 0712",
			wantAmount: "250.00",
			wantKind:   domain.KindIncome,
		},
		{
			name:    "no amount is a hard failure",
			raw:     "QCX4T7R9K1 Confirmed. You have received money from JANE DOE.",
			wantNil: true,
		},
		{
			name:    "empty message",
			raw:     "",
			wantNil: true,
		},
		{
			name:    "message without an amount token",
			raw:     "MPESA Confirmed. Balance update, no amount here.",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Parse(tt.raw)
			if tt.wantNil {
				if rec != nil {
					t.Fatalf("Parse(%q) = %+v, want nil", tt.raw, rec)
				}
				return
			}
			if rec == nil {
				t.Fatalf("Parse(%q) = nil, want record", tt.raw)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", rec.Code, tt.wantCode)
			}
			if rec.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", rec.Title, tt.wantTitle)
			}
			if want := decimal.RequireFromString(tt.wantAmount); !rec.Amount.Equal(want) {
				t.Errorf("Amount = %s, want %s", rec.Amount, want)
			}
			if rec.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", rec.Kind, tt.wantKind)
			}
			if rec.RawMessage != tt.raw {
				t.Errorf("RawMessage not preserved: %q", rec.RawMessage)
			}
		})
	}
}

// A message carrying both "received" and "paid to" must classify by
// the first matching rule: received wins.
func TestParseClassificationPriority(t *testing.T) {
	raw := "QCX4T7R9K1 Confirmed. You have received Ksh500.00 from JOHN DOE 0712345678, previously paid to AGENT."

	rec := Parse(raw)
	if rec == nil {
		t.Fatal("Parse returned nil")
	}
	if rec.Kind != domain.KindIncome {
		t.Errorf("Kind = %q, want %q", rec.Kind, domain.KindIncome)
	}
	if rec.Title != "Received from JOHN DOE" {
		t.Errorf("Title = %q, want %q", rec.Title, "Received from JOHN DOE")
	}
}

func TestParseNormalizesWhitespace(t *testing.T) {
	raw := "QCX4T7R9K1  Confirmed.\n\tYou have   received Ksh1,500.00 from\nJANE DOE 0798765432."

	rec := Parse(raw)
	if rec == nil {
		t.Fatal("Parse returned nil")
	}
	if rec.Title != "Received from JANE DOE" {
		t.Errorf("Title = %q, want %q", rec.Title, "Received from JANE DOE")
	}
	if want := decimal.RequireFromString("1500.00"); !rec.Amount.Equal(want) {
		t.Errorf("Amount = %s, want %s", rec.Amount, want)
	}
}

func TestParseSeparatorsRemoved(t *testing.T) {
	rec := Parse("QWE3RT56Y7 Confirmed. Ksh1,234,567.89 sent to Jane Doe 0712345678.")
	if rec == nil {
		t.Fatal("Parse returned nil")
	}
	if want := decimal.RequireFromString("1234567.89"); !rec.Amount.Equal(want) {
		t.Errorf("Amount = %s, want %s", rec.Amount, want)
	}
}

func TestIsMpesa(t *testing.T) {
	tests := []struct {
		sender, body string
		want         bool
	}{
		{"MPESA", "QCX4T7R9K1 Confirmed.", true},
		{"mpesa", "anything", true},
		{"0712345678", "Forwarded MPESA Confirmed message", true},
		{"BANK", "Your account was debited", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := IsMpesa(tt.sender, tt.body); got != tt.want {
			t.Errorf("IsMpesa(%q, %q) = %v, want %v", tt.sender, tt.body, got, tt.want)
		}
	}
}
