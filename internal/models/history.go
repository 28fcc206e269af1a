package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseHistory records one recurrence period of an expense.
//
// A record is open while EndDate is nil. Closing it sets EndDate and freezes
// Participants and TotalAmount; closed records are never modified again.
// An expense has at most one open record at a time.
type ExpenseHistory struct {
	ID           string
	ExpenseID    string
	Participants []Participant
	TotalAmount  decimal.Decimal
	EndDate      *time.Time
	CreatedAt    time.Time
}

// Open reports whether the period is still accruing.
func (h *ExpenseHistory) Open() bool {
	return h.EndDate == nil
}
