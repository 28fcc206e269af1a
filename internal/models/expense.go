package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationType describes how a participant's share of an expense is computed.
type AllocationType string

const (
	// AllocationEqual splits whatever is not allocated by percentage or fixed-value
	// lines equally among all equal lines.
	AllocationEqual AllocationType = "equal"

	// AllocationPercentage takes Amount percent of the expense total.
	AllocationPercentage AllocationType = "percentage"

	// AllocationFixed takes exactly Amount.
	AllocationFixed AllocationType = "fixed-value"
)

// Valid reports whether t is one of the known allocation types.
func (t AllocationType) Valid() bool {
	switch t {
	case AllocationEqual, AllocationPercentage, AllocationFixed:
		return true
	}
	return false
}

// Participant is one allocation line of an expense.
// Lines are unique per (expense, user): writing a line for a user that already
// has one overwrites it.
type Participant struct {
	// ID is the allocation line identifier (UUID format).
	ID string

	UserID         string
	AllocationType AllocationType
	Amount         decimal.Decimal

	// PaidAt is set once the participant settled their share for the current period.
	PaidAt *time.Time
}

// Recurrence makes an expense roll forward every Duration.
type Recurrence struct {
	Duration  time.Duration
	StartDate time.Time
}

// Expense is an amount owed by members of a group.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// Name is unique within the group.
	Name string

	GroupID string

	// TopicID is empty when the expense is not filed under a topic.
	TopicID string

	CreatorID   string
	TotalAmount decimal.Decimal

	// DueDate is the end of the current period. Nil for one-off expenses without a deadline.
	DueDate *time.Time

	// Recurrence is nil for one-off expenses.
	Recurrence *Recurrence

	// Participants are the live allocation lines, in insertion order.
	Participants []Participant

	CreatedAt time.Time
}

// IsRecurring reports whether the expense has an active recurrence.
func (e *Expense) IsRecurring() bool {
	return e.Recurrence != nil && e.Recurrence.Duration > 0
}

// Participant returns the allocation line for userID, if any.
func (e *Expense) Participant(userID string) (Participant, bool) {
	for _, p := range e.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}
