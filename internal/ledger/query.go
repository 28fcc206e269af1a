package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
)

// ExpenseLedger is the read-side view of one expense.
type ExpenseLedger struct {
	Expense *models.Expense

	// History holds the closed periods, oldest first, followed by the open
	// record if one exists.
	History []*models.ExpenseHistory

	// Shares are the computed amounts of the live lines, in line order.
	Shares      []calculator.Share
	Unallocated decimal.Decimal
}

// GroupBalances is the outstanding state of a group's current periods.
type GroupBalances struct {
	GroupID string
	Members []calculator.MemberBalance
	Debts   []calculator.DebtEdge
}

// QueryService composes read models. It never writes.
type QueryService struct {
	*base
}

// ExpenseLedger returns an expense with its history and computed shares to a
// participant of the expense's group.
func (s *QueryService) ExpenseLedger(ctx context.Context, actorID, expenseID string) (*ExpenseLedger, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, translate("get expense", err)
	}
	if err := s.requireMember(ctx, actorID, expense.GroupID); err != nil {
		return nil, err
	}
	history, err := s.store.ListHistory(ctx, expenseID)
	if err != nil {
		return nil, translate("list history", err)
	}

	split := calculator.ComputeShares(expense.TotalAmount, expense.Participants)
	return &ExpenseLedger{
		Expense:     expense,
		History:     history,
		Shares:      split.Shares,
		Unallocated: split.Unallocated,
	}, nil
}

// ListExpenses returns the expenses of a group to one of its participants.
func (s *QueryService) ListExpenses(ctx context.Context, actorID, groupID string) ([]*models.Expense, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := memberGroup(ctx, s.store, actorID, groupID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return nil, translate("list expenses", err)
	}
	return expenses, nil
}

// GroupBalances returns who owes whom across the live lines of a group.
func (s *QueryService) GroupBalances(ctx context.Context, actorID, groupID string) (*GroupBalances, error) {
	expenses, err := s.ListExpenses(ctx, actorID, groupID)
	if err != nil {
		return nil, err
	}
	members, debts := calculator.GroupBalances(expenses)
	return &GroupBalances{GroupID: groupID, Members: members, Debts: debts}, nil
}

func (s *QueryService) requireMember(ctx context.Context, userID, groupID string) error {
	ok, err := s.store.HasParticipants(ctx, groupID, []string{userID})
	if err != nil {
		return translate("check participant", err)
	}
	if !ok {
		return fmt.Errorf("user %s in group %s: %w", userID, groupID, ErrForbidden)
	}
	return nil
}
