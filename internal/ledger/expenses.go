package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// NewExpense describes an expense to create.
type NewExpense struct {
	CreatorID   string
	GroupID     string
	TopicID     string
	Name        string
	TotalAmount decimal.Decimal
	DueDate     *time.Time
	Recurrence  *models.Recurrence
}

// ExpenseService creates expenses and rolls recurring ones forward.
type ExpenseService struct {
	*base
}

// CreateExpense creates an expense in a group, optionally filed under a topic.
// The creator must participate in the group and starts as the only
// participant with an equal allocation. Names are unique per group.
func (s *ExpenseService) CreateExpense(ctx context.Context, in NewExpense) (*models.Expense, error) {
	expense, err := s.buildExpense(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := memberGroup(ctx, tx, in.CreatorID, in.GroupID); err != nil {
			return err
		}
		if in.TopicID != "" {
			topic, err := tx.GetTopic(ctx, in.TopicID)
			if err != nil {
				return translate("get topic", err)
			}
			if topic.GroupID != in.GroupID {
				return fmt.Errorf("topic %s in group %s: %w", in.TopicID, in.GroupID, ErrNotFound)
			}
		}
		taken, err := tx.ExpenseNameTaken(ctx, in.GroupID, expense.Name)
		if err != nil {
			return translate("check expense name", err)
		}
		if taken {
			return fmt.Errorf("expense %q: %w", expense.Name, ErrConflict)
		}
		return translate("create expense", tx.CreateExpense(ctx, expense))
	})
	if err = translate("create expense", err); err != nil {
		return nil, err
	}

	s.log().Info("expense created",
		"expense_id", expense.ID,
		"group_id", expense.GroupID,
		"creator_id", expense.CreatorID,
		"total", expense.TotalAmount.String(),
		"recurring", expense.IsRecurring(),
	)
	return expense, nil
}

func (s *ExpenseService) buildExpense(in NewExpense) (*models.Expense, error) {
	name, err := validateName("name", in.Name)
	if err != nil {
		return nil, err
	}
	if !in.TotalAmount.IsPositive() {
		return nil, invalid("total_amount", "must be positive")
	}

	now := s.now()
	expense := &models.Expense{
		Name:        name,
		GroupID:     in.GroupID,
		TopicID:     in.TopicID,
		CreatorID:   in.CreatorID,
		TotalAmount: in.TotalAmount,
		CreatedAt:   now,
		Participants: []models.Participant{{
			UserID:         in.CreatorID,
			AllocationType: models.AllocationEqual,
			Amount:         decimal.Zero,
		}},
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC().Truncate(time.Millisecond)
		expense.DueDate = &due
	}

	if in.Recurrence != nil {
		if in.Recurrence.Duration < time.Millisecond {
			return nil, invalid("recurrence.duration", "must be at least one millisecond")
		}
		r := &models.Recurrence{
			Duration:  in.Recurrence.Duration.Truncate(time.Millisecond),
			StartDate: in.Recurrence.StartDate.UTC().Truncate(time.Millisecond),
		}
		if r.StartDate.IsZero() {
			r.StartDate = now.Truncate(time.Millisecond)
		}
		expense.Recurrence = r
		if expense.DueDate == nil {
			due := r.StartDate.Add(r.Duration)
			expense.DueDate = &due
		}
	}
	return expense, nil
}

// RolloverIfDue rolls the current period of a recurring expense: the open
// history record is closed at the due date, the due date advances by exactly
// one recurrence duration and the live lines reset with cleared paid markers.
// It does not compare the due date with the clock; callers invoke it once per
// elapsed period. An expense without due date or recurrence is left alone and
// (nil, nil) is returned.
func (s *ExpenseService) RolloverIfDue(ctx context.Context, expenseID string) (*models.ExpenseHistory, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, translate("get expense", err)
	}
	if expense.DueDate == nil || !expense.IsRecurring() {
		return nil, nil
	}
	return s.RolloverPeriod(ctx, expenseID, *expense.DueDate)
}

// RolloverPeriod rolls the period of an expense that ends at dueDate. If that
// period was already rolled, by this caller or a concurrent one, it returns
// (nil, nil) and changes nothing.
//
// The due date moves by compare-and-swap on dueDate and the history record
// closes only while still open, both inside one transaction: two concurrent
// calls produce exactly one closed record and one advance.
func (s *ExpenseService) RolloverPeriod(ctx context.Context, expenseID string, dueDate time.Time) (*models.ExpenseHistory, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	dueDate = dueDate.UTC().Truncate(time.Millisecond)
	var closed *models.ExpenseHistory
	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		closed = nil
		expense, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return translate("get expense", err)
		}
		if expense.DueDate == nil || !expense.IsRecurring() || !expense.DueDate.Equal(dueDate) {
			return nil
		}

		next := dueDate.Add(expense.Recurrence.Duration)
		advanced, err := tx.AdvanceDueDate(ctx, expenseID, dueDate, next)
		if err != nil {
			return translate("advance due date", err)
		}
		if !advanced {
			return nil
		}

		open, err := s.openHistory(ctx, tx, expense)
		if err != nil {
			return err
		}

		snapshot := append([]models.Participant(nil), expense.Participants...)
		ok, err := tx.CloseHistory(ctx, open.ID, dueDate, expense.TotalAmount, snapshot)
		if err != nil {
			return translate("close history", err)
		}
		if !ok {
			return fmt.Errorf("history %s already closed: %w", open.ID, ErrConflict)
		}

		group, err := tx.GetGroup(ctx, expense.GroupID)
		if err != nil {
			return translate("get group", err)
		}
		fresh := make([]models.Participant, 0, len(snapshot))
		for _, p := range snapshot {
			if !group.HasParticipant(p.UserID) {
				continue
			}
			p.PaidAt = nil
			fresh = append(fresh, p)
		}
		if err := tx.ResetParticipants(ctx, expenseID, fresh); err != nil {
			return translate("reset participants", err)
		}

		end := dueDate
		open.EndDate = &end
		open.TotalAmount = expense.TotalAmount
		open.Participants = snapshot
		closed = open
		return nil
	})
	err = translate("rollover", err)

	switch {
	case err != nil:
		s.opts.Metrics.Rollover("error")
		s.log().Error("rollover failed", "expense_id", expenseID, "due_date", dueDate, "error", err)
		return nil, err
	case closed == nil:
		s.opts.Metrics.Rollover("skipped")
		return nil, nil
	}
	s.opts.Metrics.Rollover("rolled")
	s.log().Info("expense rolled over",
		"expense_id", expenseID,
		"history_id", closed.ID,
		"end_date", dueDate,
	)
	return closed, nil
}

// openHistory returns the open record of the expense, creating it on first use.
func (s *ExpenseService) openHistory(ctx context.Context, tx storage.Store, expense *models.Expense) (*models.ExpenseHistory, error) {
	open, err := tx.GetOpenHistory(ctx, expense.ID)
	if err == nil {
		return open, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, translate("get open history", err)
	}

	open = &models.ExpenseHistory{
		ExpenseID:   expense.ID,
		TotalAmount: expense.TotalAmount,
		CreatedAt:   s.now(),
	}
	if err := tx.CreateHistory(ctx, open); err != nil {
		return nil, translate("create history", err)
	}
	return open, nil
}

// DeleteExpense deletes an expense with its lines and history. Creator only.
func (s *ExpenseService) DeleteExpense(ctx context.Context, creatorID, expenseID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		expense, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return translate("get expense", err)
		}
		if expense.CreatorID != creatorID {
			return fmt.Errorf("expense %s not owned by %s: %w", expenseID, creatorID, ErrForbidden)
		}
		return translate("delete expense", tx.DeleteExpense(ctx, expenseID, creatorID))
	})
	if err = translate("delete expense", err); err != nil {
		return err
	}
	s.log().Info("expense deleted", "expense_id", expenseID, "creator_id", creatorID)
	return nil
}

// DefaultDueLimit is the batch size DueExpenses uses when limit is not positive.
const DefaultDueLimit = 100

// DueExpenses lists up to limit recurring expenses due at or before now.
func (s *ExpenseService) DueExpenses(ctx context.Context, now time.Time, limit int) ([]*models.Expense, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	expenses, err := s.store.ListDueRecurringExpenses(ctx, now, limit)
	if err != nil {
		return nil, translate("list due expenses", err)
	}
	return expenses, nil
}
