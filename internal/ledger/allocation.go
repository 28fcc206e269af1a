package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Allocation is one requested allocation line.
type Allocation struct {
	UserID string
	Type   models.AllocationType
	Amount decimal.Decimal
}

// AllocationService validates and writes allocation lines.
type AllocationService struct {
	*base
}

// UpsertParticipants writes allocations onto an expense of groupID, keyed by
// user. If any user is not a participant of the group the whole batch is
// rejected with ErrForbidden and nothing is written. A user listed twice takes
// its last entry.
//
// An empty batch writes nothing and succeeds.
//
// Sums of percentage or fixed-value lines are not checked against the total;
// the ledger query reports the unallocated remainder instead.
func (s *AllocationService) UpsertParticipants(ctx context.Context, expenseID, groupID string, allocations []Allocation) error {
	err := s.upsert(ctx, expenseID, groupID, allocations)
	s.opts.Metrics.AllocationBatch(result(err))
	if err != nil {
		s.log().Warn("allocation batch rejected", "expense_id", expenseID, "group_id", groupID, "error", err)
		return err
	}
	s.log().Debug("allocation batch written", "expense_id", expenseID, "lines", len(allocations))
	return nil
}

func (s *AllocationService) upsert(ctx context.Context, expenseID, groupID string, allocations []Allocation) error {
	lines, err := normalizeAllocations(allocations)
	if err != nil {
		return err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	userIDs := make([]string, len(lines))
	for i, l := range lines {
		userIDs[i] = l.UserID
	}

	// The membership read and the bulk write share one transaction, so the
	// write never lands on a membership snapshot that changed in between.
	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		expense, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return translate("get expense", err)
		}
		if expense.GroupID != groupID {
			return fmt.Errorf("expense %s in group %s: %w", expenseID, groupID, ErrNotFound)
		}
		if len(lines) == 0 {
			return nil
		}
		ok, err := tx.HasParticipants(ctx, groupID, userIDs)
		if err != nil {
			return translate("check participants", err)
		}
		if !ok {
			return fmt.Errorf("allocation to non-participant of group %s: %w", groupID, ErrForbidden)
		}
		_, err = tx.UpsertParticipants(ctx, expenseID, lines)
		return translate("upsert participants", err)
	})
	return translate("upsert participants", err)
}

// normalizeAllocations validates every allocation and collapses duplicates,
// keeping the position of the first entry and the values of the last.
func normalizeAllocations(allocations []Allocation) ([]models.Participant, error) {
	index := make(map[string]int, len(allocations))
	lines := make([]models.Participant, 0, len(allocations))
	for i, a := range allocations {
		field := fmt.Sprintf("allocations[%d]", i)
		if a.UserID == "" {
			return nil, invalid(field+".user_id", "must not be empty")
		}
		if !a.Type.Valid() {
			return nil, invalid(field+".allocation_type", "unknown allocation type %q", a.Type)
		}
		if a.Amount.IsNegative() {
			return nil, invalid(field+".amount", "must not be negative")
		}
		if a.Type == models.AllocationPercentage && a.Amount.GreaterThan(hundred) {
			return nil, invalid(field+".amount", "percentage must not exceed 100")
		}

		line := models.Participant{UserID: a.UserID, AllocationType: a.Type, Amount: a.Amount}
		if j, ok := index[a.UserID]; ok {
			lines[j] = line
			continue
		}
		index[a.UserID] = len(lines)
		lines = append(lines, line)
	}
	return lines, nil
}

// MarkPaid records that userID settled its share of the current period.
// The line's user or the expense creator may mark it.
func (s *AllocationService) MarkPaid(ctx context.Context, actorID, expenseID, userID string, paidAt time.Time) error {
	paidAt = paidAt.UTC()
	return s.setPaid(ctx, actorID, expenseID, userID, &paidAt)
}

// ClearPaid removes the paid marker of a line.
func (s *AllocationService) ClearPaid(ctx context.Context, actorID, expenseID, userID string) error {
	return s.setPaid(ctx, actorID, expenseID, userID, nil)
}

func (s *AllocationService) setPaid(ctx context.Context, actorID, expenseID, userID string, paidAt *time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		expense, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return translate("get expense", err)
		}
		if actorID != userID && actorID != expense.CreatorID {
			return fmt.Errorf("user %s cannot settle for %s: %w", actorID, userID, ErrForbidden)
		}
		if _, ok := expense.Participant(userID); !ok {
			return fmt.Errorf("line of %s on expense %s: %w", userID, expenseID, ErrNotFound)
		}
		return translate("set paid", tx.SetParticipantPaid(ctx, expenseID, userID, paidAt))
	})
	return translate("set paid", err)
}
