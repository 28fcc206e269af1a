package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
)

func TestCreateExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	trip := f.group(t, alice, "Trip")
	flat := f.group(t, alice, "Flat")
	food, err := f.Topics.CreateTopic(ctx, alice.ID, trip.ID, "Food", "meals")
	require.NoError(t, err)

	t.Run("creator starts as the only line", func(t *testing.T) {
		e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
			CreatorID: alice.ID, GroupID: trip.ID, TopicID: food.ID,
			Name: "Dinner", TotalAmount: amount("60"),
		})
		require.NoError(t, err)
		require.Len(t, e.Participants, 1)
		assert.Equal(t, alice.ID, e.Participants[0].UserID)
		assert.Equal(t, models.AllocationEqual, e.Participants[0].AllocationType)
		assert.Nil(t, e.DueDate)

		topic, err := f.Topics.GetTopic(ctx, alice.ID, food.ID)
		require.NoError(t, err)
		assert.Contains(t, topic.ExpenseIDs, e.ID)
	})

	t.Run("names are unique per group", func(t *testing.T) {
		_, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
			CreatorID: alice.ID, GroupID: trip.ID, Name: "Dinner", TotalAmount: amount("10"),
		})
		assert.ErrorIs(t, err, ledger.ErrConflict)

		_, err = f.Expenses.CreateExpense(ctx, ledger.NewExpense{
			CreatorID: alice.ID, GroupID: flat.ID, Name: "Dinner", TotalAmount: amount("10"),
		})
		assert.NoError(t, err)
	})

	t.Run("non participant", func(t *testing.T) {
		_, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
			CreatorID: bob.ID, GroupID: trip.ID, Name: "Taxi", TotalAmount: amount("10"),
		})
		assert.ErrorIs(t, err, ledger.ErrForbidden)
	})

	t.Run("topic of another group", func(t *testing.T) {
		_, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
			CreatorID: alice.ID, GroupID: flat.ID, TopicID: food.ID, Name: "Rent", TotalAmount: amount("10"),
		})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			in   ledger.NewExpense
		}{
			{"zero total", ledger.NewExpense{Name: "Zero", TotalAmount: amount("0")}},
			{"negative total", ledger.NewExpense{Name: "Minus", TotalAmount: amount("-5")}},
			{"short name", ledger.NewExpense{Name: "ab", TotalAmount: amount("5")}},
			{"empty recurrence", ledger.NewExpense{Name: "Rent", TotalAmount: amount("5"), Recurrence: &models.Recurrence{}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.in.CreatorID, tt.in.GroupID = alice.ID, trip.ID
				_, err := f.Expenses.CreateExpense(ctx, tt.in)
				assert.ErrorIs(t, err, ledger.ErrValidation)
			})
		}
	})

	t.Run("recurrence derives the first due date", func(t *testing.T) {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
			CreatorID: alice.ID, GroupID: trip.ID, Name: "Rent", TotalAmount: amount("1000"),
			Recurrence: &models.Recurrence{Duration: 7 * 24 * time.Hour, StartDate: start},
		})
		require.NoError(t, err)
		require.NotNil(t, e.DueDate)
		assert.True(t, e.DueDate.Equal(start.Add(7*24*time.Hour)), "due %s", e.DueDate)
	})
}

func TestUpsertParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	dave := f.user(t, "dave")
	g := f.group(t, alice, "Trip")
	f.join(t, bob, g)
	f.join(t, carol, g)

	e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: alice.ID, GroupID: g.ID, Name: "Hotel", TotalAmount: amount("300"),
	})
	require.NoError(t, err)

	t.Run("batch with an outsider writes nothing", func(t *testing.T) {
		err := f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, []ledger.Allocation{
			{UserID: bob.ID, Type: models.AllocationFixed, Amount: amount("100")},
			{UserID: carol.ID, Type: models.AllocationFixed, Amount: amount("100")},
			{UserID: dave.ID, Type: models.AllocationFixed, Amount: amount("100")},
		})
		assert.ErrorIs(t, err, ledger.ErrForbidden)

		got, err := f.store.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, got.Participants, 1)
		assert.Equal(t, alice.ID, got.Participants[0].UserID)
	})

	t.Run("lines are keyed by user", func(t *testing.T) {
		require.NoError(t, f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, []ledger.Allocation{
			{UserID: bob.ID, Type: models.AllocationFixed, Amount: amount("100")},
			{UserID: carol.ID, Type: models.AllocationPercentage, Amount: amount("10")},
		}))
		first, err := f.store.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		bobLine, ok := first.Participant(bob.ID)
		require.True(t, ok)

		require.NoError(t, f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, []ledger.Allocation{
			{UserID: bob.ID, Type: models.AllocationFixed, Amount: amount("120")},
			{UserID: bob.ID, Type: models.AllocationFixed, Amount: amount("150")},
		}))
		got, err := f.store.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, got.Participants, 3)

		updated, _ := got.Participant(bob.ID)
		assert.Equal(t, bobLine.ID, updated.ID)
		assert.True(t, updated.Amount.Equal(amount("150")), "amount %s", updated.Amount)
	})

	t.Run("expense of another group", func(t *testing.T) {
		other := f.group(t, alice, "Elsewhere")
		err := f.Allocation.UpsertParticipants(ctx, e.ID, other.ID, []ledger.Allocation{
			{UserID: alice.ID, Type: models.AllocationEqual},
		})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		before, err := f.store.GetExpense(ctx, e.ID)
		require.NoError(t, err)

		require.NoError(t, f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, nil))

		after, err := f.store.GetExpense(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Participants, after.Participants)

		other := f.group(t, bob, "Elsewhere")
		err = f.Allocation.UpsertParticipants(ctx, e.ID, other.ID, nil)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name  string
			batch []ledger.Allocation
		}{
			{"missing user", []ledger.Allocation{{Type: models.AllocationEqual}}},
			{"unknown type", []ledger.Allocation{{UserID: bob.ID, Type: "share"}}},
			{"negative", []ledger.Allocation{{UserID: bob.ID, Type: models.AllocationFixed, Amount: amount("-1")}}},
			{"over 100 percent", []ledger.Allocation{{UserID: bob.ID, Type: models.AllocationPercentage, Amount: amount("101")}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, tt.batch)
				assert.ErrorIs(t, err, ledger.ErrValidation)
			})
		}
	})

	assert.Positive(t, f.metrics.batches.Load())
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	g := f.group(t, alice, "Trip")
	f.join(t, bob, g)
	f.join(t, carol, g)

	e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: alice.ID, GroupID: g.ID, Name: "Dinner", TotalAmount: amount("30"),
	})
	require.NoError(t, err)
	require.NoError(t, f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, []ledger.Allocation{
		{UserID: bob.ID, Type: models.AllocationEqual},
	}))

	now := time.Now()
	assert.ErrorIs(t, f.Allocation.MarkPaid(ctx, carol.ID, e.ID, bob.ID, now), ledger.ErrForbidden)
	assert.ErrorIs(t, f.Allocation.MarkPaid(ctx, carol.ID, e.ID, carol.ID, now), ledger.ErrNotFound)
	require.NoError(t, f.Allocation.MarkPaid(ctx, bob.ID, e.ID, bob.ID, now))

	got, err := f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	line, _ := got.Participant(bob.ID)
	assert.NotNil(t, line.PaidAt)

	require.NoError(t, f.Allocation.ClearPaid(ctx, alice.ID, e.ID, bob.ID))
	got, err = f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	line, _ = got.Participant(bob.ID)
	assert.Nil(t, line.PaidAt)
}

// recurringExpense creates a weekly expense due at due with alice and bob on it.
func recurringExpense(t *testing.T, f *fixture, due time.Time) (*models.Expense, *models.User, *models.User) {
	t.Helper()
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	g := f.group(t, alice, "Flat")
	f.join(t, bob, g)

	e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: alice.ID, GroupID: g.ID, Name: "Rent", TotalAmount: amount("1000"),
		DueDate:    &due,
		Recurrence: &models.Recurrence{Duration: 7 * 24 * time.Hour, StartDate: due.Add(-7 * 24 * time.Hour)},
	})
	require.NoError(t, err)
	require.NoError(t, f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, []ledger.Allocation{
		{UserID: bob.ID, Type: models.AllocationEqual},
	}))
	return e, alice, bob
}

func TestRolloverIfDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour
	e, _, bob := recurringExpense(t, f, due)

	require.NoError(t, f.Allocation.MarkPaid(ctx, bob.ID, e.ID, bob.ID, due.Add(-time.Hour)))

	closed, err := f.Expenses.RolloverIfDue(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, closed)
	require.NotNil(t, closed.EndDate)
	assert.True(t, closed.EndDate.Equal(due))

	snap, ok := findLine(closed.Participants, bob.ID)
	require.True(t, ok)
	assert.NotNil(t, snap.PaidAt, "snapshot keeps the paid marker")

	got, err := f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(due.Add(week)))
	live, _ := got.Participant(bob.ID)
	assert.Nil(t, live.PaidAt, "live line is reset")
	assert.Equal(t, snap.ID, live.ID)

	closed, err = f.Expenses.RolloverIfDue(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.True(t, closed.EndDate.Equal(due.Add(week)))

	got, err = f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(due.Add(2*week)))

	history, err := f.store.ListHistory(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].EndDate.Equal(due))
	assert.True(t, history[1].EndDate.Equal(due.Add(week)))
	assert.EqualValues(t, 2, f.metrics.rolled.Load())
}

func TestRolloverIfDueSkipsOneOffExpenses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	g := f.group(t, alice, "Trip")
	due := time.Now().Add(-time.Hour)

	e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: alice.ID, GroupID: g.ID, Name: "Dinner", TotalAmount: amount("20"), DueDate: &due,
	})
	require.NoError(t, err)

	closed, err := f.Expenses.RolloverIfDue(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, closed)

	history, err := f.store.ListHistory(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.Expenses.RolloverIfDue(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRolloverPeriodIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _, _ := recurringExpense(t, f, due)

	first, err := f.Expenses.RolloverPeriod(ctx, e.ID, due)
	require.NoError(t, err)
	require.NotNil(t, first)

	again, err := f.Expenses.RolloverPeriod(ctx, e.ID, due)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.EqualValues(t, 1, f.metrics.skipped.Load())
}

func TestConcurrentRollover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _, _ := recurringExpense(t, f, due)

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		rolled int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			closed, err := f.Expenses.RolloverPeriod(ctx, e.ID, due)
			if !assert.NoError(t, err) {
				return
			}
			if closed != nil {
				mu.Lock()
				rolled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rolled)

	history, err := f.store.ListHistory(ctx, e.ID)
	require.NoError(t, err)
	closed := 0
	for _, h := range history {
		if !h.Open() {
			closed++
		}
	}
	assert.Equal(t, 1, closed)

	got, err := f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(due.Add(7*24*time.Hour)))
}

func TestRolloverDropsDepartedParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, alice, bob := recurringExpense(t, f, due)

	require.NoError(t, f.Membership.RemoveParticipant(ctx, bob.ID, e.GroupID))

	closed, err := f.Expenses.RolloverIfDue(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, closed)

	got, err := f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, alice.ID, got.Participants[0].UserID)
}

func TestDueExpenses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, _, _ := recurringExpense(t, f, due)

	list, err := f.Expenses.DueExpenses(ctx, due.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.Expenses.DueExpenses(ctx, due, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)

	for _, limit := range []int{0, -1} {
		list, err = f.Expenses.DueExpenses(ctx, due, limit)
		require.NoError(t, err)
		assert.Len(t, list, 1, "limit %d", limit)
	}
}

func TestDeleteExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, alice, bob := recurringExpense(t, f, due)
	_, err := f.Expenses.RolloverIfDue(ctx, e.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.Expenses.DeleteExpense(ctx, bob.ID, e.ID), ledger.ErrForbidden)
	require.NoError(t, f.Expenses.DeleteExpense(ctx, alice.ID, e.ID))

	_, err = f.Query.ExpenseLedger(ctx, alice.ID, e.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	history, err := f.store.ListHistory(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func findLine(lines []models.Participant, userID string) (models.Participant, bool) {
	for _, l := range lines {
		if l.UserID == userID {
			return l, true
		}
	}
	return models.Participant{}, false
}
