package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
)

// TestTripScenario walks a group from creation to balances.
func TestTripScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := f.user(t, "user-one")
	u2 := f.user(t, "user-two")
	u3 := f.user(t, "user-three")

	trip := f.group(t, u1, "Trip")
	f.join(t, u3, trip)

	dinner, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: u1.ID, GroupID: trip.ID, Name: "Dinner", TotalAmount: amount("90"),
	})
	require.NoError(t, err)

	err = f.Allocation.UpsertParticipants(ctx, dinner.ID, trip.ID, []ledger.Allocation{
		{UserID: u2.ID, Type: models.AllocationEqual},
	})
	require.ErrorIs(t, err, ledger.ErrForbidden)

	require.NoError(t, f.Allocation.UpsertParticipants(ctx, dinner.ID, trip.ID, []ledger.Allocation{
		{UserID: u3.ID, Type: models.AllocationFixed, Amount: amount("30")},
	}))

	view, err := f.Query.ExpenseLedger(ctx, u3.ID, dinner.ID)
	require.NoError(t, err)
	require.Len(t, view.Shares, 2)
	assert.Equal(t, u1.ID, view.Shares[0].UserID)
	assert.True(t, view.Shares[0].Amount.Equal(amount("60")), "u1 share %s", view.Shares[0].Amount)
	assert.True(t, view.Shares[1].Amount.Equal(amount("30")), "u3 share %s", view.Shares[1].Amount)
	assert.True(t, view.Unallocated.IsZero())
	assert.Empty(t, view.History)

	_, err = f.Query.ExpenseLedger(ctx, u2.ID, dinner.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	balances, err := f.Query.GroupBalances(ctx, u1.ID, trip.ID)
	require.NoError(t, err)
	require.Len(t, balances.Debts, 1)
	assert.Equal(t, u3.ID, balances.Debts[0].From)
	assert.Equal(t, u1.ID, balances.Debts[0].To)
	assert.True(t, balances.Debts[0].Amount.Equal(amount("30")))

	require.NoError(t, f.Allocation.MarkPaid(ctx, u3.ID, dinner.ID, u3.ID, time.Now()))
	balances, err = f.Query.GroupBalances(ctx, u3.ID, trip.ID)
	require.NoError(t, err)
	assert.Empty(t, balances.Debts)

	list, err := f.Query.ListExpenses(ctx, u3.ID, trip.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Dinner", list[0].Name)

	_, err = f.Query.ListExpenses(ctx, u2.ID, trip.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestExpenseLedgerReportsUnallocated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	g := f.group(t, alice, "Flat")
	f.join(t, bob, g)

	e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: alice.ID, GroupID: g.ID, Name: "Utilities", TotalAmount: amount("100"),
	})
	require.NoError(t, err)
	require.NoError(t, f.Allocation.UpsertParticipants(ctx, e.ID, g.ID, []ledger.Allocation{
		{UserID: alice.ID, Type: models.AllocationPercentage, Amount: amount("40")},
		{UserID: bob.ID, Type: models.AllocationPercentage, Amount: amount("40")},
	}))

	view, err := f.Query.ExpenseLedger(ctx, bob.ID, e.ID)
	require.NoError(t, err)
	assert.True(t, view.Unallocated.Equal(amount("20")), "unallocated %s", view.Unallocated)
}

func TestTopics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	g := f.group(t, alice, "Trip")
	f.join(t, bob, g)

	food, err := f.Topics.CreateTopic(ctx, bob.ID, g.ID, "Food", "  meals ")
	require.NoError(t, err)
	assert.Equal(t, "meals", food.Description)

	_, err = f.Topics.CreateTopic(ctx, alice.ID, g.ID, "Food", "")
	assert.ErrorIs(t, err, ledger.ErrConflict)

	_, err = f.Topics.CreateTopic(ctx, carol.ID, g.ID, "Drinks", "")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = f.Topics.EditTopic(ctx, alice.ID, food.ID, "Meals", "")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	edited, err := f.Topics.EditTopic(ctx, bob.ID, food.ID, "Meals", "all of them")
	require.NoError(t, err)
	assert.Equal(t, "Meals", edited.Name)

	_, err = f.Topics.GetTopic(ctx, carol.ID, food.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	e, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: bob.ID, GroupID: g.ID, TopicID: food.ID, Name: "Lunch", TotalAmount: amount("12"),
	})
	require.NoError(t, err)

	require.NoError(t, f.Topics.DeleteTopic(ctx, bob.ID, food.ID))
	_, err = f.Topics.GetTopic(ctx, bob.ID, food.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	got, err := f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TopicID)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.Users.Register(ctx, "alice2", "ALICE@example.com", "secret123")
		assert.ErrorIs(t, err, ledger.ErrConflict)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.Users.Register(ctx, "zed", "not-an-email", "secret123")
		assert.ErrorIs(t, err, ledger.ErrValidation)
		_, err = f.Users.Register(ctx, "zed", "zed@example.com", "123")
		assert.ErrorIs(t, err, ledger.ErrValidation)
	})

	t.Run("authenticate", func(t *testing.T) {
		u, err := f.Users.Authenticate(ctx, " Alice@Example.com ", "secret123")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)

		_, err = f.Users.Authenticate(ctx, "alice@example.com", "wrong")
		assert.ErrorIs(t, err, ledger.ErrInvalidCredentials)
		_, err = f.Users.Authenticate(ctx, "nobody@example.com", "secret123")
		assert.ErrorIs(t, err, ledger.ErrInvalidCredentials)
	})

	t.Run("rename", func(t *testing.T) {
		f.user(t, "bobby")
		_, err := f.Users.RenameUser(ctx, alice.ID, "bobby")
		assert.ErrorIs(t, err, ledger.ErrConflict)

		u, err := f.Users.RenameUser(ctx, alice.ID, "alicia")
		require.NoError(t, err)
		assert.Equal(t, "alicia", u.Username)
	})

	t.Run("owners cannot be deleted", func(t *testing.T) {
		g := f.group(t, alice, "Trip")
		assert.ErrorIs(t, f.Users.DeleteUser(ctx, alice.ID), ledger.ErrConflict)

		require.NoError(t, f.Membership.DeleteGroup(ctx, alice.ID, g.ID))
		require.NoError(t, f.Users.DeleteUser(ctx, alice.ID))
		_, err := f.Users.GetUser(ctx, alice.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}
