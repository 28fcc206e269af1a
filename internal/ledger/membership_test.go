package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
)

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	t.Run("creator is the only participant and mirrors the group", func(t *testing.T) {
		g := f.group(t, alice, "Trip")
		assert.Equal(t, []string{alice.ID}, g.Participants)
		assert.NotEmpty(t, g.InviteCode)

		u, err := f.Users.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Contains(t, u.Groups, g.ID)
	})

	t.Run("names are unique per creator only", func(t *testing.T) {
		_, err := f.Membership.CreateGroup(ctx, bob.ID, "Trip")
		require.NoError(t, err)

		_, err = f.Membership.CreateGroup(ctx, alice.ID, "Trip")
		assert.ErrorIs(t, err, ledger.ErrConflict)
	})

	t.Run("short names are rejected", func(t *testing.T) {
		_, err := f.Membership.CreateGroup(ctx, alice.ID, " ab ")
		assert.ErrorIs(t, err, ledger.ErrValidation)

		var verr *ledger.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "name", verr.Field)
	})

	t.Run("unknown creator", func(t *testing.T) {
		_, err := f.Membership.CreateGroup(ctx, "nobody", "Ghosts")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	assert.Positive(t, f.metrics.membership.Load())
}

func TestEditGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	trip := f.group(t, alice, "Trip")
	f.group(t, alice, "Flat")

	t.Run("rename", func(t *testing.T) {
		g, err := f.Membership.EditGroup(ctx, alice.ID, trip.ID, "Road Trip")
		require.NoError(t, err)
		assert.Equal(t, "Road Trip", g.Name)
	})

	t.Run("keeping the own name is allowed", func(t *testing.T) {
		_, err := f.Membership.EditGroup(ctx, alice.ID, trip.ID, "Road Trip")
		assert.NoError(t, err)
	})

	t.Run("collision with another group of the creator", func(t *testing.T) {
		_, err := f.Membership.EditGroup(ctx, alice.ID, trip.ID, "Flat")
		assert.ErrorIs(t, err, ledger.ErrConflict)
	})

	t.Run("not the creator", func(t *testing.T) {
		_, err := f.Membership.EditGroup(ctx, bob.ID, trip.ID, "Hijacked")
		assert.ErrorIs(t, err, ledger.ErrForbidden)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := f.Membership.EditGroup(ctx, alice.ID, "missing", "Whatever")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestDeleteGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	g := f.group(t, alice, "Trip")
	f.join(t, bob, g)

	exp, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: alice.ID, GroupID: g.ID, Name: "Dinner", TotalAmount: amount("40"),
	})
	require.NoError(t, err)

	err = f.Membership.DeleteGroup(ctx, bob.ID, g.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	require.NoError(t, f.Membership.DeleteGroup(ctx, alice.ID, g.ID))

	_, err = f.Membership.GetGroup(ctx, alice.ID, g.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = f.store.GetExpense(ctx, exp.ID)
	assert.Error(t, err)

	for _, u := range []*models.User{alice, bob} {
		got, err := f.Users.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.Groups, g.ID)
	}

	err = f.Membership.DeleteGroup(ctx, alice.ID, g.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRedeemInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	g := f.group(t, alice, "Trip")

	first, err := f.Membership.RedeemInvite(ctx, bob.ID, g.InviteCode)
	require.NoError(t, err)
	assert.Len(t, first.Participants, 2)

	second, err := f.Membership.RedeemInvite(ctx, bob.ID, g.InviteCode)
	require.NoError(t, err)
	assert.ElementsMatch(t, first.Participants, second.Participants)

	u, err := f.Users.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{g.ID}, u.Groups)

	_, err = f.Membership.RedeemInvite(ctx, bob.ID, "no-such-code")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRegenerateInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	g := f.group(t, alice, "Trip")

	_, err := f.Membership.RegenerateInvite(ctx, bob.ID, g.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	code, err := f.Membership.RegenerateInvite(ctx, alice.ID, g.ID)
	require.NoError(t, err)
	assert.NotEqual(t, g.InviteCode, code)

	_, err = f.Membership.RedeemInvite(ctx, carol.ID, g.InviteCode)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.Membership.RedeemInvite(ctx, carol.ID, code)
	assert.NoError(t, err)
}

func TestRemoveParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	g := f.group(t, alice, "Trip")
	f.join(t, bob, g)
	f.join(t, carol, g)

	exp, err := f.Expenses.CreateExpense(ctx, ledger.NewExpense{
		CreatorID: alice.ID, GroupID: g.ID, Name: "Dinner", TotalAmount: amount("90"),
	})
	require.NoError(t, err)
	require.NoError(t, f.Allocation.UpsertParticipants(ctx, exp.ID, g.ID, []ledger.Allocation{
		{UserID: bob.ID, Type: models.AllocationEqual},
		{UserID: carol.ID, Type: models.AllocationEqual},
	}))

	t.Run("creator cannot be removed", func(t *testing.T) {
		err := f.Membership.RemoveParticipant(ctx, alice.ID, g.ID)
		assert.ErrorIs(t, err, ledger.ErrForbidden)

		got, err := f.Membership.GetGroup(ctx, alice.ID, g.ID)
		require.NoError(t, err)
		assert.Contains(t, got.Participants, alice.ID)
	})

	t.Run("participant leaves and loses its lines", func(t *testing.T) {
		require.NoError(t, f.Membership.RemoveParticipant(ctx, bob.ID, g.ID))

		got, err := f.Membership.GetGroup(ctx, alice.ID, g.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.Participants, bob.ID)

		u, err := f.Users.GetUser(ctx, bob.ID)
		require.NoError(t, err)
		assert.NotContains(t, u.Groups, g.ID)

		e, err := f.store.GetExpense(ctx, exp.ID)
		require.NoError(t, err)
		_, ok := e.Participant(bob.ID)
		assert.False(t, ok)
	})

	t.Run("removing a non participant", func(t *testing.T) {
		err := f.Membership.RemoveParticipant(ctx, bob.ID, g.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("only the creator kicks", func(t *testing.T) {
		err := f.Membership.KickParticipant(ctx, carol.ID, carol.ID, g.ID)
		assert.ErrorIs(t, err, ledger.ErrForbidden)

		require.NoError(t, f.Membership.KickParticipant(ctx, alice.ID, carol.ID, g.ID))
		got, err := f.Membership.GetGroup(ctx, alice.ID, g.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{alice.ID}, got.Participants)
	})
}

func TestCreatorAlwaysParticipates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	g := f.group(t, alice, "Trip")

	ops := []func(){
		func() { f.join(t, bob, g) },
		func() { _ = f.Membership.RemoveParticipant(ctx, alice.ID, g.ID) },
		func() { _ = f.Membership.KickParticipant(ctx, alice.ID, alice.ID, g.ID) },
		func() { _ = f.Membership.RemoveParticipant(ctx, bob.ID, g.ID) },
		func() { _, _ = f.Membership.EditGroup(ctx, alice.ID, g.ID, "Trip 2") },
		func() { _, _ = f.Membership.RegenerateInvite(ctx, alice.ID, g.ID) },
	}
	for i, op := range ops {
		op()
		got, err := f.Membership.GetGroup(ctx, alice.ID, g.ID)
		require.NoError(t, err, "after op %d", i)
		assert.Contains(t, got.Participants, alice.ID, "after op %d", i)
	}
}

func TestCheckParticipantsExist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	g := f.group(t, alice, "Trip")
	f.join(t, bob, g)
	topic, err := f.Topics.CreateTopic(ctx, alice.ID, g.ID, "Food", "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		scope models.MembershipScope
		users []string
		want  bool
	}{
		{"group subset", models.GroupScope(g.ID), []string{alice.ID, bob.ID}, true},
		{"duplicates tolerated", models.GroupScope(g.ID), []string{bob.ID, bob.ID, alice.ID}, true},
		{"outsider", models.GroupScope(g.ID), []string{alice.ID, carol.ID}, false},
		{"topic resolves to its group", models.TopicScope(topic.ID), []string{bob.ID}, true},
		{"topic outsider", models.TopicScope(topic.ID), []string{carol.ID}, false},
		{"missing group", models.GroupScope("missing"), []string{alice.ID}, false},
		{"missing topic", models.TopicScope("missing"), []string{alice.ID}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Membership.CheckParticipantsExist(ctx, tt.scope, tt.users)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetGroupRequiresParticipation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	g := f.group(t, alice, "Trip")
	f.group(t, bob, "Flat")

	_, err := f.Membership.GetGroup(ctx, bob.ID, g.ID)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	groups, err := f.Membership.ListGroups(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Flat", groups[0].Name)
}

func TestTransientOnCanceledContext(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Membership.CreateGroup(ctx, alice.ID, "Trip")
	require.Error(t, err)
	assert.True(t, ledger.IsRetryable(err), "got %v", err)
}
