package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// These tests need no server.

func TestExpenseDocRoundTrip(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))
	created := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	e := &models.Expense{
		ID:          "e-1",
		Name:        "Rent",
		GroupID:     "g-1",
		TopicID:     "t-1",
		CreatorID:   "u-1",
		TotalAmount: decimal.RequireFromString("950.75"),
		DueDate:     &due,
		Recurrence:  &models.Recurrence{Duration: 7 * 24 * time.Hour, StartDate: created},
		Participants: []models.Participant{
			{ID: "p-1", UserID: "u-1"},
			{ID: "p-2", UserID: "u-2"},
		},
		CreatedAt: created,
	}

	raw, err := bson.Marshal(toExpenseDoc(e))
	require.NoError(t, err)
	var doc expenseDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))

	assert.Equal(t, []string{"p-1", "p-2"}, doc.ParticipantIDs)
	assert.Equal(t, int64(7*24*time.Hour/time.Millisecond), doc.Recurrence.DurationMs)

	got, err := fromExpenseDoc(&doc)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.TopicID, got.TopicID)
	assert.True(t, got.TotalAmount.Equal(e.TotalAmount), "total %s", got.TotalAmount)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due.Truncate(time.Millisecond)), "due %v", got.DueDate)
	assert.Equal(t, time.UTC, got.DueDate.Location())
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, e.Recurrence.Duration, got.Recurrence.Duration)
	assert.True(t, got.Recurrence.StartDate.Equal(created))
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestFromExpenseDoc(t *testing.T) {
	t.Run("one-off expense", func(t *testing.T) {
		got, err := fromExpenseDoc(&expenseDoc{ID: "e-1", TotalAmount: "10"})
		require.NoError(t, err)
		assert.Nil(t, got.DueDate)
		assert.Nil(t, got.Recurrence)
	})

	t.Run("zero duration is not a recurrence", func(t *testing.T) {
		got, err := fromExpenseDoc(&expenseDoc{ID: "e-1", TotalAmount: "10", Recurrence: &recurrenceDoc{}})
		require.NoError(t, err)
		assert.Nil(t, got.Recurrence)
	})

	t.Run("bad total", func(t *testing.T) {
		_, err := fromExpenseDoc(&expenseDoc{ID: "e-1", TotalAmount: "ten"})
		assert.Error(t, err)
	})
}

func TestFromHistoryDoc(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	paid := time.Date(2026, 2, 20, 9, 15, 0, 500_000_000, time.UTC)
	lines := toLineDocs([]models.Participant{
		{ID: "p-1", UserID: "u-1", AllocationType: models.AllocationEqual, Amount: decimal.Zero},
		{ID: "p-2", UserID: "u-2", AllocationType: models.AllocationFixed, Amount: decimal.RequireFromString("30.5"), PaidAt: &paid},
	})

	h, err := fromHistoryDoc(&historyDoc{
		ID:           "h-1",
		ExpenseID:    "e-1",
		Participants: lines,
		TotalAmount:  "90",
		EndDate:      &end,
	})
	require.NoError(t, err)
	assert.True(t, h.TotalAmount.Equal(decimal.NewFromInt(90)))
	require.NotNil(t, h.EndDate)
	assert.True(t, h.EndDate.Equal(end))
	require.Len(t, h.Participants, 2)
	assert.Nil(t, h.Participants[0].PaidAt)
	assert.Equal(t, models.AllocationFixed, h.Participants[1].AllocationType)
	assert.True(t, h.Participants[1].Amount.Equal(decimal.RequireFromString("30.5")))
	require.NotNil(t, h.Participants[1].PaidAt)
	assert.True(t, h.Participants[1].PaidAt.Equal(paid))

	_, err = fromHistoryDoc(&historyDoc{ID: "h-2", TotalAmount: "90", Participants: []lineDoc{{ID: "p-1", Amount: "x"}}})
	assert.Error(t, err)
}

func TestMillis(t *testing.T) {
	assert.Nil(t, millis(nil))
	assert.Nil(t, utc(nil))

	in := time.Date(2026, 1, 2, 3, 4, 5, 678_901_234, time.FixedZone("EST", -5*3600))
	got := millis(&in)
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 678_000_000, got.Nanosecond())
	assert.True(t, got.Equal(in.Truncate(time.Millisecond)))

	raw, err := bson.Marshal(bson.M{"at": *got})
	require.NoError(t, err)
	var back struct {
		At time.Time `bson:"at"`
	}
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.True(t, back.At.Equal(*got), "BSON read back %v, wrote %v", back.At, *got)
}

func TestWrapErr(t *testing.T) {
	assert.NoError(t, wrapErr("noop", nil))

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no documents", mongo.ErrNoDocuments, storage.ErrNotFound},
		{"duplicate key", dup, storage.ErrDuplicateKey},
		{"deadline", context.DeadlineExceeded, storage.ErrTransient},
		{"canceled", fmt.Errorf("find: %w", context.Canceled), storage.ErrTransient},
		{"sentinel passes through", fmt.Errorf("get group: %w", storage.ErrNotFound), storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, wrapErr("op", tt.err), tt.want)
		})
	}

	other := errors.New("boom")
	err := wrapErr("op", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, storage.ErrTransient)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, dedupe(nil))
}
