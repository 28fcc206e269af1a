package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/splitledger/internal/models"
)

func (s *Store) GetOpenHistory(ctx context.Context, expenseID string) (*models.ExpenseHistory, error) {
	var d historyDoc
	err := s.col(colHistory).FindOne(ctx, bson.M{"expense_id": expenseID, "open": true}).Decode(&d)
	if err != nil {
		return nil, wrapErr("get open history", err)
	}
	return fromHistoryDoc(&d)
}

// CreateHistory inserts an open record. The partial unique index on open
// records rejects a second one for the same expense.
func (s *Store) CreateHistory(ctx context.Context, h *models.ExpenseHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	_, err := s.col(colHistory).InsertOne(ctx, &historyDoc{
		ID:           h.ID,
		ExpenseID:    h.ExpenseID,
		Participants: toLineDocs(h.Participants),
		TotalAmount:  h.TotalAmount.String(),
		Open:         true,
		CreatedAt:    h.CreatedAt,
	})
	return wrapErr("create history", err)
}

// CloseHistory freezes the record only if it is still open.
func (s *Store) CloseHistory(ctx context.Context, historyID string, endDate time.Time, total decimal.Decimal, participants []models.Participant) (bool, error) {
	res, err := s.col(colHistory).UpdateOne(ctx,
		bson.M{"_id": historyID, "open": true},
		bson.M{"$set": bson.M{
			"open":         false,
			"end_date":     millis(&endDate),
			"total_amount": total.String(),
			"participants": toLineDocs(participants),
		}},
	)
	if err != nil {
		return false, wrapErr("close history", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) ListHistory(ctx context.Context, expenseID string) ([]*models.ExpenseHistory, error) {
	cur, err := s.col(colHistory).Find(ctx,
		bson.M{"expense_id": expenseID},
		options.Find().SetSort(bson.D{
			{Key: "open", Value: 1},
			{Key: "end_date", Value: 1},
			{Key: "created_at", Value: 1},
		}),
	)
	if err != nil {
		return nil, wrapErr("list history", err)
	}
	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("decode history", err)
	}

	records := make([]*models.ExpenseHistory, 0, len(docs))
	for i := range docs {
		h, err := fromHistoryDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		records = append(records, h)
	}
	return records, nil
}
