package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/splitledger/internal/models"
)

func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	for i := range expense.Participants {
		if expense.Participants[i].ID == "" {
			expense.Participants[i].ID = uuid.New().String()
		}
	}

	return s.atomic(ctx, func(ctx context.Context) error {
		if _, err := s.col(colExpenses).InsertOne(ctx, toExpenseDoc(expense)); err != nil {
			return wrapErr("insert expense", err)
		}
		if err := s.insertLines(ctx, expense.ID, expense.Participants, 0); err != nil {
			return err
		}

		res, err := s.col(colGroups).UpdateOne(ctx,
			bson.M{"_id": expense.GroupID},
			bson.M{"$addToSet": bson.M{"expense_ids": expense.ID}},
		)
		if err != nil {
			return wrapErr("add expense to group", err)
		}
		if err := matched(res, "add expense to group"); err != nil {
			return err
		}

		if expense.TopicID == "" {
			return nil
		}
		res, err = s.col(colTopics).UpdateOne(ctx,
			bson.M{"_id": expense.TopicID},
			bson.M{"$addToSet": bson.M{"expense_ids": expense.ID}},
		)
		if err != nil {
			return wrapErr("add expense to topic", err)
		}
		return matched(res, "add expense to topic")
	})
}

func (s *Store) insertLines(ctx context.Context, expenseID string, lines []models.Participant, position int) error {
	if len(lines) == 0 {
		return nil
	}
	docs := make([]any, 0, len(lines))
	for i, p := range lines {
		docs = append(docs, &participantDoc{
			ID:             p.ID,
			ExpenseID:      expenseID,
			UserID:         p.UserID,
			AllocationType: string(p.AllocationType),
			Amount:         p.Amount.String(),
			PaidAt:         millis(p.PaidAt),
			Position:       position + i,
		})
	}
	_, err := s.col(colParticipants).InsertMany(ctx, docs)
	return wrapErr("insert participant lines", err)
}

func (s *Store) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	var d expenseDoc
	if err := s.col(colExpenses).FindOne(ctx, bson.M{"_id": expenseID}).Decode(&d); err != nil {
		return nil, wrapErr("get expense", err)
	}
	expenses, err := s.withLines(ctx, []expenseDoc{d})
	if err != nil {
		return nil, err
	}
	return expenses[0], nil
}

// withLines converts expense documents and attaches their live lines, loaded
// in one query.
func (s *Store) withLines(ctx context.Context, docs []expenseDoc) ([]*models.Expense, error) {
	expenses := make([]*models.Expense, len(docs))
	byID := make(map[string]*models.Expense, len(docs))
	ids := make([]string, len(docs))
	for i := range docs {
		e, err := fromExpenseDoc(&docs[i])
		if err != nil {
			return nil, err
		}
		expenses[i] = e
		byID[e.ID] = e
		ids[i] = e.ID
	}
	if len(ids) == 0 {
		return expenses, nil
	}

	cur, err := s.col(colParticipants).Find(ctx,
		bson.M{"expense_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "expense_id", Value: 1}, {Key: "position", Value: 1}}),
	)
	if err != nil {
		return nil, wrapErr("get participant lines", err)
	}
	var lines []participantDoc
	if err := cur.All(ctx, &lines); err != nil {
		return nil, wrapErr("decode participant lines", err)
	}

	for _, l := range lines {
		p, err := fromLine(l.ID, l.UserID, l.AllocationType, l.Amount, l.PaidAt)
		if err != nil {
			return nil, err
		}
		e := byID[l.ExpenseID]
		e.Participants = append(e.Participants, p)
	}
	return expenses, nil
}

func (s *Store) ExpenseNameTaken(ctx context.Context, groupID, name string) (bool, error) {
	taken, err := s.exists(ctx, colExpenses, bson.M{"group_id": groupID, "name": name})
	return taken, wrapErr("check expense name", err)
}

func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	return s.findExpenses(ctx, "list expenses by group",
		bson.M{"group_id": groupID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
}

func (s *Store) ListDueRecurringExpenses(ctx context.Context, before time.Time, limit int) ([]*models.Expense, error) {
	return s.findExpenses(ctx, "list due recurring expenses",
		bson.M{
			"recurrence.duration_ms": bson.M{"$gt": 0},
			"due_date":               bson.M{"$ne": nil, "$lte": before.UTC()},
		},
		options.Find().
			SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(limit)),
	)
}

func (s *Store) findExpenses(ctx context.Context, op string, filter bson.M, opts *options.FindOptionsBuilder) ([]*models.Expense, error) {
	cur, err := s.col(colExpenses).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	var docs []expenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr(op, err)
	}
	return s.withLines(ctx, docs)
}

// DeleteExpense deletes the expense, its lines and history, and pulls it from
// its group and topic.
func (s *Store) DeleteExpense(ctx context.Context, expenseID, creatorID string) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		var d expenseDoc
		err := s.col(colExpenses).FindOne(ctx, bson.M{"_id": expenseID, "creator_id": creatorID}).Decode(&d)
		if err != nil {
			return wrapErr("delete expense", err)
		}

		_, err = s.col(colGroups).UpdateOne(ctx,
			bson.M{"_id": d.GroupID},
			bson.M{"$pull": bson.M{"expense_ids": expenseID}},
		)
		if err != nil {
			return wrapErr("pull expense from group", err)
		}
		if d.TopicID != "" {
			_, err = s.col(colTopics).UpdateOne(ctx,
				bson.M{"_id": d.TopicID},
				bson.M{"$pull": bson.M{"expense_ids": expenseID}},
			)
			if err != nil {
				return wrapErr("pull expense from topic", err)
			}
		}
		return s.deleteExpenses(ctx, []string{expenseID})
	})
}

func (s *Store) expenseIDs(ctx context.Context, filter bson.M) ([]string, error) {
	cur, err := s.col(colExpenses).Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, wrapErr("list expense ids", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("decode expense ids", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// deleteExpenses removes expense documents with their lines and history.
// Reference sets pointing at them are the caller's concern.
func (s *Store) deleteExpenses(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in := bson.M{"$in": ids}
	if _, err := s.col(colParticipants).DeleteMany(ctx, bson.M{"expense_id": in}); err != nil {
		return wrapErr("delete participant lines", err)
	}
	if _, err := s.col(colHistory).DeleteMany(ctx, bson.M{"expense_id": in}); err != nil {
		return wrapErr("delete history", err)
	}
	if _, err := s.col(colExpenses).DeleteMany(ctx, bson.M{"_id": in}); err != nil {
		return wrapErr("delete expenses", err)
	}
	return nil
}

// UpsertParticipants bulk-writes lines keyed by (expense_id, user_id) and adds
// the ids of inserted lines to the expense. An existing line keeps its id,
// position and paid marker.
func (s *Store) UpsertParticipants(ctx context.Context, expenseID string, lines []models.Participant) ([]string, error) {
	var inserted []string
	err := s.atomic(ctx, func(ctx context.Context) error {
		inserted = nil
		next, err := s.nextPosition(ctx, expenseID)
		if err != nil {
			return err
		}

		writes := make([]mongo.WriteModel, 0, len(lines))
		ids := make([]string, 0, len(lines))
		for i, p := range lines {
			id := uuid.New().String()
			ids = append(ids, id)
			writes = append(writes, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"expense_id": expenseID, "user_id": p.UserID}).
				SetUpdate(bson.M{
					"$set": bson.M{
						"allocation_type": string(p.AllocationType),
						"amount":          p.Amount.String(),
					},
					"$setOnInsert": bson.M{
						"_id":      id,
						"paid_at":  nil,
						"position": next + i,
					},
				}).
				SetUpsert(true))
		}
		if len(writes) == 0 {
			return nil
		}

		res, err := s.col(colParticipants).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
		if err != nil {
			return wrapErr("upsert participant lines", err)
		}
		for i := range writes {
			if _, ok := res.UpsertedIDs[int64(i)]; ok {
				inserted = append(inserted, ids[i])
			}
		}
		if len(inserted) == 0 {
			return nil
		}

		_, err = s.col(colExpenses).UpdateOne(ctx,
			bson.M{"_id": expenseID},
			bson.M{"$addToSet": bson.M{"participant_ids": bson.M{"$each": inserted}}},
		)
		return wrapErr("add lines to expense", err)
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *Store) nextPosition(ctx context.Context, expenseID string) (int, error) {
	var last participantDoc
	err := s.col(colParticipants).FindOne(ctx,
		bson.M{"expense_id": expenseID},
		options.FindOne().SetSort(bson.D{{Key: "position", Value: -1}}),
	).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("get next line position", err)
	}
	return last.Position + 1, nil
}

func (s *Store) SetParticipantPaid(ctx context.Context, expenseID, userID string, paidAt *time.Time) error {
	res, err := s.col(colParticipants).UpdateOne(ctx,
		bson.M{"expense_id": expenseID, "user_id": userID},
		bson.M{"$set": bson.M{"paid_at": millis(paidAt)}},
	)
	if err != nil {
		return wrapErr("set participant paid", err)
	}
	return matched(res, "set participant paid")
}

func (s *Store) RemoveParticipantLines(ctx context.Context, groupID, userID string) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		expenseIDs, err := s.expenseIDs(ctx, bson.M{"group_id": groupID})
		if err != nil || len(expenseIDs) == 0 {
			return err
		}
		return s.dropLines(ctx, bson.M{"user_id": userID, "expense_id": bson.M{"$in": expenseIDs}})
	})
}

// dropLines deletes the lines matching filter and pulls their ids from the
// owning expenses.
func (s *Store) dropLines(ctx context.Context, filter bson.M) error {
	cur, err := s.col(colParticipants).Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return wrapErr("find participant lines", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return wrapErr("decode participant lines", err)
	}
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	if _, err := s.col(colParticipants).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return wrapErr("delete participant lines", err)
	}
	_, err = s.col(colExpenses).UpdateMany(ctx,
		bson.M{"participant_ids": bson.M{"$in": ids}},
		bson.M{"$pull": bson.M{"participant_ids": bson.M{"$in": ids}}},
	)
	return wrapErr("pull lines from expenses", err)
}

func (s *Store) ResetParticipants(ctx context.Context, expenseID string, lines []models.Participant) error {
	fresh := make([]models.Participant, len(lines))
	ids := make([]string, len(lines))
	for i, p := range lines {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		fresh[i] = p
		ids[i] = p.ID
	}

	return s.atomic(ctx, func(ctx context.Context) error {
		if _, err := s.col(colParticipants).DeleteMany(ctx, bson.M{"expense_id": expenseID}); err != nil {
			return wrapErr("clear participant lines", err)
		}
		if err := s.insertLines(ctx, expenseID, fresh, 0); err != nil {
			return err
		}
		res, err := s.col(colExpenses).UpdateOne(ctx,
			bson.M{"_id": expenseID},
			bson.M{"$set": bson.M{"participant_ids": ids}},
		)
		if err != nil {
			return wrapErr("reset expense lines", err)
		}
		return matched(res, "reset expense lines")
	})
}

func (s *Store) AdvanceDueDate(ctx context.Context, expenseID string, from, to time.Time) (bool, error) {
	res, err := s.col(colExpenses).UpdateOne(ctx,
		bson.M{"_id": expenseID, "due_date": *millis(&from)},
		bson.M{"$set": bson.M{"due_date": *millis(&to)}},
	)
	if err != nil {
		return false, wrapErr("advance due date", err)
	}
	return res.ModifiedCount > 0, nil
}
