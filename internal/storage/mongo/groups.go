package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/splitledger/internal/models"
)

func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	return s.atomic(ctx, func(ctx context.Context) error {
		_, err := s.col(colGroups).InsertOne(ctx, &groupDoc{
			ID:           group.ID,
			Name:         group.Name,
			CreatorID:    group.CreatorID,
			Participants: []string{group.CreatorID},
			InviteCode:   group.InviteCode,
			TopicIDs:     []string{},
			ExpenseIDs:   []string{},
			CreatedAt:    group.CreatedAt,
		})
		if err != nil {
			return wrapErr("insert group", err)
		}

		res, err := s.col(colUsers).UpdateOne(ctx,
			bson.M{"_id": group.CreatorID},
			bson.M{"$addToSet": bson.M{"groups": group.ID}},
		)
		if err != nil {
			return wrapErr("add group to creator", err)
		}
		if err := matched(res, "add group to creator"); err != nil {
			return err
		}

		group.Participants = []string{group.CreatorID}
		return nil
	})
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return s.getGroupBy(ctx, "_id", groupID)
}

func (s *Store) GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	return s.getGroupBy(ctx, "invite_code", code)
}

func (s *Store) getGroupBy(ctx context.Context, field, value string) (*models.Group, error) {
	var d groupDoc
	if err := s.col(colGroups).FindOne(ctx, bson.M{field: value}).Decode(&d); err != nil {
		return nil, wrapErr("get group by "+field, err)
	}
	return fromGroupDoc(&d), nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	cur, err := s.col(colGroups).Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, wrapErr("list groups for user", err)
	}
	var docs []groupDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrapErr("decode groups", err)
	}

	groups := make([]*models.Group, len(docs))
	for i := range docs {
		groups[i] = fromGroupDoc(&docs[i])
	}
	return groups, nil
}

func (s *Store) GroupNameTaken(ctx context.Context, creatorID, name, exceptID string) (bool, error) {
	taken, err := s.exists(ctx, colGroups, bson.M{
		"creator_id": creatorID,
		"name":       name,
		"_id":        bson.M{"$ne": exceptID},
	})
	return taken, wrapErr("check group name", err)
}

func (s *Store) RenameGroup(ctx context.Context, groupID, creatorID, name string) error {
	res, err := s.col(colGroups).UpdateOne(ctx,
		bson.M{"_id": groupID, "creator_id": creatorID},
		bson.M{"$set": bson.M{"name": name}},
	)
	if err != nil {
		return wrapErr("rename group", err)
	}
	return matched(res, "rename group")
}

// DeleteGroup deletes the group with its topics, expenses, allocation lines
// and history, and pulls it from every participant's membership set.
func (s *Store) DeleteGroup(ctx context.Context, groupID, creatorID string) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		var d groupDoc
		err := s.col(colGroups).FindOneAndDelete(ctx, bson.M{"_id": groupID, "creator_id": creatorID}).Decode(&d)
		if err != nil {
			return wrapErr("delete group", err)
		}

		_, err = s.col(colUsers).UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": d.Participants}},
			bson.M{"$pull": bson.M{"groups": groupID}},
		)
		if err != nil {
			return wrapErr("pull group from users", err)
		}

		if _, err := s.col(colTopics).DeleteMany(ctx, bson.M{"group_id": groupID}); err != nil {
			return wrapErr("delete group topics", err)
		}

		expenseIDs, err := s.expenseIDs(ctx, bson.M{"group_id": groupID})
		if err != nil {
			return err
		}
		return s.deleteExpenses(ctx, expenseIDs)
	})
}

func (s *Store) SetInviteCode(ctx context.Context, groupID, creatorID, code string) error {
	res, err := s.col(colGroups).UpdateOne(ctx,
		bson.M{"_id": groupID, "creator_id": creatorID},
		bson.M{"$set": bson.M{"invite_code": code}},
	)
	if err != nil {
		return wrapErr("set invite code", err)
	}
	return matched(res, "set invite code")
}

func (s *Store) AddGroupParticipant(ctx context.Context, groupID, userID string) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		res, err := s.col(colGroups).UpdateOne(ctx,
			bson.M{"_id": groupID},
			bson.M{"$addToSet": bson.M{"participants": userID}},
		)
		if err != nil {
			return wrapErr("add group participant", err)
		}
		if err := matched(res, "add group participant"); err != nil {
			return err
		}

		res, err = s.col(colUsers).UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{"$addToSet": bson.M{"groups": groupID}},
		)
		if err != nil {
			return wrapErr("add group to user", err)
		}
		return matched(res, "add group to user")
	})
}

// RemoveGroupParticipant matches only when userID is a participant and not
// the creator.
func (s *Store) RemoveGroupParticipant(ctx context.Context, groupID, userID string) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		res, err := s.col(colGroups).UpdateOne(ctx,
			bson.M{
				"_id":          groupID,
				"participants": userID,
				"creator_id":   bson.M{"$ne": userID},
			},
			bson.M{"$pull": bson.M{"participants": userID}},
		)
		if err != nil {
			return wrapErr("remove group participant", err)
		}
		if err := matched(res, "remove group participant"); err != nil {
			return err
		}

		_, err = s.col(colUsers).UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{"$pull": bson.M{"groups": groupID}},
		)
		return wrapErr("pull group from user", err)
	})
}

func (s *Store) HasParticipants(ctx context.Context, groupID string, userIDs []string) (bool, error) {
	filter := bson.M{"_id": groupID}
	// $all with an empty array matches nothing.
	if unique := dedupe(userIDs); len(unique) > 0 {
		filter["participants"] = bson.M{"$all": unique}
	}
	ok, err := s.exists(ctx, colGroups, filter)
	return ok, wrapErr("check group participants", err)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
