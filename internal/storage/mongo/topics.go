package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mmynk/splitledger/internal/models"
)

func (s *Store) CreateTopic(ctx context.Context, topic *models.Topic) error {
	if topic.ID == "" {
		topic.ID = uuid.New().String()
	}
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	return s.atomic(ctx, func(ctx context.Context) error {
		_, err := s.col(colTopics).InsertOne(ctx, &topicDoc{
			ID:          topic.ID,
			GroupID:     topic.GroupID,
			Name:        topic.Name,
			Description: topic.Description,
			CreatorID:   topic.CreatorID,
			ExpenseIDs:  []string{},
			CreatedAt:   topic.CreatedAt,
		})
		if err != nil {
			return wrapErr("insert topic", err)
		}

		res, err := s.col(colGroups).UpdateOne(ctx,
			bson.M{"_id": topic.GroupID},
			bson.M{"$addToSet": bson.M{"topic_ids": topic.ID}},
		)
		if err != nil {
			return wrapErr("add topic to group", err)
		}
		return matched(res, "add topic to group")
	})
}

func (s *Store) GetTopic(ctx context.Context, topicID string) (*models.Topic, error) {
	var d topicDoc
	if err := s.col(colTopics).FindOne(ctx, bson.M{"_id": topicID}).Decode(&d); err != nil {
		return nil, wrapErr("get topic", err)
	}
	return fromTopicDoc(&d), nil
}

func (s *Store) TopicNameTaken(ctx context.Context, groupID, name, exceptID string) (bool, error) {
	taken, err := s.exists(ctx, colTopics, bson.M{
		"group_id": groupID,
		"name":     name,
		"_id":      bson.M{"$ne": exceptID},
	})
	return taken, wrapErr("check topic name", err)
}

func (s *Store) UpdateTopic(ctx context.Context, topicID, creatorID, name, description string) error {
	res, err := s.col(colTopics).UpdateOne(ctx,
		bson.M{"_id": topicID, "creator_id": creatorID},
		bson.M{"$set": bson.M{"name": name, "description": description}},
	)
	if err != nil {
		return wrapErr("update topic", err)
	}
	return matched(res, "update topic")
}

// DeleteTopic removes the topic from its group and detaches its expenses.
func (s *Store) DeleteTopic(ctx context.Context, topicID, creatorID string) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		var d topicDoc
		err := s.col(colTopics).FindOneAndDelete(ctx, bson.M{"_id": topicID, "creator_id": creatorID}).Decode(&d)
		if err != nil {
			return wrapErr("delete topic", err)
		}

		_, err = s.col(colGroups).UpdateOne(ctx,
			bson.M{"_id": d.GroupID},
			bson.M{"$pull": bson.M{"topic_ids": topicID}},
		)
		if err != nil {
			return wrapErr("pull topic from group", err)
		}

		_, err = s.col(colExpenses).UpdateMany(ctx,
			bson.M{"topic_id": topicID},
			bson.M{"$unset": bson.M{"topic_id": ""}},
		)
		return wrapErr("detach topic expenses", err)
	})
}
