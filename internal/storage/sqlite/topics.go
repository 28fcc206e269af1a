package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

// CreateTopic inserts a topic. The group's topic set is derived from topics.group_id.
func (s *SQLiteStore) CreateTopic(ctx context.Context, topic *models.Topic) error {
	if topic.ID == "" {
		topic.ID = uuid.New().String()
	}
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO topics (id, group_id, name, description, creator_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		topic.ID, topic.GroupID, topic.Name, topic.Description, topic.CreatorID, toMillis(topic.CreatedAt),
	)
	return wrapErr("create topic", err)
}

// GetTopic retrieves a topic with the IDs of the expenses filed under it.
func (s *SQLiteStore) GetTopic(ctx context.Context, topicID string) (*models.Topic, error) {
	topic := &models.Topic{}
	var createdAt int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, group_id, name, description, creator_id, created_at
		 FROM topics WHERE id = ?`,
		topicID,
	).Scan(&topic.ID, &topic.GroupID, &topic.Name, &topic.Description, &topic.CreatorID, &createdAt)
	if err != nil {
		return nil, wrapErr("get topic", err)
	}
	topic.CreatedAt = fromMillis(createdAt)

	topic.ExpenseIDs, err = queryStrings(ctx, s.q, "get topic expenses",
		"SELECT id FROM expenses WHERE topic_id = ? ORDER BY created_at, rowid",
		topicID,
	)
	if err != nil {
		return nil, err
	}
	return topic, nil
}

// TopicNameTaken reports whether another topic of the group is called name.
func (s *SQLiteStore) TopicNameTaken(ctx context.Context, groupID, name, exceptID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM topics WHERE group_id = ? AND name = ? AND id <> ?)",
		groupID, name, exceptID,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("check topic name", err)
	}
	return exists, nil
}

// UpdateTopic changes the name and description of a topic owned by creatorID.
func (s *SQLiteStore) UpdateTopic(ctx context.Context, topicID, creatorID, name, description string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE topics SET name = ?, description = ? WHERE id = ? AND creator_id = ?",
		name, description, topicID, creatorID,
	)
	if err != nil {
		return wrapErr("update topic", err)
	}
	return notFound(res, "update topic")
}

// DeleteTopic deletes a topic owned by creatorID. Its expenses stay in the
// group with topic_id cleared by ON DELETE SET NULL.
func (s *SQLiteStore) DeleteTopic(ctx context.Context, topicID, creatorID string) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM topics WHERE id = ? AND creator_id = ?",
		topicID, creatorID,
	)
	if err != nil {
		return wrapErr("delete topic", err)
	}
	return notFound(res, "delete topic")
}
