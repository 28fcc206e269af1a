package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// TopicService manages topics. Every mutation requires the actor to be a
// participant of the topic's group.
type TopicService struct {
	*base
}

// CreateTopic creates a topic in groupID. Topic names are unique per group.
func (s *TopicService) CreateTopic(ctx context.Context, userID, groupID, name, description string) (*models.Topic, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	topic := &models.Topic{
		GroupID:     groupID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatorID:   userID,
		CreatedAt:   s.now(),
	}
	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := memberGroup(ctx, tx, userID, groupID); err != nil {
			return err
		}
		taken, err := tx.TopicNameTaken(ctx, groupID, name, "")
		if err != nil {
			return translate("check topic name", err)
		}
		if taken {
			return fmt.Errorf("topic %q: %w", name, ErrConflict)
		}
		return translate("create topic", tx.CreateTopic(ctx, topic))
	})
	err = translate("create topic", err)
	s.opts.Metrics.MembershipMutation("create_topic", result(err))
	if err != nil {
		return nil, err
	}
	s.log().Info("topic created", "topic_id", topic.ID, "group_id", groupID, "user_id", userID)
	return topic, nil
}

// EditTopic updates the name and description of a topic. Only its creator,
// still a participant of the group, may edit it.
func (s *TopicService) EditTopic(ctx context.Context, creatorID, topicID, name, description string) (*models.Topic, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	var topic *models.Topic
	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		var err error
		if topic, err = ownedTopic(ctx, tx, creatorID, topicID); err != nil {
			return err
		}
		if _, err := memberGroup(ctx, tx, creatorID, topic.GroupID); err != nil {
			return err
		}
		taken, err := tx.TopicNameTaken(ctx, topic.GroupID, name, topicID)
		if err != nil {
			return translate("check topic name", err)
		}
		if taken {
			return fmt.Errorf("topic %q: %w", name, ErrConflict)
		}
		if err := tx.UpdateTopic(ctx, topicID, creatorID, name, description); err != nil {
			return translate("update topic", err)
		}
		topic.Name, topic.Description = name, description
		return nil
	})
	err = translate("edit topic", err)
	s.opts.Metrics.MembershipMutation("edit_topic", result(err))
	if err != nil {
		return nil, err
	}
	return topic, nil
}

// DeleteTopic deletes a topic. Its expenses stay in the group, unfiled.
func (s *TopicService) DeleteTopic(ctx context.Context, creatorID, topicID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := ownedTopic(ctx, tx, creatorID, topicID); err != nil {
			return err
		}
		return translate("delete topic", tx.DeleteTopic(ctx, topicID, creatorID))
	})
	err = translate("delete topic", err)
	s.opts.Metrics.MembershipMutation("delete_topic", result(err))
	return err
}

// GetTopic returns a topic to a participant of its group.
func (s *TopicService) GetTopic(ctx context.Context, userID, topicID string) (*models.Topic, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, translate("get topic", err)
	}
	ok, err := s.store.HasParticipants(ctx, topic.GroupID, []string{userID})
	if err != nil {
		return nil, translate("check participant", err)
	}
	if !ok {
		return nil, fmt.Errorf("user %s in group %s: %w", userID, topic.GroupID, ErrForbidden)
	}
	return topic, nil
}

func ownedTopic(ctx context.Context, st storage.Store, creatorID, topicID string) (*models.Topic, error) {
	topic, err := st.GetTopic(ctx, topicID)
	if err != nil {
		return nil, translate("get topic", err)
	}
	if topic.CreatorID != creatorID {
		return nil, fmt.Errorf("topic %s not owned by %s: %w", topicID, creatorID, ErrForbidden)
	}
	return topic, nil
}
