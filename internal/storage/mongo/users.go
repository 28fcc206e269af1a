package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mmynk/splitledger/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	_, err := s.col(colUsers).InsertOne(ctx, toUserDoc(user))
	return wrapErr("create user", err)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.getUserBy(ctx, "_id", userID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserBy(ctx, "email", email)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUserBy(ctx, "username", username)
}

func (s *Store) getUserBy(ctx context.Context, field, value string) (*models.User, error) {
	var d userDoc
	if err := s.col(colUsers).FindOne(ctx, bson.M{field: value}).Decode(&d); err != nil {
		return nil, wrapErr("get user by "+field, err)
	}
	return fromUserDoc(&d), nil
}

func (s *Store) UpdateUsername(ctx context.Context, userID, username string) error {
	res, err := s.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"username": username}},
	)
	if err != nil {
		return wrapErr("update username", err)
	}
	return matched(res, "update username")
}

// DeleteUser removes the user, pulls it from every group and drops its live
// allocation lines.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		res, err := s.col(colUsers).DeleteOne(ctx, bson.M{"_id": userID})
		if err != nil {
			return wrapErr("delete user", err)
		}
		if res.DeletedCount == 0 {
			return wrapErr("delete user", mongo.ErrNoDocuments)
		}

		_, err = s.col(colGroups).UpdateMany(ctx,
			bson.M{"participants": userID},
			bson.M{"$pull": bson.M{"participants": userID}},
		)
		if err != nil {
			return wrapErr("pull user from groups", err)
		}

		return s.dropLines(ctx, bson.M{"user_id": userID})
	})
}

func (s *Store) CountOwnedGroups(ctx context.Context, userID string) (int, error) {
	n, err := s.col(colGroups).CountDocuments(ctx, bson.M{"creator_id": userID})
	if err != nil {
		return 0, wrapErr("count owned groups", err)
	}
	return int(n), nil
}
