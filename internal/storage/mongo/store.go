// Package mongo provides a MongoDB-backed implementation of the storage.Store interface.
//
// Reference sets (a group's participants, topics and expenses, a user's groups,
// an expense's allocation lines) are explicit id arrays maintained with
// $addToSet and $pull. Every method that writes more than one document runs in
// a session transaction, so the server must be a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/splitledger/internal/storage"
)

// Collection names.
const (
	colUsers        = "users"
	colGroups       = "groups"
	colTopics       = "topics"
	colExpenses     = "expenses"
	colParticipants = "participant_details"
	colHistory      = "expense_history"
)

// compile-time interface check
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to uri, verifies the connection and creates the indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.Migrate(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Migrate creates the indexes of every collection. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Drop removes the database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// WithinTx runs fn inside a session transaction. The session travels in the
// context, so nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	return s.atomic(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *Store) atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return wrapErr("start session", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// wrapErr maps driver errors onto the storage sentinels. Errors that already
// carry a sentinel pass through unchanged.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, storage.ErrTransient):
		return err
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("failed to %s: %w: %w", op, storage.ErrDuplicateKey, err)
	case storage.IsDeadline(err), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("failed to %s: %w: %w", op, storage.ErrTransient, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// matched reports ErrNotFound for an update that matched no document.
func matched(res *mongo.UpdateResult, op string) error {
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, col string, filter bson.M) (bool, error) {
	n, err := s.col(col).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colGroups: {
			{
				Keys:    bson.D{{Key: "creator_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "invite_code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "participants", Value: 1}}},
		},
		colTopics: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colExpenses: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "topic_id", Value: 1}}},
			{Keys: bson.D{{Key: "due_date", Value: 1}}},
		},
		colParticipants: {
			{
				Keys:    bson.D{{Key: "expense_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colHistory: {
			{
				Keys: bson.D{{Key: "expense_id", Value: 1}},
				Options: options.Index().
					SetName("expense_id_open").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"open": true}),
			},
			{Keys: bson.D{{Key: "expense_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
