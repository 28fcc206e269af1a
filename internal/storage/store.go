// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// Store defines the entity store consumed by the ledger engine.
// This abstraction allows swapping storage backends (SQLite, MongoDB, ...)
// without changing the engine.
//
// Every method is atomic on its own: methods that touch more than one
// record (an entity and the reference set pointing at it) run their writes
// in a single transaction. WithinTx groups several calls into one unit.
//
// Lookups of a missing entity return ErrNotFound. Unique constraint
// violations return ErrDuplicateKey. Expired deadlines and lock or connection
// failures return ErrTransient.
type Store interface {
	UserStore
	GroupStore
	TopicStore
	ExpenseStore
	HistoryStore

	// WithinTx runs fn with a Store bound to a single transaction.
	// The transaction commits if fn returns nil and rolls back otherwise.
	// Nested calls reuse the outer transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Close releases any resources held by the store.
	Close() error
}

// UserStore persists users.
type UserStore interface {
	// CreateUser inserts a user. ID and CreatedAt are populated if unset.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser returns the user with its group memberships.
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	UpdateUsername(ctx context.Context, userID, username string) error

	// DeleteUser removes the user and pulls it from every group it participates in.
	DeleteUser(ctx context.Context, userID string) error

	// CountOwnedGroups returns how many groups the user created.
	CountOwnedGroups(ctx context.Context, userID string) (int, error)
}

// GroupStore persists groups and their participant sets.
type GroupStore interface {
	// CreateGroup inserts the group with Participants = {CreatorID} and adds
	// the group to the creator's membership set.
	CreateGroup(ctx context.Context, group *models.Group) error

	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error)

	// ListGroupsForUser returns the groups userID participates in.
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// GroupNameTaken reports whether creatorID owns a group called name,
	// ignoring the group exceptID (may be empty).
	GroupNameTaken(ctx context.Context, creatorID, name, exceptID string) (bool, error)

	// RenameGroup renames the group matching both groupID and creatorID.
	RenameGroup(ctx context.Context, groupID, creatorID, name string) error

	// DeleteGroup deletes the group matching both groupID and creatorID,
	// together with its topics, expenses and history, and pulls it from the
	// membership set of every participant.
	DeleteGroup(ctx context.Context, groupID, creatorID string) error

	SetInviteCode(ctx context.Context, groupID, creatorID, code string) error

	// AddGroupParticipant adds userID to the participant set (no duplicates)
	// and mirrors the group into the user's membership set.
	AddGroupParticipant(ctx context.Context, groupID, userID string) error

	// RemoveGroupParticipant removes userID from the participant set and the
	// mirror. It matches nothing, and returns ErrNotFound, when userID is the
	// group's creator or not a participant.
	RemoveGroupParticipant(ctx context.Context, groupID, userID string) error

	// HasParticipants reports whether the group exists and its participant set
	// contains every id in userIDs.
	HasParticipants(ctx context.Context, groupID string, userIDs []string) (bool, error)
}

// TopicStore persists topics.
type TopicStore interface {
	// CreateTopic inserts the topic and adds it to its group's topic set.
	CreateTopic(ctx context.Context, topic *models.Topic) error

	GetTopic(ctx context.Context, topicID string) (*models.Topic, error)
	TopicNameTaken(ctx context.Context, groupID, name, exceptID string) (bool, error)

	// UpdateTopic updates the topic matching both topicID and creatorID.
	UpdateTopic(ctx context.Context, topicID, creatorID, name, description string) error

	// DeleteTopic deletes the topic matching both topicID and creatorID, pulls
	// it from the group's topic set and detaches its expenses.
	DeleteTopic(ctx context.Context, topicID, creatorID string) error
}

// ExpenseStore persists expenses and their allocation lines.
type ExpenseStore interface {
	// CreateExpense inserts the expense with its initial Participants and adds
	// it to the expense sets of its group and, if set, its topic.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense returns the expense with its live allocation lines.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	ExpenseNameTaken(ctx context.Context, groupID, name string) (bool, error)
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)

	// ListDueRecurringExpenses returns up to limit recurring expenses whose due
	// date is at or before the given time, earliest first. limit must be
	// positive.
	ListDueRecurringExpenses(ctx context.Context, before time.Time, limit int) ([]*models.Expense, error)

	// DeleteExpense deletes the expense matching both expenseID and creatorID
	// and pulls it from its group and topic.
	DeleteExpense(ctx context.Context, expenseID, creatorID string) error

	// UpsertParticipants writes the lines keyed by (expense, user): existing
	// lines are overwritten in place, new ones are appended. It returns the
	// IDs of the inserted lines.
	UpsertParticipants(ctx context.Context, expenseID string, lines []models.Participant) ([]string, error)

	// SetParticipantPaid sets or clears (paidAt == nil) the paid marker of a line.
	SetParticipantPaid(ctx context.Context, expenseID, userID string, paidAt *time.Time) error

	// RemoveParticipantLines drops the live lines of userID on every expense of the group.
	RemoveParticipantLines(ctx context.Context, groupID, userID string) error

	// ResetParticipants replaces the live lines of the expense with lines.
	ResetParticipants(ctx context.Context, expenseID string, lines []models.Participant) error

	// AdvanceDueDate moves the due date from one value to the next. It is a
	// compare-and-swap: it reports false, and changes nothing, if the stored
	// due date is no longer from.
	AdvanceDueDate(ctx context.Context, expenseID string, from, to time.Time) (bool, error)
}

// HistoryStore persists the recurrence ledger of expenses.
type HistoryStore interface {
	// GetOpenHistory returns the open record of the expense or ErrNotFound.
	GetOpenHistory(ctx context.Context, expenseID string) (*models.ExpenseHistory, error)

	// CreateHistory inserts an open record. A second open record for the same
	// expense fails with ErrDuplicateKey.
	CreateHistory(ctx context.Context, history *models.ExpenseHistory) error

	// CloseHistory closes the record if, and only if, it is still open, and
	// reports whether it did.
	CloseHistory(ctx context.Context, historyID string, endDate time.Time, total decimal.Decimal, participants []models.Participant) (bool, error)

	// ListHistory returns the records of the expense, oldest first.
	ListHistory(ctx context.Context, expenseID string) ([]*models.ExpenseHistory, error)
}
