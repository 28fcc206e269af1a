package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const expenseColumns = `id, group_id, topic_id, name, creator_id, total_amount,
	due_date, recurrence_ms, recurrence_start, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	expense := &models.Expense{}
	var (
		topicID                      sql.NullString
		dueDate, recurMs, recurStart sql.NullInt64
		createdAt                    int64
	)
	err := row.Scan(&expense.ID, &expense.GroupID, &topicID, &expense.Name, &expense.CreatorID,
		&expense.TotalAmount, &dueDate, &recurMs, &recurStart, &createdAt)
	if err != nil {
		return nil, err
	}

	expense.TopicID = topicID.String
	expense.DueDate = timePtr(dueDate)
	if recurMs.Valid && recurMs.Int64 > 0 {
		expense.Recurrence = &models.Recurrence{
			Duration: time.Duration(recurMs.Int64) * time.Millisecond,
		}
		if recurStart.Valid {
			expense.Recurrence.StartDate = fromMillis(recurStart.Int64)
		}
	}
	expense.CreatedAt = fromMillis(createdAt)
	return expense, nil
}

// CreateExpense inserts an expense together with its initial allocation lines.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	var topicID sql.NullString
	if expense.TopicID != "" {
		topicID = sql.NullString{String: expense.TopicID, Valid: true}
	}
	var recurMs, recurStart sql.NullInt64
	if expense.Recurrence != nil {
		recurMs = sql.NullInt64{Int64: expense.Recurrence.Duration.Milliseconds(), Valid: true}
		recurStart = nullMillis(&expense.Recurrence.StartDate)
	}

	return s.atomic(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx,
			"INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			expense.ID, expense.GroupID, topicID, expense.Name, expense.CreatorID,
			expense.TotalAmount.String(), nullMillis(expense.DueDate), recurMs, recurStart,
			toMillis(expense.CreatedAt),
		)
		if err != nil {
			return wrapErr("insert expense", err)
		}

		for i := range expense.Participants {
			line := &expense.Participants[i]
			if line.ID == "" {
				line.ID = uuid.New().String()
			}
			if err := insertLine(ctx, q, expense.ID, *line, i); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertLine(ctx context.Context, q querier, expenseID string, line models.Participant, position int) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO participant_details (id, expense_id, user_id, allocation_type, amount, paid_at, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		line.ID, expenseID, line.UserID, string(line.AllocationType), line.Amount.String(),
		nullMillis(line.PaidAt), position,
	)
	return wrapErr("insert participant line", err)
}

// GetExpense retrieves an expense with its live allocation lines.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := scanExpense(s.q.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?",
		expenseID,
	))
	if err != nil {
		return nil, wrapErr("get expense", err)
	}

	expense.Participants, err = s.loadLines(ctx, expense.ID)
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *SQLiteStore) loadLines(ctx context.Context, expenseID string) ([]models.Participant, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, allocation_type, amount, paid_at
		 FROM participant_details WHERE expense_id = ? ORDER BY position`,
		expenseID,
	)
	if err != nil {
		return nil, wrapErr("get participant lines", err)
	}
	defer rows.Close()

	var lines []models.Participant
	for rows.Next() {
		var (
			line   models.Participant
			kind   string
			paidAt sql.NullInt64
		)
		if err := rows.Scan(&line.ID, &line.UserID, &kind, &line.Amount, &paidAt); err != nil {
			return nil, wrapErr("scan participant line", err)
		}
		line.AllocationType = models.AllocationType(kind)
		line.PaidAt = timePtr(paidAt)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate participant lines", err)
	}
	return lines, nil
}

// ExpenseNameTaken reports whether the group already has an expense called name.
func (s *SQLiteStore) ExpenseNameTaken(ctx context.Context, groupID, name string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM expenses WHERE group_id = ? AND name = ?)",
		groupID, name,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("check expense name", err)
	}
	return exists, nil
}

// ListExpensesByGroup retrieves every expense of a group, oldest first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	return s.listExpenses(ctx, "list expenses by group",
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = ? ORDER BY created_at, rowid",
		groupID,
	)
}

// ListDueRecurringExpenses retrieves recurring expenses due at or before the given time.
func (s *SQLiteStore) ListDueRecurringExpenses(ctx context.Context, before time.Time, limit int) ([]*models.Expense, error) {
	return s.listExpenses(ctx, "list due recurring expenses",
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE recurrence_ms > 0 AND due_date IS NOT NULL AND due_date <= ?
		 ORDER BY due_date, rowid LIMIT ?`,
		toMillis(before), limit,
	)
}

func (s *SQLiteStore) listExpenses(ctx context.Context, op, query string, args ...any) ([]*models.Expense, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, wrapErr(op, err)
		}
		expenses = append(expenses, expense)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}

	// Lines are loaded after the cursor is closed: inside a transaction the
	// store holds a single connection.
	for _, expense := range expenses {
		if expense.Participants, err = s.loadLines(ctx, expense.ID); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// DeleteExpense deletes an expense owned by creatorID. Lines and history cascade.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID, creatorID string) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM expenses WHERE id = ? AND creator_id = ?",
		expenseID, creatorID,
	)
	if err != nil {
		return wrapErr("delete expense", err)
	}
	return notFound(res, "delete expense")
}

// UpsertParticipants writes allocation lines keyed by (expense, user).
// An existing line keeps its ID, position and paid marker; its allocation is
// overwritten. New lines are appended.
func (s *SQLiteStore) UpsertParticipants(ctx context.Context, expenseID string, lines []models.Participant) ([]string, error) {
	var inserted []string
	err := s.atomic(ctx, func(q querier) error {
		var next int
		err := q.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position), -1) + 1 FROM participant_details WHERE expense_id = ?",
			expenseID,
		).Scan(&next)
		if err != nil {
			return wrapErr("get next line position", err)
		}

		for _, line := range lines {
			res, err := q.ExecContext(ctx,
				`UPDATE participant_details SET allocation_type = ?, amount = ?
				 WHERE expense_id = ? AND user_id = ?`,
				string(line.AllocationType), line.Amount.String(), expenseID, line.UserID,
			)
			if err != nil {
				return wrapErr("update participant line", err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return wrapErr("update participant line", err)
			} else if n > 0 {
				continue
			}

			line.ID = uuid.New().String()
			if err := insertLine(ctx, q, expenseID, line, next); err != nil {
				return err
			}
			next++
			inserted = append(inserted, line.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// SetParticipantPaid sets or clears the paid marker of a user's line.
func (s *SQLiteStore) SetParticipantPaid(ctx context.Context, expenseID, userID string, paidAt *time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE participant_details SET paid_at = ? WHERE expense_id = ? AND user_id = ?",
		nullMillis(paidAt), expenseID, userID,
	)
	if err != nil {
		return wrapErr("set participant paid", err)
	}
	return notFound(res, "set participant paid")
}

// RemoveParticipantLines drops the user's lines on every expense of the group.
func (s *SQLiteStore) RemoveParticipantLines(ctx context.Context, groupID, userID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM participant_details
		 WHERE user_id = ? AND expense_id IN (SELECT id FROM expenses WHERE group_id = ?)`,
		userID, groupID,
	)
	return wrapErr("remove participant lines", err)
}

// ResetParticipants replaces the live lines of an expense.
func (s *SQLiteStore) ResetParticipants(ctx context.Context, expenseID string, lines []models.Participant) error {
	return s.atomic(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM participant_details WHERE expense_id = ?", expenseID); err != nil {
			return wrapErr("clear participant lines", err)
		}
		for i, line := range lines {
			if line.ID == "" {
				line.ID = uuid.New().String()
			}
			if err := insertLine(ctx, q, expenseID, line, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// AdvanceDueDate moves the due date of an expense from one value to the next,
// only if it still equals from.
func (s *SQLiteStore) AdvanceDueDate(ctx context.Context, expenseID string, from, to time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE expenses SET due_date = ? WHERE id = ? AND due_date = ?",
		toMillis(to), expenseID, toMillis(from),
	)
	if err != nil {
		return false, wrapErr("advance due date", err)
	}
	if err := notFound(res, "advance due date"); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
