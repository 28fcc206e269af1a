package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

const historyColumns = "id, expense_id, total_amount, end_date, created_at"

func scanHistory(row rowScanner) (*models.ExpenseHistory, error) {
	h := &models.ExpenseHistory{}
	var (
		endDate   sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&h.ID, &h.ExpenseID, &h.TotalAmount, &endDate, &createdAt); err != nil {
		return nil, err
	}
	h.EndDate = timePtr(endDate)
	h.CreatedAt = fromMillis(createdAt)
	return h, nil
}

// GetOpenHistory retrieves the open history record of an expense.
func (s *SQLiteStore) GetOpenHistory(ctx context.Context, expenseID string) (*models.ExpenseHistory, error) {
	h, err := scanHistory(s.q.QueryRowContext(ctx,
		"SELECT "+historyColumns+" FROM expense_history WHERE expense_id = ? AND end_date IS NULL",
		expenseID,
	))
	if err != nil {
		return nil, wrapErr("get open history", err)
	}
	return h, nil
}

// CreateHistory inserts an open history record. The partial unique index on
// open records rejects a second one for the same expense.
func (s *SQLiteStore) CreateHistory(ctx context.Context, h *models.ExpenseHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx,
		"INSERT INTO expense_history ("+historyColumns+") VALUES (?, ?, ?, NULL, ?)",
		h.ID, h.ExpenseID, h.TotalAmount.String(), toMillis(h.CreatedAt),
	)
	return wrapErr("create history", err)
}

// CloseHistory freezes an open record. It reports false when the record was
// already closed.
func (s *SQLiteStore) CloseHistory(ctx context.Context, historyID string, endDate time.Time, total decimal.Decimal, participants []models.Participant) (bool, error) {
	closed := false
	err := s.atomic(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx,
			"UPDATE expense_history SET end_date = ?, total_amount = ? WHERE id = ? AND end_date IS NULL",
			toMillis(endDate), total.String(), historyID,
		)
		if err != nil {
			return wrapErr("close history", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapErr("close history", err)
		}
		if n == 0 {
			return nil
		}

		for i, p := range participants {
			_, err := q.ExecContext(ctx,
				`INSERT INTO expense_history_participants
				 (history_id, line_id, user_id, allocation_type, amount, paid_at, position)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				historyID, p.ID, p.UserID, string(p.AllocationType), p.Amount.String(),
				nullMillis(p.PaidAt), i,
			)
			if err != nil {
				return wrapErr("insert history participant", err)
			}
		}
		closed = true
		return nil
	})
	return closed, err
}

// ListHistory retrieves every history record of an expense, oldest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, expenseID string) ([]*models.ExpenseHistory, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM expense_history WHERE expense_id = ?
		 ORDER BY end_date IS NULL, end_date, created_at, rowid`,
		expenseID,
	)
	if err != nil {
		return nil, wrapErr("list history", err)
	}

	var records []*models.ExpenseHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			rows.Close()
			return nil, wrapErr("scan history", err)
		}
		records = append(records, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate history", err)
	}

	for _, h := range records {
		if h.Participants, err = s.loadHistoryLines(ctx, h.ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) loadHistoryLines(ctx context.Context, historyID string) ([]models.Participant, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT line_id, user_id, allocation_type, amount, paid_at
		 FROM expense_history_participants WHERE history_id = ? ORDER BY position`,
		historyID,
	)
	if err != nil {
		return nil, wrapErr("get history participants", err)
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
			return nil, wrapErr("scan history participant", err)
		}
		line.AllocationType = models.AllocationType(kind)
		line.PaidAt = timePtr(paidAt)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate history participants", err)
	}
	return lines, nil
}
