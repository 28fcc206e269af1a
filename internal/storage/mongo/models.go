package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Groups       []string  `bson:"groups"`
	CreatedAt    time.Time `bson:"created_at"`
}

func toUserDoc(u *models.User) *userDoc {
	return &userDoc{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Groups:       nonNil(u.Groups),
		CreatedAt:    u.CreatedAt,
	}
}

func fromUserDoc(d *userDoc) *models.User {
	return &models.User{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Groups:       d.Groups,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type groupDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	CreatorID    string    `bson:"creator_id"`
	Participants []string  `bson:"participants"`
	InviteCode   string    `bson:"invite_code"`
	TopicIDs     []string  `bson:"topic_ids"`
	ExpenseIDs   []string  `bson:"expense_ids"`
	CreatedAt    time.Time `bson:"created_at"`
}

func fromGroupDoc(d *groupDoc) *models.Group {
	return &models.Group{
		ID:           d.ID,
		Name:         d.Name,
		CreatorID:    d.CreatorID,
		Participants: d.Participants,
		InviteCode:   d.InviteCode,
		TopicIDs:     d.TopicIDs,
		ExpenseIDs:   d.ExpenseIDs,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type topicDoc struct {
	ID          string    `bson:"_id"`
	GroupID     string    `bson:"group_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	CreatorID   string    `bson:"creator_id"`
	ExpenseIDs  []string  `bson:"expense_ids"`
	CreatedAt   time.Time `bson:"created_at"`
}

func fromTopicDoc(d *topicDoc) *models.Topic {
	return &models.Topic{
		ID:          d.ID,
		GroupID:     d.GroupID,
		Name:        d.Name,
		Description: d.Description,
		CreatorID:   d.CreatorID,
		ExpenseIDs:  d.ExpenseIDs,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

type recurrenceDoc struct {
	DurationMs int64     `bson:"duration_ms"`
	StartDate  time.Time `bson:"start_date"`
}

type expenseDoc struct {
	ID             string         `bson:"_id"`
	GroupID        string         `bson:"group_id"`
	TopicID        string         `bson:"topic_id,omitempty"`
	Name           string         `bson:"name"`
	CreatorID      string         `bson:"creator_id"`
	TotalAmount    string         `bson:"total_amount"`
	DueDate        *time.Time     `bson:"due_date"`
	Recurrence     *recurrenceDoc `bson:"recurrence,omitempty"`
	ParticipantIDs []string       `bson:"participant_ids"`
	CreatedAt      time.Time      `bson:"created_at"`
}

func toExpenseDoc(e *models.Expense) *expenseDoc {
	d := &expenseDoc{
		ID:             e.ID,
		GroupID:        e.GroupID,
		TopicID:        e.TopicID,
		Name:           e.Name,
		CreatorID:      e.CreatorID,
		TotalAmount:    e.TotalAmount.String(),
		DueDate:        millis(e.DueDate),
		ParticipantIDs: make([]string, 0, len(e.Participants)),
		CreatedAt:      e.CreatedAt,
	}
	if e.Recurrence != nil {
		d.Recurrence = &recurrenceDoc{
			DurationMs: e.Recurrence.Duration.Milliseconds(),
			StartDate:  e.Recurrence.StartDate,
		}
	}
	for _, p := range e.Participants {
		d.ParticipantIDs = append(d.ParticipantIDs, p.ID)
	}
	return d
}

func fromExpenseDoc(d *expenseDoc) (*models.Expense, error) {
	total, err := decimal.NewFromString(d.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total of expense %s: %w", d.ID, err)
	}
	e := &models.Expense{
		ID:          d.ID,
		Name:        d.Name,
		GroupID:     d.GroupID,
		TopicID:     d.TopicID,
		CreatorID:   d.CreatorID,
		TotalAmount: total,
		DueDate:     utc(d.DueDate),
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if d.Recurrence != nil && d.Recurrence.DurationMs > 0 {
		e.Recurrence = &models.Recurrence{
			Duration:  time.Duration(d.Recurrence.DurationMs) * time.Millisecond,
			StartDate: d.Recurrence.StartDate.UTC(),
		}
	}
	return e, nil
}

// participantDoc is a live allocation line, unique per (expense_id, user_id).
type participantDoc struct {
	ID             string     `bson:"_id"`
	ExpenseID      string     `bson:"expense_id"`
	UserID         string     `bson:"user_id"`
	AllocationType string     `bson:"allocation_type"`
	Amount         string     `bson:"amount"`
	PaidAt         *time.Time `bson:"paid_at"`
	Position       int        `bson:"position"`
}

// lineDoc is a frozen allocation line inside a history record.
type lineDoc struct {
	ID             string     `bson:"id"`
	UserID         string     `bson:"user_id"`
	AllocationType string     `bson:"allocation_type"`
	Amount         string     `bson:"amount"`
	PaidAt         *time.Time `bson:"paid_at"`
}

func toLineDocs(lines []models.Participant) []lineDoc {
	out := make([]lineDoc, 0, len(lines))
	for _, p := range lines {
		out = append(out, lineDoc{
			ID:             p.ID,
			UserID:         p.UserID,
			AllocationType: string(p.AllocationType),
			Amount:         p.Amount.String(),
			PaidAt:         millis(p.PaidAt),
		})
	}
	return out
}

func fromLine(id, userID, kind, amount string, paidAt *time.Time) (models.Participant, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return models.Participant{}, fmt.Errorf("failed to parse amount of line %s: %w", id, err)
	}
	return models.Participant{
		ID:             id,
		UserID:         userID,
		AllocationType: models.AllocationType(kind),
		Amount:         value,
		PaidAt:         utc(paidAt),
	}, nil
}

type historyDoc struct {
	ID           string     `bson:"_id"`
	ExpenseID    string     `bson:"expense_id"`
	Participants []lineDoc  `bson:"participants"`
	TotalAmount  string     `bson:"total_amount"`
	EndDate      *time.Time `bson:"end_date"`
	Open         bool       `bson:"open"`
	CreatedAt    time.Time  `bson:"created_at"`
}

func fromHistoryDoc(d *historyDoc) (*models.ExpenseHistory, error) {
	total, err := decimal.NewFromString(d.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total of history %s: %w", d.ID, err)
	}
	h := &models.ExpenseHistory{
		ID:          d.ID,
		ExpenseID:   d.ExpenseID,
		TotalAmount: total,
		EndDate:     utc(d.EndDate),
		CreatedAt:   d.CreatedAt.UTC(),
	}
	for _, l := range d.Participants {
		p, err := fromLine(l.ID, l.UserID, l.AllocationType, l.Amount, l.PaidAt)
		if err != nil {
			return nil, err
		}
		h.Participants = append(h.Participants, p)
	}
	return h, nil
}

// millis truncates to the precision of a BSON datetime, so values read back
// compare equal to the ones written.
func millis(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
