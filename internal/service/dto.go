package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/pkg/duration"
)

// Wire types. Amounts travel as decimal strings, durations as "2 weeks" style
// strings and timestamps as RFC 3339.

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Groups    []string  `json:"groups"`
	CreatedAt time.Time `json:"created_at"`
}

type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatorID    string    `json:"creator_id"`
	Participants []string  `json:"participants"`
	InviteCode   string    `json:"invite_code,omitempty"`
	TopicIDs     []string  `json:"topic_ids"`
	ExpenseIDs   []string  `json:"expense_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

type Topic struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatorID   string    `json:"creator_id"`
	ExpenseIDs  []string  `json:"expense_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

type Recurrence struct {
	Duration  string    `json:"duration"`
	StartDate time.Time `json:"start_date,omitzero"`
}

type Participant struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	AllocationType string          `json:"allocation_type"`
	Amount         decimal.Decimal `json:"amount"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
}

type Expense struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	GroupID      string          `json:"group_id"`
	TopicID      string          `json:"topic_id,omitempty"`
	CreatorID    string          `json:"creator_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	Recurrence   *Recurrence     `json:"recurrence,omitempty"`
	Participants []Participant   `json:"participants"`
	CreatedAt    time.Time       `json:"created_at"`
}

type HistoryRecord struct {
	ID           string          `json:"id"`
	Participants []Participant   `json:"participants"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Share struct {
	UserID         string          `json:"user_id"`
	AllocationType string          `json:"allocation_type"`
	Amount         decimal.Decimal `json:"amount"`
	Paid           bool            `json:"paid"`
}

type Balance struct {
	UserID     string          `json:"user_id"`
	NetBalance decimal.Decimal `json:"net_balance"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	TotalOwed  decimal.Decimal `json:"total_owed"`
}

type Debt struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type Allocation struct {
	UserID         string          `json:"user_id"`
	AllocationType string          `json:"allocation_type"`
	Amount         decimal.Decimal `json:"amount"`
}

// Auth

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type Empty struct{}

type UserResponse struct {
	User *User `json:"user"`
}

type RenameUserRequest struct {
	Username string `json:"username"`
}

// Groups and topics

type GroupRequest struct {
	GroupID string `json:"group_id"`
	Name    string `json:"name,omitempty"`
}

type GroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type RedeemInviteRequest struct {
	InviteCode string `json:"invite_code"`
}

type InviteResponse struct {
	InviteCode string `json:"invite_code"`
}

type KickRequest struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type CheckParticipantsRequest struct {
	GroupID string   `json:"group_id,omitempty"`
	TopicID string   `json:"topic_id,omitempty"`
	UserIDs []string `json:"user_ids"`
}

type CheckParticipantsResponse struct {
	Exist bool `json:"exist"`
}

type TopicRequest struct {
	TopicID     string `json:"topic_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type TopicResponse struct {
	Topic *Topic `json:"topic"`
}

type BalancesResponse struct {
	GroupID  string     `json:"group_id"`
	Balances []*Balance `json:"balances"`
	Debts    []*Debt    `json:"debts"`
}

// Expenses

type CreateExpenseRequest struct {
	GroupID     string          `json:"group_id"`
	TopicID     string          `json:"topic_id,omitempty"`
	Name        string          `json:"name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Recurrence  *Recurrence     `json:"recurrence,omitempty"`
}

type ExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type ExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type ListExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type ListExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
}

type UpsertParticipantsRequest struct {
	ExpenseID   string       `json:"expense_id"`
	GroupID     string       `json:"group_id"`
	Allocations []Allocation `json:"allocations"`
}

type PaidRequest struct {
	ExpenseID string     `json:"expense_id"`
	UserID    string     `json:"user_id"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

type LedgerResponse struct {
	Expense     *Expense         `json:"expense"`
	History     []*HistoryRecord `json:"history"`
	Shares      []*Share         `json:"shares"`
	Unallocated decimal.Decimal  `json:"unallocated"`
}

func toUser(u *models.User) *User {
	return &User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Groups:    nonNil(u.Groups),
		CreatedAt: u.CreatedAt,
	}
}

func toGroup(g *models.Group) *Group {
	return &Group{
		ID:           g.ID,
		Name:         g.Name,
		CreatorID:    g.CreatorID,
		Participants: nonNil(g.Participants),
		InviteCode:   g.InviteCode,
		TopicIDs:     nonNil(g.TopicIDs),
		ExpenseIDs:   nonNil(g.ExpenseIDs),
		CreatedAt:    g.CreatedAt,
	}
}

func toTopic(t *models.Topic) *Topic {
	return &Topic{
		ID:          t.ID,
		GroupID:     t.GroupID,
		Name:        t.Name,
		Description: t.Description,
		CreatorID:   t.CreatorID,
		ExpenseIDs:  nonNil(t.ExpenseIDs),
		CreatedAt:   t.CreatedAt,
	}
}

func toParticipants(lines []models.Participant) []Participant {
	out := make([]Participant, len(lines))
	for i, p := range lines {
		out[i] = Participant{
			ID:             p.ID,
			UserID:         p.UserID,
			AllocationType: string(p.AllocationType),
			Amount:         p.Amount,
			PaidAt:         p.PaidAt,
		}
	}
	return out
}

func toExpense(e *models.Expense) *Expense {
	out := &Expense{
		ID:           e.ID,
		Name:         e.Name,
		GroupID:      e.GroupID,
		TopicID:      e.TopicID,
		CreatorID:    e.CreatorID,
		TotalAmount:  e.TotalAmount,
		DueDate:      e.DueDate,
		Participants: toParticipants(e.Participants),
		CreatedAt:    e.CreatedAt,
	}
	if e.Recurrence != nil {
		out.Recurrence = &Recurrence{
			Duration:  duration.Format(e.Recurrence.Duration),
			StartDate: e.Recurrence.StartDate,
		}
	}
	return out
}

func toExpenses(expenses []*models.Expense) []*Expense {
	out := make([]*Expense, len(expenses))
	for i, e := range expenses {
		out[i] = toExpense(e)
	}
	return out
}

func toLedger(l *ledger.ExpenseLedger) *LedgerResponse {
	res := &LedgerResponse{
		Expense:     toExpense(l.Expense),
		History:     make([]*HistoryRecord, len(l.History)),
		Shares:      make([]*Share, len(l.Shares)),
		Unallocated: l.Unallocated,
	}
	for i, h := range l.History {
		res.History[i] = &HistoryRecord{
			ID:           h.ID,
			Participants: toParticipants(h.Participants),
			TotalAmount:  h.TotalAmount,
			EndDate:      h.EndDate,
			CreatedAt:    h.CreatedAt,
		}
	}
	for i, s := range l.Shares {
		res.Shares[i] = toShare(s)
	}
	return res
}

func toShare(s calculator.Share) *Share {
	return &Share{
		UserID:         s.UserID,
		AllocationType: string(s.AllocationType),
		Amount:         s.Amount,
		Paid:           s.Paid,
	}
}

func toBalances(b *ledger.GroupBalances) *BalancesResponse {
	res := &BalancesResponse{
		GroupID:  b.GroupID,
		Balances: make([]*Balance, len(b.Members)),
		Debts:    make([]*Debt, len(b.Debts)),
	}
	for i, m := range b.Members {
		res.Balances[i] = &Balance{
			UserID:     m.UserID,
			NetBalance: m.NetBalance,
			TotalPaid:  m.TotalPaid,
			TotalOwed:  m.TotalOwed,
		}
	}
	for i, d := range b.Debts {
		res.Debts[i] = &Debt{From: d.From, To: d.To, Amount: d.Amount}
	}
	return res
}

func fromAllocations(in []Allocation) []ledger.Allocation {
	out := make([]ledger.Allocation, len(in))
	for i, a := range in {
		out[i] = ledger.Allocation{
			UserID: a.UserID,
			Type:   models.AllocationType(a.AllocationType),
			Amount: a.Amount,
		}
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
