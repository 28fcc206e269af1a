package service

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/pkg/duration"
)

// ExpenseService implements the ExpenseService procedures.
type ExpenseService struct {
	ledger *ledger.Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewExpenseService creates a new ExpenseService over the engine.
func NewExpenseService(l *ledger.Ledger, logger *slog.Logger) *ExpenseService {
	return &ExpenseService{ledger: l, logger: logger, now: time.Now}
}

func (s *ExpenseService) caller(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errAuthRequired)
	}
	return userID, nil
}

// CreateExpense records an expense in a group, optionally under a topic.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("CreateExpense request received",
		"group_id", req.Msg.GroupID,
		"name", req.Msg.Name,
		"total", req.Msg.TotalAmount.String(),
	)

	in := ledger.NewExpense{
		CreatorID:   userID,
		GroupID:     req.Msg.GroupID,
		TopicID:     req.Msg.TopicID,
		Name:        req.Msg.Name,
		TotalAmount: req.Msg.TotalAmount,
		DueDate:     req.Msg.DueDate,
	}
	if r := req.Msg.Recurrence; r != nil {
		every, err := duration.Parse(r.Duration)
		if err != nil {
			return nil, connectError(s.logger, "CreateExpense", &ledger.ValidationError{Field: "recurrence.duration", Message: err.Error()})
		}
		in.Recurrence = &models.Recurrence{Duration: every, StartDate: r.StartDate}
	}

	expense, err := s.ledger.Expenses.CreateExpense(ctx, in)
	if err != nil {
		return nil, connectError(s.logger, "CreateExpense", err)
	}

	s.logger.Info("Expense created", "expense_id", expense.ID, "group_id", expense.GroupID)
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// DeleteExpense removes an expense with its history. Only its creator may do so.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[ExpenseRequest]) (*connect.Response[Empty], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Expenses.DeleteExpense(ctx, userID, req.Msg.ExpenseID); err != nil {
		return nil, connectError(s.logger, "DeleteExpense", err)
	}
	s.logger.Info("Expense deleted", "expense_id", req.Msg.ExpenseID)
	return connect.NewResponse(&Empty{}), nil
}

// UpsertParticipants writes a batch of allocation lines. The caller must
// participate in the group.
func (s *ExpenseService) UpsertParticipants(ctx context.Context, req *connect.Request[UpsertParticipantsRequest]) (*connect.Response[ExpenseResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("UpsertParticipants request received",
		"expense_id", req.Msg.ExpenseID,
		"lines", len(req.Msg.Allocations),
	)

	if _, err := s.ledger.Membership.GetGroup(ctx, userID, req.Msg.GroupID); err != nil {
		return nil, connectError(s.logger, "UpsertParticipants", err)
	}
	if err := s.ledger.Allocation.UpsertParticipants(ctx, req.Msg.ExpenseID, req.Msg.GroupID, fromAllocations(req.Msg.Allocations)); err != nil {
		return nil, connectError(s.logger, "UpsertParticipants", err)
	}

	view, err := s.ledger.Query.ExpenseLedger(ctx, userID, req.Msg.ExpenseID)
	if err != nil {
		return nil, connectError(s.logger, "UpsertParticipants", err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(view.Expense)}), nil
}

// MarkPaid records a payment on a participant line. Without paid_at the
// current time is used.
func (s *ExpenseService) MarkPaid(ctx context.Context, req *connect.Request[PaidRequest]) (*connect.Response[Empty], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	paidAt := s.now()
	if req.Msg.PaidAt != nil {
		paidAt = *req.Msg.PaidAt
	}
	if err := s.ledger.Allocation.MarkPaid(ctx, userID, req.Msg.ExpenseID, req.Msg.UserID, paidAt); err != nil {
		return nil, connectError(s.logger, "MarkPaid", err)
	}
	s.logger.Info("Line marked paid", "expense_id", req.Msg.ExpenseID, "user_id", req.Msg.UserID)
	return connect.NewResponse(&Empty{}), nil
}

func (s *ExpenseService) ClearPaid(ctx context.Context, req *connect.Request[PaidRequest]) (*connect.Response[Empty], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Allocation.ClearPaid(ctx, userID, req.Msg.ExpenseID, req.Msg.UserID); err != nil {
		return nil, connectError(s.logger, "ClearPaid", err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetExpenseLedger returns an expense with its closed periods and computed shares.
func (s *ExpenseService) GetExpenseLedger(ctx context.Context, req *connect.Request[ExpenseRequest]) (*connect.Response[LedgerResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("GetExpenseLedger request received", "expense_id", req.Msg.ExpenseID)

	view, err := s.ledger.Query.ExpenseLedger(ctx, userID, req.Msg.ExpenseID)
	if err != nil {
		return nil, connectError(s.logger, "GetExpenseLedger", err)
	}

	s.logger.Info("GetExpenseLedger successful",
		"expense_id", view.Expense.ID,
		"periods", len(view.History),
	)
	return connect.NewResponse(toLedger(view)), nil
}

// ListExpenses returns every expense of a group.
func (s *ExpenseService) ListExpenses(ctx context.Context, req *connect.Request[ListExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	expenses, err := s.ledger.Query.ListExpenses(ctx, userID, req.Msg.GroupID)
	if err != nil {
		return nil, connectError(s.logger, "ListExpenses", err)
	}
	return connect.NewResponse(&ListExpensesResponse{Expenses: toExpenses(expenses)}), nil
}
