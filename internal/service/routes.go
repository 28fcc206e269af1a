package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
)

// Procedure names served by Mount.
const (
	AuthServiceName    = "splitledger.v1.AuthService"
	GroupServiceName   = "splitledger.v1.GroupService"
	ExpenseServiceName = "splitledger.v1.ExpenseService"

	RegisterProcedure          = "/" + AuthServiceName + "/Register"
	LoginProcedure             = "/" + AuthServiceName + "/Login"
	GetCurrentUserProcedure    = "/" + AuthServiceName + "/GetCurrentUser"
	RenameCurrentUserProcedure = "/" + AuthServiceName + "/RenameCurrentUser"
	DeleteCurrentUserProcedure = "/" + AuthServiceName + "/DeleteCurrentUser"

	CreateGroupProcedure       = "/" + GroupServiceName + "/CreateGroup"
	EditGroupProcedure         = "/" + GroupServiceName + "/EditGroup"
	DeleteGroupProcedure       = "/" + GroupServiceName + "/DeleteGroup"
	GetGroupProcedure          = "/" + GroupServiceName + "/GetGroup"
	ListGroupsProcedure        = "/" + GroupServiceName + "/ListGroups"
	RedeemInviteProcedure      = "/" + GroupServiceName + "/RedeemInvite"
	RegenerateInviteProcedure  = "/" + GroupServiceName + "/RegenerateInvite"
	LeaveGroupProcedure        = "/" + GroupServiceName + "/LeaveGroup"
	KickParticipantProcedure   = "/" + GroupServiceName + "/KickParticipant"
	CheckParticipantsProcedure = "/" + GroupServiceName + "/CheckParticipants"
	CreateTopicProcedure       = "/" + GroupServiceName + "/CreateTopic"
	EditTopicProcedure         = "/" + GroupServiceName + "/EditTopic"
	DeleteTopicProcedure       = "/" + GroupServiceName + "/DeleteTopic"
	GetTopicProcedure          = "/" + GroupServiceName + "/GetTopic"
	GetBalancesProcedure       = "/" + GroupServiceName + "/GetBalances"

	CreateExpenseProcedure      = "/" + ExpenseServiceName + "/CreateExpense"
	DeleteExpenseProcedure      = "/" + ExpenseServiceName + "/DeleteExpense"
	UpsertParticipantsProcedure = "/" + ExpenseServiceName + "/UpsertParticipants"
	MarkPaidProcedure           = "/" + ExpenseServiceName + "/MarkPaid"
	ClearPaidProcedure          = "/" + ExpenseServiceName + "/ClearPaid"
	GetExpenseLedgerProcedure   = "/" + ExpenseServiceName + "/GetExpenseLedger"
	ListExpensesProcedure       = "/" + ExpenseServiceName + "/ListExpenses"
)

// Mount registers every procedure on mux. Register and Login are public;
// everything else requires a bearer token.
func Mount(mux *http.ServeMux, l *ledger.Ledger, jwtManager *auth.JWTManager, logger *slog.Logger) {
	public := []connect.HandlerOption{
		connect.WithCodec(Codec{}),
		connect.WithInterceptors(middleware.LoggingInterceptor(logger)),
	}
	private := []connect.HandlerOption{
		connect.WithCodec(Codec{}),
		// RequireAuth runs first so the logged calls carry the user id.
		connect.WithInterceptors(
			middleware.RequireAuth(jwtManager),
			middleware.LoggingInterceptor(logger),
		),
	}

	authSvc := NewAuthService(l.Users, l.Users, jwtManager, logger)
	unary(mux, RegisterProcedure, authSvc.Register, public...)
	unary(mux, LoginProcedure, authSvc.Login, public...)
	unary(mux, GetCurrentUserProcedure, authSvc.GetCurrentUser, private...)
	unary(mux, RenameCurrentUserProcedure, authSvc.RenameCurrentUser, private...)
	unary(mux, DeleteCurrentUserProcedure, authSvc.DeleteCurrentUser, private...)

	groupSvc := NewGroupService(l, logger)
	unary(mux, CreateGroupProcedure, groupSvc.CreateGroup, private...)
	unary(mux, EditGroupProcedure, groupSvc.EditGroup, private...)
	unary(mux, DeleteGroupProcedure, groupSvc.DeleteGroup, private...)
	unary(mux, GetGroupProcedure, groupSvc.GetGroup, private...)
	unary(mux, ListGroupsProcedure, groupSvc.ListGroups, private...)
	unary(mux, RedeemInviteProcedure, groupSvc.RedeemInvite, private...)
	unary(mux, RegenerateInviteProcedure, groupSvc.RegenerateInvite, private...)
	unary(mux, LeaveGroupProcedure, groupSvc.LeaveGroup, private...)
	unary(mux, KickParticipantProcedure, groupSvc.KickParticipant, private...)
	unary(mux, CheckParticipantsProcedure, groupSvc.CheckParticipants, private...)
	unary(mux, CreateTopicProcedure, groupSvc.CreateTopic, private...)
	unary(mux, EditTopicProcedure, groupSvc.EditTopic, private...)
	unary(mux, DeleteTopicProcedure, groupSvc.DeleteTopic, private...)
	unary(mux, GetTopicProcedure, groupSvc.GetTopic, private...)
	unary(mux, GetBalancesProcedure, groupSvc.GetBalances, private...)

	expenseSvc := NewExpenseService(l, logger)
	unary(mux, CreateExpenseProcedure, expenseSvc.CreateExpense, private...)
	unary(mux, DeleteExpenseProcedure, expenseSvc.DeleteExpense, private...)
	unary(mux, UpsertParticipantsProcedure, expenseSvc.UpsertParticipants, private...)
	unary(mux, MarkPaidProcedure, expenseSvc.MarkPaid, private...)
	unary(mux, ClearPaidProcedure, expenseSvc.ClearPaid, private...)
	unary(mux, GetExpenseLedgerProcedure, expenseSvc.GetExpenseLedger, private...)
	unary(mux, ListExpensesProcedure, expenseSvc.ListExpenses, private...)
}

func unary[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts ...connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}
