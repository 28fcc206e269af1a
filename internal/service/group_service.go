package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
)

// GroupService implements the GroupService procedures: groups, invites,
// topics and balances.
type GroupService struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewGroupService creates a new GroupService over the engine.
func NewGroupService(l *ledger.Ledger, logger *slog.Logger) *GroupService {
	return &GroupService{ledger: l, logger: logger}
}

func (s *GroupService) caller(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errAuthRequired)
	}
	return userID, nil
}

// CreateGroup creates a group owned by the caller.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[GroupResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("CreateGroup request received", "user_id", userID, "name", req.Msg.Name)

	group, err := s.ledger.Membership.CreateGroup(ctx, userID, req.Msg.Name)
	if err != nil {
		return nil, connectError(s.logger, "CreateGroup", err)
	}

	s.logger.Info("Group created", "group_id", group.ID)
	return connect.NewResponse(&GroupResponse{Group: toGroup(group)}), nil
}

// EditGroup renames a group. Only its creator may do so.
func (s *GroupService) EditGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[GroupResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.ledger.Membership.EditGroup(ctx, userID, req.Msg.GroupID, req.Msg.Name)
	if err != nil {
		return nil, connectError(s.logger, "EditGroup", err)
	}
	return connect.NewResponse(&GroupResponse{Group: toGroup(group)}), nil
}

// DeleteGroup removes a group with its topics and expenses.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[Empty], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("DeleteGroup request received", "group_id", req.Msg.GroupID)

	if err := s.ledger.Membership.DeleteGroup(ctx, userID, req.Msg.GroupID); err != nil {
		return nil, connectError(s.logger, "DeleteGroup", err)
	}

	s.logger.Info("DeleteGroup successful", "group_id", req.Msg.GroupID)
	return connect.NewResponse(&Empty{}), nil
}

// GetGroup returns a group the caller participates in. The invite code is
// only shown to the creator.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[GroupResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.ledger.Membership.GetGroup(ctx, userID, req.Msg.GroupID)
	if err != nil {
		return nil, connectError(s.logger, "GetGroup", err)
	}
	return connect.NewResponse(&GroupResponse{Group: s.visible(userID, group)}), nil
}

// ListGroups returns every group the caller participates in.
func (s *GroupService) ListGroups(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[ListGroupsResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.ledger.Membership.ListGroups(ctx, userID)
	if err != nil {
		return nil, connectError(s.logger, "ListGroups", err)
	}

	res := &ListGroupsResponse{Groups: make([]*Group, len(groups))}
	for i, g := range groups {
		res.Groups[i] = s.visible(userID, g)
	}
	s.logger.Debug("ListGroups successful", "user_id", userID, "count", len(groups))
	return connect.NewResponse(res), nil
}

func (s *GroupService) visible(userID string, g *models.Group) *Group {
	out := toGroup(g)
	if g.CreatorID != userID {
		out.InviteCode = ""
	}
	return out
}

// RedeemInvite joins the caller to the group behind an invite code.
func (s *GroupService) RedeemInvite(ctx context.Context, req *connect.Request[RedeemInviteRequest]) (*connect.Response[GroupResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.ledger.Membership.RedeemInvite(ctx, userID, req.Msg.InviteCode)
	if err != nil {
		return nil, connectError(s.logger, "RedeemInvite", err)
	}

	s.logger.Info("Invite redeemed", "group_id", group.ID, "user_id", userID)
	return connect.NewResponse(&GroupResponse{Group: s.visible(userID, group)}), nil
}

// RegenerateInvite replaces the group's invite code.
func (s *GroupService) RegenerateInvite(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[InviteResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	code, err := s.ledger.Membership.RegenerateInvite(ctx, userID, req.Msg.GroupID)
	if err != nil {
		return nil, connectError(s.logger, "RegenerateInvite", err)
	}
	return connect.NewResponse(&InviteResponse{InviteCode: code}), nil
}

// LeaveGroup removes the caller from a group.
func (s *GroupService) LeaveGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[Empty], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Membership.RemoveParticipant(ctx, userID, req.Msg.GroupID); err != nil {
		return nil, connectError(s.logger, "LeaveGroup", err)
	}
	s.logger.Info("Participant left group", "group_id", req.Msg.GroupID, "user_id", userID)
	return connect.NewResponse(&Empty{}), nil
}

// KickParticipant removes another participant. Only the creator may do so.
func (s *GroupService) KickParticipant(ctx context.Context, req *connect.Request[KickRequest]) (*connect.Response[Empty], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Membership.KickParticipant(ctx, userID, req.Msg.UserID, req.Msg.GroupID); err != nil {
		return nil, connectError(s.logger, "KickParticipant", err)
	}
	s.logger.Info("Participant removed", "group_id", req.Msg.GroupID, "user_id", req.Msg.UserID)
	return connect.NewResponse(&Empty{}), nil
}

// CheckParticipants reports whether every listed user participates in the
// group or topic. The caller must participate too.
func (s *GroupService) CheckParticipants(ctx context.Context, req *connect.Request[CheckParticipantsRequest]) (*connect.Response[CheckParticipantsResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	var scope models.MembershipScope
	switch {
	case req.Msg.GroupID != "" && req.Msg.TopicID != "":
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("set group_id or topic_id, not both"))
	case req.Msg.TopicID != "":
		topic, err := s.ledger.Topics.GetTopic(ctx, userID, req.Msg.TopicID)
		if err != nil {
			return nil, connectError(s.logger, "CheckParticipants", err)
		}
		scope = models.TopicScope(topic.ID)
	default:
		if _, err := s.ledger.Membership.GetGroup(ctx, userID, req.Msg.GroupID); err != nil {
			return nil, connectError(s.logger, "CheckParticipants", err)
		}
		scope = models.GroupScope(req.Msg.GroupID)
	}

	exist, err := s.ledger.Membership.CheckParticipantsExist(ctx, scope, req.Msg.UserIDs)
	if err != nil {
		return nil, connectError(s.logger, "CheckParticipants", err)
	}
	return connect.NewResponse(&CheckParticipantsResponse{Exist: exist}), nil
}

// CreateTopic adds a topic to a group the caller participates in.
func (s *GroupService) CreateTopic(ctx context.Context, req *connect.Request[TopicRequest]) (*connect.Response[TopicResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	topic, err := s.ledger.Topics.CreateTopic(ctx, userID, req.Msg.GroupID, req.Msg.Name, req.Msg.Description)
	if err != nil {
		return nil, connectError(s.logger, "CreateTopic", err)
	}
	s.logger.Info("Topic created", "topic_id", topic.ID, "group_id", topic.GroupID)
	return connect.NewResponse(&TopicResponse{Topic: toTopic(topic)}), nil
}

// EditTopic renames a topic or changes its description.
func (s *GroupService) EditTopic(ctx context.Context, req *connect.Request[TopicRequest]) (*connect.Response[TopicResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	topic, err := s.ledger.Topics.EditTopic(ctx, userID, req.Msg.TopicID, req.Msg.Name, req.Msg.Description)
	if err != nil {
		return nil, connectError(s.logger, "EditTopic", err)
	}
	return connect.NewResponse(&TopicResponse{Topic: toTopic(topic)}), nil
}

// DeleteTopic removes a topic. Its expenses stay in the group.
func (s *GroupService) DeleteTopic(ctx context.Context, req *connect.Request[TopicRequest]) (*connect.Response[Empty], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Topics.DeleteTopic(ctx, userID, req.Msg.TopicID); err != nil {
		return nil, connectError(s.logger, "DeleteTopic", err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *GroupService) GetTopic(ctx context.Context, req *connect.Request[TopicRequest]) (*connect.Response[TopicResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	topic, err := s.ledger.Topics.GetTopic(ctx, userID, req.Msg.TopicID)
	if err != nil {
		return nil, connectError(s.logger, "GetTopic", err)
	}
	return connect.NewResponse(&TopicResponse{Topic: toTopic(topic)}), nil
}

// GetBalances returns net balances and the simplified debts of a group.
func (s *GroupService) GetBalances(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[BalancesResponse], error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("GetBalances request received", "group_id", req.Msg.GroupID)

	balances, err := s.ledger.Query.GroupBalances(ctx, userID, req.Msg.GroupID)
	if err != nil {
		return nil, connectError(s.logger, "GetBalances", err)
	}

	s.logger.Info("GetBalances successful", "group_id", req.Msg.GroupID, "debts", len(balances.Debts))
	return connect.NewResponse(toBalances(balances)), nil
}
