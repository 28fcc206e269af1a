package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// MembershipService validates and mutates group membership.
type MembershipService struct {
	*base
}

func (s *MembershipService) record(op string, err error) {
	s.opts.Metrics.MembershipMutation(op, result(err))
}

// CreateGroup creates a group owned by creatorID with creatorID as its only
// participant. Group names are unique per creator.
func (s *MembershipService) CreateGroup(ctx context.Context, creatorID, name string) (*models.Group, error) {
	group, err := s.createGroup(ctx, creatorID, name)
	s.record("create_group", err)
	if err != nil {
		return nil, err
	}
	s.log().Info("group created", "group_id", group.ID, "creator_id", creatorID)
	return group, nil
}

func (s *MembershipService) createGroup(ctx context.Context, creatorID, name string) (*models.Group, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}
	code, err := s.opts.InviteCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	group := &models.Group{Name: name, CreatorID: creatorID, InviteCode: code, CreatedAt: s.now()}
	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := tx.GetUser(ctx, creatorID); err != nil {
			return translate("get creator", err)
		}
		taken, err := tx.GroupNameTaken(ctx, creatorID, name, "")
		if err != nil {
			return translate("check group name", err)
		}
		if taken {
			return fmt.Errorf("group %q: %w", name, ErrConflict)
		}
		return translate("create group", tx.CreateGroup(ctx, group))
	})
	if err != nil {
		return nil, translate("create group", err)
	}
	return group, nil
}

// EditGroup renames a group. Only its creator may rename it; keeping the
// current name is allowed.
func (s *MembershipService) EditGroup(ctx context.Context, creatorID, groupID, name string) (*models.Group, error) {
	name, err := validateName("name", name)
	if err != nil {
		s.record("edit_group", err)
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	var group *models.Group
	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		var err error
		if group, err = ownedGroup(ctx, tx, creatorID, groupID); err != nil {
			return err
		}
		taken, err := tx.GroupNameTaken(ctx, creatorID, name, groupID)
		if err != nil {
			return translate("check group name", err)
		}
		if taken {
			return fmt.Errorf("group %q: %w", name, ErrConflict)
		}
		if err := tx.RenameGroup(ctx, groupID, creatorID, name); err != nil {
			return translate("rename group", err)
		}
		group.Name = name
		return nil
	})
	err = translate("edit group", err)
	s.record("edit_group", err)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// DeleteGroup deletes a group with its topics, expenses and history.
// Only its creator may delete it.
func (s *MembershipService) DeleteGroup(ctx context.Context, creatorID, groupID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := ownedGroup(ctx, tx, creatorID, groupID); err != nil {
			return err
		}
		return translate("delete group", tx.DeleteGroup(ctx, groupID, creatorID))
	})
	err = translate("delete group", err)
	s.record("delete_group", err)
	if err == nil {
		s.log().Info("group deleted", "group_id", groupID, "creator_id", creatorID)
	}
	return err
}

// RedeemInvite adds userID to the group holding code. Redeeming a code twice
// leaves the participant set unchanged.
func (s *MembershipService) RedeemInvite(ctx context.Context, userID, code string) (*models.Group, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var group *models.Group
	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return translate("get user", err)
		}
		found, err := tx.GetGroupByInviteCode(ctx, code)
		if err != nil {
			return translate("find invite", err)
		}
		if err := tx.AddGroupParticipant(ctx, found.ID, userID); err != nil {
			return translate("add participant", err)
		}
		group, err = tx.GetGroup(ctx, found.ID)
		return translate("get group", err)
	})
	err = translate("redeem invite", err)
	s.record("redeem_invite", err)
	if err != nil {
		return nil, err
	}
	s.log().Info("invite redeemed", "group_id", group.ID, "user_id", userID)
	return group, nil
}

// RegenerateInvite replaces the invite code of a group. Creator only.
func (s *MembershipService) RegenerateInvite(ctx context.Context, creatorID, groupID string) (string, error) {
	code, err := s.opts.InviteCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err = s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := ownedGroup(ctx, tx, creatorID, groupID); err != nil {
			return err
		}
		return translate("set invite code", tx.SetInviteCode(ctx, groupID, creatorID, code))
	})
	err = translate("regenerate invite", err)
	s.record("regenerate_invite", err)
	if err != nil {
		return "", err
	}
	return code, nil
}

// RemoveParticipant removes userID from the group and drops its allocation
// lines on the group's expenses. The creator cannot be removed this way.
func (s *MembershipService) RemoveParticipant(ctx context.Context, userID, groupID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		return removeParticipant(ctx, tx, userID, groupID)
	})
	err = translate("remove participant", err)
	s.record("remove_participant", err)
	if err == nil {
		s.log().Info("participant removed", "group_id", groupID, "user_id", userID)
	}
	return err
}

// KickParticipant lets the creator remove another participant.
func (s *MembershipService) KickParticipant(ctx context.Context, creatorID, userID, groupID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.tx(ctx, func(ctx context.Context, tx storage.Store) error {
		if _, err := ownedGroup(ctx, tx, creatorID, groupID); err != nil {
			return err
		}
		return removeParticipant(ctx, tx, userID, groupID)
	})
	err = translate("kick participant", err)
	s.record("kick_participant", err)
	if err == nil {
		s.log().Info("participant kicked", "group_id", groupID, "user_id", userID, "creator_id", creatorID)
	}
	return err
}

func removeParticipant(ctx context.Context, tx storage.Store, userID, groupID string) error {
	group, err := tx.GetGroup(ctx, groupID)
	if err != nil {
		return translate("get group", err)
	}
	if group.CreatorID == userID {
		return fmt.Errorf("creator cannot leave group %s: %w", groupID, ErrForbidden)
	}
	if !group.HasParticipant(userID) {
		return fmt.Errorf("user %s in group %s: %w", userID, groupID, ErrNotFound)
	}
	if err := tx.RemoveGroupParticipant(ctx, groupID, userID); err != nil {
		return translate("remove group participant", err)
	}
	return translate("remove participant lines", tx.RemoveParticipantLines(ctx, groupID, userID))
}

// CheckParticipantsExist reports whether every user in userIDs participates
// in the group the scope resolves to. A missing group or topic yields false.
func (s *MembershipService) CheckParticipantsExist(ctx context.Context, scope models.MembershipScope, userIDs []string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ok, err := checkParticipants(ctx, s.store, scope, userIDs)
	return ok, translate("check participants", err)
}

func checkParticipants(ctx context.Context, st storage.Store, scope models.MembershipScope, userIDs []string) (bool, error) {
	groupID, err := resolveScope(ctx, st, scope)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return st.HasParticipants(ctx, groupID, userIDs)
}

func resolveScope(ctx context.Context, st storage.Store, scope models.MembershipScope) (string, error) {
	switch scope.Kind {
	case models.ScopeGroup:
		return scope.ID, nil
	case models.ScopeTopic:
		topic, err := st.GetTopic(ctx, scope.ID)
		if err != nil {
			return "", err
		}
		return topic.GroupID, nil
	}
	return "", invalid("scope", "unknown scope kind %d", scope.Kind)
}

// GetGroup returns a group to one of its participants.
func (s *MembershipService) GetGroup(ctx context.Context, actorID, groupID string) (*models.Group, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	group, err := memberGroup(ctx, s.store, actorID, groupID)
	if err != nil {
		return nil, translate("get group", err)
	}
	return group, nil
}

// ListGroups returns the groups userID participates in, newest first.
func (s *MembershipService) ListGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, translate("list groups", err)
	}
	return groups, nil
}

// ownedGroup loads a group and checks creatorID owns it.
func ownedGroup(ctx context.Context, st storage.Store, creatorID, groupID string) (*models.Group, error) {
	group, err := st.GetGroup(ctx, groupID)
	if err != nil {
		return nil, translate("get group", err)
	}
	if group.CreatorID != creatorID {
		return nil, fmt.Errorf("group %s not owned by %s: %w", groupID, creatorID, ErrForbidden)
	}
	return group, nil
}

// memberGroup loads a group and checks userID participates in it.
func memberGroup(ctx context.Context, st storage.Store, userID, groupID string) (*models.Group, error) {
	group, err := st.GetGroup(ctx, groupID)
	if err != nil {
		return nil, translate("get group", err)
	}
	if !group.HasParticipant(userID) {
		return nil, fmt.Errorf("user %s in group %s: %w", userID, groupID, ErrForbidden)
	}
	return group, nil
}
