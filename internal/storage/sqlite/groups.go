package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const groupColumns = "id, name, creator_id, invite_code, created_at"

// CreateGroup inserts the group and its creator membership in one transaction.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	err := s.atomic(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx,
			"INSERT INTO groups ("+groupColumns+") VALUES (?, ?, ?, ?, ?)",
			group.ID, group.Name, group.CreatorID, group.InviteCode, toMillis(group.CreatedAt),
		)
		if err != nil {
			return wrapErr("insert group", err)
		}

		_, err = q.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)",
			group.ID, group.CreatorID, toMillis(group.CreatedAt),
		)
		return wrapErr("insert creator membership", err)
	})
	if err != nil {
		return err
	}

	group.Participants = []string{group.CreatorID}
	return nil
}

// GetGroup retrieves a group by ID with its participant, topic and expense sets.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return s.getGroupBy(ctx, "id", groupID)
}

// GetGroupByInviteCode retrieves the group owning an invite code.
func (s *SQLiteStore) GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	return s.getGroupBy(ctx, "invite_code", code)
}

func (s *SQLiteStore) getGroupBy(ctx context.Context, column, value string) (*models.Group, error) {
	group := &models.Group{}
	var createdAt int64
	err := s.q.QueryRowContext(ctx,
		"SELECT "+groupColumns+" FROM groups WHERE "+column+" = ?",
		value,
	).Scan(&group.ID, &group.Name, &group.CreatorID, &group.InviteCode, &createdAt)
	if err != nil {
		return nil, wrapErr("get group by "+column, err)
	}
	group.CreatedAt = fromMillis(createdAt)

	if err := s.loadGroupSets(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *SQLiteStore) loadGroupSets(ctx context.Context, group *models.Group) error {
	var err error
	group.Participants, err = queryStrings(ctx, s.q, "get group participants",
		"SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at, rowid",
		group.ID,
	)
	if err != nil {
		return err
	}
	group.TopicIDs, err = queryStrings(ctx, s.q, "get group topics",
		"SELECT id FROM topics WHERE group_id = ? ORDER BY created_at, rowid",
		group.ID,
	)
	if err != nil {
		return err
	}
	group.ExpenseIDs, err = queryStrings(ctx, s.q, "get group expenses",
		"SELECT id FROM expenses WHERE group_id = ? ORDER BY created_at, rowid",
		group.ID,
	)
	return err
}

// ListGroupsForUser retrieves every group the user participates in.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT g.id, g.name, g.creator_id, g.invite_code, g.created_at
		 FROM groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ?
		 ORDER BY g.created_at DESC, g.rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapErr("list groups for user", err)
	}

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		var createdAt int64
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatorID, &group.InviteCode, &createdAt); err != nil {
			rows.Close()
			return nil, wrapErr("scan group", err)
		}
		group.CreatedAt = fromMillis(createdAt)
		groups = append(groups, group)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate groups", err)
	}

	for _, group := range groups {
		if err := s.loadGroupSets(ctx, group); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// GroupNameTaken reports whether creatorID already owns a group called name.
func (s *SQLiteStore) GroupNameTaken(ctx context.Context, creatorID, name, exceptID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM groups WHERE creator_id = ? AND name = ? AND id <> ?)",
		creatorID, name, exceptID,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("check group name", err)
	}
	return exists, nil
}

// RenameGroup renames a group owned by creatorID.
func (s *SQLiteStore) RenameGroup(ctx context.Context, groupID, creatorID, name string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE groups SET name = ? WHERE id = ? AND creator_id = ?",
		name, groupID, creatorID,
	)
	if err != nil {
		return wrapErr("rename group", err)
	}
	return notFound(res, "rename group")
}

// DeleteGroup deletes a group owned by creatorID. Memberships, topics,
// expenses, allocation lines and history cascade.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID, creatorID string) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM groups WHERE id = ? AND creator_id = ?",
		groupID, creatorID,
	)
	if err != nil {
		return wrapErr("delete group", err)
	}
	return notFound(res, "delete group")
}

// SetInviteCode replaces the invite code of a group owned by creatorID.
func (s *SQLiteStore) SetInviteCode(ctx context.Context, groupID, creatorID, code string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE groups SET invite_code = ? WHERE id = ? AND creator_id = ?",
		code, groupID, creatorID,
	)
	if err != nil {
		return wrapErr("set invite code", err)
	}
	return notFound(res, "set invite code")
}

// AddGroupParticipant adds a member. Adding an existing member is a no-op.
func (s *SQLiteStore) AddGroupParticipant(ctx context.Context, groupID, userID string) error {
	return s.atomic(ctx, func(q querier) error {
		if err := groupExists(ctx, q, groupID); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)",
			groupID, userID, toMillis(time.Now()),
		)
		return wrapErr("add group participant", err)
	})
}

// RemoveGroupParticipant removes a member other than the creator.
func (s *SQLiteStore) RemoveGroupParticipant(ctx context.Context, groupID, userID string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM group_members
		 WHERE group_id = ? AND user_id = ?
		   AND user_id <> (SELECT creator_id FROM groups WHERE id = ?)`,
		groupID, userID, groupID,
	)
	if err != nil {
		return wrapErr("remove group participant", err)
	}
	return notFound(res, "remove group participant")
}

// HasParticipants reports whether the group exists and contains every user.
// Duplicate ids are tolerated.
func (s *SQLiteStore) HasParticipants(ctx context.Context, groupID string, userIDs []string) (bool, error) {
	if err := groupExists(ctx, s.q, groupID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	unique := dedupe(userIDs)
	if len(unique) == 0 {
		return true, nil
	}

	placeholders, args := inClause(unique)
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id IN ("+placeholders+")",
		append([]any{groupID}, args...)...,
	).Scan(&n)
	if err != nil {
		return false, wrapErr("check group participants", err)
	}
	return n == len(unique), nil
}

func groupExists(ctx context.Context, q querier, groupID string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	return wrapErr("check group existence", err)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
