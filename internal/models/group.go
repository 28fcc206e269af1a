package models

import "time"

// Group is a set of users sharing expenses.
//
// The creator is immutable and always part of Participants.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is unique per creator, not globally.
	Name string

	// CreatorID references the user who owns the group.
	CreatorID string

	// Participants holds the user IDs of the group members, creator included.
	Participants []string

	// InviteCode is an opaque token that lets a user join the group.
	// It can be regenerated by the creator.
	InviteCode string

	// TopicIDs and ExpenseIDs are the group's reference sets.
	TopicIDs   []string
	ExpenseIDs []string

	CreatedAt time.Time
}

// HasParticipant reports whether userID is a member of the group.
func (g *Group) HasParticipant(userID string) bool {
	for _, p := range g.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
