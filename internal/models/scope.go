package models

import "fmt"

// ScopeKind tells which entity a MembershipScope points to.
type ScopeKind int

const (
	ScopeGroup ScopeKind = iota + 1
	ScopeTopic
)

// MembershipScope identifies the group whose participant set is checked,
// either directly or through one of its topics.
type MembershipScope struct {
	Kind ScopeKind
	ID   string
}

// GroupScope scopes a membership check to a group.
func GroupScope(groupID string) MembershipScope {
	return MembershipScope{Kind: ScopeGroup, ID: groupID}
}

// TopicScope scopes a membership check to the group owning a topic.
func TopicScope(topicID string) MembershipScope {
	return MembershipScope{Kind: ScopeTopic, ID: topicID}
}

func (s MembershipScope) String() string {
	switch s.Kind {
	case ScopeGroup:
		return "group:" + s.ID
	case ScopeTopic:
		return "topic:" + s.ID
	default:
		return fmt.Sprintf("scope(%d):%s", s.Kind, s.ID)
	}
}
