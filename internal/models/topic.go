package models

import "time"

// Topic groups related expenses inside a single group.
type Topic struct {
	ID          string
	GroupID     string
	Name        string
	Description string
	CreatorID   string
	ExpenseIDs  []string
	CreatedAt   time.Time
}
