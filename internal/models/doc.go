// Package models defines the core domain models for splitledger.
//
// # Entities
//
//   - User: an account identified by a unique username and a unique email
//   - Group: a set of participants sharing expenses, owned by exactly one creator
//   - Topic: a named bucket of expenses inside one group
//   - Expense: an amount owed by the group, optionally recurring
//   - Participant: one allocation line of an expense, unique per (expense, user)
//   - ExpenseHistory: a frozen snapshot of one recurrence period of an expense
//
// # Design Principles
//
// 1. **IDs, not pointers**: relationships are expressed with ID strings
// 2. **Exact money**: amounts are decimal.Decimal, never float64
// 3. **Membership first**: every participant of an expense is a participant of its group
//
// Reference sets (a group's topics and expenses, a user's groups) are plain ID slices.
// Storage backends decide how to persist them; the models only carry them.
package models
