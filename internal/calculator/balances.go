package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	UserID     string
	NetBalance decimal.Decimal // Positive = owed money, Negative = owes money
	TotalPaid  decimal.Decimal // Shares the member already settled
	TotalOwed  decimal.Decimal // Shares still outstanding for the member
}

// DebtEdge represents a debt from one person to another.
type DebtEdge struct {
	From   string // Person who owes
	To     string // Person who is owed
	Amount decimal.Decimal
}

// GroupBalances computes outstanding balances across the current period of
// the given expenses.
//
// The creator of an expense is taken to have fronted it. Every unpaid share
// of another participant is a debt towards the creator; paid shares are
// settled. Debts are then simplified by greedily matching the largest debtor
// with the largest creditor.
func GroupBalances(expenses []*models.Expense) ([]MemberBalance, []DebtEdge) {
	balances := make(map[string]*MemberBalance)
	get := func(userID string) *MemberBalance {
		b, ok := balances[userID]
		if !ok {
			b = &MemberBalance{
				UserID:     userID,
				NetBalance: decimal.Zero,
				TotalPaid:  decimal.Zero,
				TotalOwed:  decimal.Zero,
			}
			balances[userID] = b
		}
		return b
	}

	for _, e := range expenses {
		creator := get(e.CreatorID)
		for _, share := range ComputeShares(e.TotalAmount, e.Participants).Shares {
			if share.UserID == e.CreatorID || share.Amount.IsZero() {
				continue
			}
			member := get(share.UserID)
			if share.Paid {
				member.TotalPaid = member.TotalPaid.Add(share.Amount)
				continue
			}
			member.TotalOwed = member.TotalOwed.Add(share.Amount)
			creator.NetBalance = creator.NetBalance.Add(share.Amount)
			member.NetBalance = member.NetBalance.Sub(share.Amount)
		}
	}

	members := make([]MemberBalance, 0, len(balances))
	for _, b := range balances {
		members = append(members, *b)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })

	return members, simplify(members)
}

func simplify(members []MemberBalance) []DebtEdge {
	type entry struct {
		userID string
		amount decimal.Decimal
	}
	var creditors, debtors []entry
	for _, m := range members {
		switch {
		case m.NetBalance.IsPositive():
			creditors = append(creditors, entry{m.UserID, m.NetBalance})
		case m.NetBalance.IsNegative():
			debtors = append(debtors, entry{m.UserID, m.NetBalance.Neg()})
		}
	}
	byAmount := func(s []entry) func(i, j int) bool {
		return func(i, j int) bool {
			if c := s[i].amount.Cmp(s[j].amount); c != 0 {
				return c > 0
			}
			return s[i].userID < s[j].userID
		}
	}
	sort.Slice(creditors, byAmount(creditors))
	sort.Slice(debtors, byAmount(debtors))

	// Greedy: match largest debts with largest credits
	var edges []DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].amount, creditors[j].amount)
		if amount.IsPositive() {
			edges = append(edges, DebtEdge{From: debtors[i].userID, To: creditors[j].userID, Amount: amount})
		}
		debtors[i].amount = debtors[i].amount.Sub(amount)
		creditors[j].amount = creditors[j].amount.Sub(amount)
		if !debtors[i].amount.IsPositive() {
			i++
		}
		if !creditors[j].amount.IsPositive() {
			j++
		}
	}
	return edges
}
