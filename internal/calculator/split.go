package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// SharePlaces is the number of decimal places equal shares are rounded to.
const SharePlaces = 2

var hundred = decimal.NewFromInt(100)

// Share is the computed amount one allocation line owes.
type Share struct {
	UserID         string
	AllocationType models.AllocationType
	Amount         decimal.Decimal
	Paid           bool
}

// Split is the result of applying allocation lines to an expense total.
type Split struct {
	Shares []Share

	// Unallocated is total minus the sum of all shares. It is negative when
	// fixed-value and percentage lines exceed the total.
	Unallocated decimal.Decimal
}

// ComputeShares applies allocation lines to total.
//
// Fixed-value lines take their amount and percentage lines take amount percent
// of total. Equal lines split whatever remains equally; their own amount is
// ignored. Equal shares are rounded to SharePlaces and the last equal line
// absorbs the rounding difference, so shares always sum to the remainder.
func ComputeShares(total decimal.Decimal, lines []models.Participant) Split {
	shares := make([]Share, len(lines))
	allocated := decimal.Zero
	var equal []int

	for i, line := range lines {
		shares[i] = Share{
			UserID:         line.UserID,
			AllocationType: line.AllocationType,
			Amount:         decimal.Zero,
			Paid:           line.PaidAt != nil,
		}
		switch line.AllocationType {
		case models.AllocationFixed:
			shares[i].Amount = line.Amount
		case models.AllocationPercentage:
			shares[i].Amount = total.Mul(line.Amount).Div(hundred)
		case models.AllocationEqual:
			equal = append(equal, i)
			continue
		}
		allocated = allocated.Add(shares[i].Amount)
	}

	remainder := total.Sub(allocated)
	if len(equal) > 0 && remainder.IsPositive() {
		each := remainder.DivRound(decimal.NewFromInt(int64(len(equal))), SharePlaces)
		given := decimal.Zero
		for k, i := range equal {
			if k == len(equal)-1 {
				shares[i].Amount = remainder.Sub(given)
				break
			}
			shares[i].Amount = each
			given = given.Add(each)
		}
		allocated = allocated.Add(remainder)
	}

	return Split{Shares: shares, Unallocated: total.Sub(allocated)}
}
