// Package duration converts human duration strings such as "2 weeks" to and
// from time.Duration.
//
// Units run from millisecond to year. A month is 30 days and a year is 365 days.
package duration

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// maxMillis is the largest millisecond count a time.Duration can hold.
var maxMillis = decimal.NewFromInt(math.MaxInt64 / int64(time.Millisecond))

type unit struct {
	name string
	size time.Duration
}

// units is ordered from largest to smallest.
var units = []unit{
	{"year", Year},
	{"month", Month},
	{"week", Week},
	{"day", Day},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
	{"millisecond", time.Millisecond},
}

// Parse reads "<amount> <unit>", e.g. "2 weeks" or "1.5 days". Plural units
// are accepted. Strings in time.ParseDuration syntax ("168h") are accepted too.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	fields := strings.Fields(s)
	if len(fields) == 1 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return d, nil
	}
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid duration %q: want \"<amount> <unit>\"", s)
	}

	amount, err := decimal.NewFromString(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid duration amount %q", fields[0])
	}
	name := strings.TrimSuffix(strings.ToLower(fields[1]), "s")
	for _, u := range units {
		if u.name == name {
			ms := amount.Mul(decimal.NewFromInt(u.size.Milliseconds())).Round(0)
			if ms.Abs().GreaterThan(maxMillis) {
				return 0, fmt.Errorf("duration %q out of range", s)
			}
			return time.Duration(ms.IntPart()) * time.Millisecond, nil
		}
	}
	return 0, fmt.Errorf("unknown time unit %q", fields[1])
}

// Format renders d in the largest unit it reaches, rounded to two decimals.
func Format(d time.Duration) string {
	abs := d.Abs()
	chosen := units[len(units)-1]
	for _, u := range units {
		if abs >= u.size {
			chosen = u
			break
		}
	}
	return FormatIn(d, chosen.name)
}

// FormatIn renders d in the named unit. An unknown unit falls back to Format.
func FormatIn(d time.Duration, unitName string) string {
	for _, u := range units {
		if u.name != unitName {
			continue
		}
		value := decimal.NewFromInt(d.Milliseconds()).
			Div(decimal.NewFromInt(u.size.Milliseconds())).
			Round(2)
		name := u.name
		if !value.Abs().Equal(decimal.NewFromInt(1)) {
			name += "s"
		}
		return value.String() + " " + name
	}
	return Format(d)
}
