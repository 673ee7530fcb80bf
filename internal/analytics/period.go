// Package analytics holds the pure aggregation functions behind the seller
// statistics endpoints. Every function works on an in-memory snapshot of
// orders, performs no I/O and never mutates its input, so callers may run
// them concurrently.
package analytics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Period is an inclusive range of calendar days in a single location.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod truncates both bounds to midnight in start's location.
func NewPeriod(start, end time.Time) Period {
	loc := start.Location()
	return Period{
		Start: startOfDay(start),
		End:   startOfDay(end.In(loc)),
	}
}

// Valid reports whether the period does not end before it starts.
func (p Period) Valid() bool {
	return !p.End.Before(p.Start)
}

// Contains reports whether t falls on one of the period's days.
func (p Period) Contains(t time.Time) bool {
	day := startOfDay(t.In(p.Start.Location()))
	return !day.Before(p.Start) && !day.After(p.End)
}

// Days returns the number of calendar days covered, 0 for an invalid period.
func (p Period) Days() int {
	if !p.Valid() {
		return 0
	}
	days := 0
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// Previous returns the period of equal length that ends the day before p starts.
func (p Period) Previous() Period {
	days := p.Days()
	end := p.Start.AddDate(0, 0, -1)
	return Period{Start: p.Start.AddDate(0, 0, -days), End: end}
}

// EndOfDay returns the last instant of the period, useful for repository range queries.
func (p Period) EndOfDay() time.Time {
	return p.End.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// TrailingDays returns the period of n days ending on now's calendar day.
func TrailingDays(now time.Time, n int) Period {
	if n < 1 {
		n = 1
	}
	end := startOfDay(now)
	return Period{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

var hundred = decimal.NewFromInt(100)

// percentOf returns part/whole*100 rounded to two places, 0 when whole is 0.
func percentOf(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(hundred).Round(2).InexactFloat64()
}

// growthPercent follows the dashboard convention: 100 when the previous value
// is 0 and the current one positive.
func growthPercent(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		if current.GreaterThan(decimal.Zero) {
			return 100
		}
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2).InexactFloat64()
}

func ratePercent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(count) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
