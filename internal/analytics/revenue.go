package analytics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/domain"
)

// Granularity selects the bucket size of a revenue series.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity accepts day, week or month (case-insensitive); empty means day.
func ParseGranularity(raw string) (Granularity, bool) {
	switch Granularity(strings.ToLower(strings.TrimSpace(raw))) {
	case "", GranularityDay:
		return GranularityDay, true
	case GranularityWeek:
		return GranularityWeek, true
	case GranularityMonth:
		return GranularityMonth, true
	default:
		return "", false
	}
}

// RevenuePoint is one bucket of a revenue series. Date is the first day of the bucket.
type RevenuePoint struct {
	Date       time.Time
	Revenue    decimal.Decimal
	OrderCount int
}

// BuildSeries buckets orders by creation day between start and end inclusive.
// Every bucket in the range is present, including empty ones. OrderCount
// counts all orders of the bucket while Revenue only sums revenue-recognized
// ones. Buckets use start's location; weeks begin on Monday.
func BuildSeries(orders []domain.Order, start, end time.Time, granularity Granularity) []RevenuePoint {
	period := NewPeriod(start, end)
	if !period.Valid() {
		return []RevenuePoint{}
	}
	if granularity == "" {
		granularity = GranularityDay
	}

	points := make([]RevenuePoint, 0, period.Days())
	index := make(map[string]int)
	for b := bucketStart(period.Start, granularity); !b.After(period.End); b = nextBucket(b, granularity) {
		index[b.Format(dateLayout)] = len(points)
		points = append(points, RevenuePoint{Date: b, Revenue: decimal.Zero})
	}

	loc := period.Start.Location()
	for _, order := range orders {
		if !period.Contains(order.CreatedAt) {
			continue
		}
		key := bucketStart(order.CreatedAt.In(loc), granularity).Format(dateLayout)
		i, ok := index[key]
		if !ok {
			continue
		}
		points[i].OrderCount++
		if order.Status.RevenueRecognized() {
			points[i].Revenue = points[i].Revenue.Add(order.TotalAmount())
		}
	}
	return points
}

// RecognizedRevenue sums TotalAmount over revenue-recognized orders created within the period.
func RecognizedRevenue(orders []domain.Order, period Period) decimal.Decimal {
	total := decimal.Zero
	for _, order := range orders {
		if order.Status.RevenueRecognized() && period.Contains(order.CreatedAt) {
			total = total.Add(order.TotalAmount())
		}
	}
	return total
}

// SeriesTotals returns the revenue and order count summed across points.
func SeriesTotals(points []RevenuePoint) (decimal.Decimal, int) {
	revenue := decimal.Zero
	orders := 0
	for _, p := range points {
		revenue = revenue.Add(p.Revenue)
		orders += p.OrderCount
	}
	return revenue, orders
}

func bucketStart(t time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GranularityWeek:
		return startOfWeek(t)
	case GranularityMonth:
		return startOfMonth(t)
	default:
		return startOfDay(t)
	}
}

func nextBucket(t time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
