package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/domain"
)

// PeriodTotals is the recognized revenue and total order count of a period.
type PeriodTotals struct {
	Period  Period
	Revenue decimal.Decimal
	Orders  int
}

// Dashboard is the seller overview.
type Dashboard struct {
	Today                 PeriodTotals
	ThisWeek              PeriodTotals
	ThisMonth             PeriodTotals
	LastMonth             PeriodTotals
	RevenueGrowth         float64
	OrderGrowth           float64
	Statuses              StatusSummary
	ProductsSoldThisMonth int
}

// DashboardRange returns the earliest day the dashboard needs, the first day
// of last month, so callers can fetch exactly the orders BuildDashboard reads.
func DashboardRange(now time.Time) Period {
	return Period{Start: startOfMonth(now).AddDate(0, -1, 0), End: startOfDay(now)}
}

// BuildDashboard aggregates the overview as of now. Statuses covers every
// order passed in; callers decide how far back that reaches.
func BuildDashboard(orders []domain.Order, now time.Time) Dashboard {
	today := Period{Start: startOfDay(now), End: startOfDay(now)}
	week := Period{Start: startOfWeek(now), End: startOfWeek(now).AddDate(0, 0, 6)}
	month := Period{Start: startOfMonth(now), End: startOfMonth(now).AddDate(0, 1, -1)}
	lastMonthStart := startOfMonth(now).AddDate(0, -1, 0)
	lastMonth := Period{Start: lastMonthStart, End: month.Start.AddDate(0, 0, -1)}

	d := Dashboard{
		Today:     periodTotals(orders, today),
		ThisWeek:  periodTotals(orders, week),
		ThisMonth: periodTotals(orders, month),
		LastMonth: periodTotals(orders, lastMonth),
		Statuses:  SummarizeStatuses(orders),
	}
	d.RevenueGrowth = growthPercent(d.ThisMonth.Revenue, d.LastMonth.Revenue)
	d.OrderGrowth = growthPercent(decimal.NewFromInt(int64(d.ThisMonth.Orders)), decimal.NewFromInt(int64(d.LastMonth.Orders)))

	for _, order := range orders {
		if !order.Status.RevenueRecognized() || !month.Contains(order.CreatedAt) {
			continue
		}
		for _, item := range order.Items {
			d.ProductsSoldThisMonth += item.Quantity
		}
	}
	return d
}

func periodTotals(orders []domain.Order, period Period) PeriodTotals {
	totals := PeriodTotals{Period: period, Revenue: RecognizedRevenue(orders, period)}
	for _, order := range orders {
		if period.Contains(order.CreatedAt) {
			totals.Orders++
		}
	}
	return totals
}
