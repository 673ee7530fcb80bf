package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

// Trend describes the direction of a revenue series.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

const (
	trendSlopeThreshold = 0.1
	minTrendPoints      = 3
)

// ChartSummary describes a revenue series against the preceding period of equal length.
type ChartSummary struct {
	TotalRevenue    decimal.Decimal
	AverageRevenue  decimal.Decimal
	TotalOrders     int
	PreviousRevenue decimal.Decimal
	PreviousOrders  int
	RevenueGrowth   float64
	OrderGrowth     float64
	Trend           Trend
	Accelerating    bool
	Volatility      float64
	PeakDay         *RevenuePoint
	LowestDay       *RevenuePoint
	DaysWithSales   int
}

// SummarizeChart computes growth, trend and spread statistics for current.
// previous may be empty, in which case growth is measured against zero.
func SummarizeChart(current, previous []RevenuePoint) ChartSummary {
	revenue, orders := SeriesTotals(current)
	prevRevenue, prevOrders := SeriesTotals(previous)

	summary := ChartSummary{
		TotalRevenue:    revenue,
		AverageRevenue:  decimal.Zero,
		TotalOrders:     orders,
		PreviousRevenue: prevRevenue,
		PreviousOrders:  prevOrders,
		RevenueGrowth:   growthPercent(revenue, prevRevenue),
		OrderGrowth:     growthPercent(decimal.NewFromInt(int64(orders)), decimal.NewFromInt(int64(prevOrders))),
		Trend:           revenueTrend(current),
		Accelerating:    accelerating(current),
	}
	if len(current) == 0 {
		return summary
	}

	summary.AverageRevenue = revenue.Div(decimal.NewFromInt(int64(len(current)))).Round(2)
	summary.Volatility = coefficientOfVariation(current)

	peak, low := current[0], current[0]
	for _, p := range current {
		if p.Revenue.GreaterThan(decimal.Zero) {
			summary.DaysWithSales++
		}
		if p.Revenue.GreaterThan(peak.Revenue) {
			peak = p
		}
		if p.Revenue.LessThan(low.Revenue) {
			low = p
		}
	}
	summary.PeakDay = &peak
	summary.LowestDay = &low
	return summary
}

// revenueTrend classifies the least-squares slope of revenue against bucket index.
func revenueTrend(points []RevenuePoint) Trend {
	n := len(points)
	if n < minTrendPoints {
		return TrendStable
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		y := p.Revenue.InexactFloat64()
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denominator := fn*sumXX - sumX*sumX
	if denominator == 0 {
		return TrendStable
	}
	slope := (fn*sumXY - sumX*sumY) / denominator
	switch {
	case slope > trendSlopeThreshold:
		return TrendIncreasing
	case slope < -trendSlopeThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func accelerating(points []RevenuePoint) bool {
	n := len(points)
	if n < 3 {
		return false
	}
	a, b, c := points[n-3].Revenue, points[n-2].Revenue, points[n-1].Revenue
	return b.GreaterThan(a) && c.GreaterThan(b)
}

// coefficientOfVariation returns the population standard deviation over the mean, in percent.
func coefficientOfVariation(points []RevenuePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	values := make([]float64, len(points))
	var sum float64
	for i, p := range points {
		values[i] = p.Revenue.InexactFloat64()
		sum += values[i]
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return round2(math.Sqrt(variance) / mean * 100)
}
