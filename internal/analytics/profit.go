package analytics

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopx/api/internal/domain"
)

// EstimateCaveat is attached to every ProfitSnapshot.
const EstimateCaveat = "Figures are estimates: cost of goods sold is derived from category ratios, not recorded unit costs."

const defaultTopProfitable = 10

var (
	premiumPriceFloor = decimal.NewFromInt(1_000_000)
	budgetPriceCeil   = decimal.NewFromInt(100_000)
	priceBandDelta    = decimal.RequireFromString("0.05")
	minCostRatio      = decimal.RequireFromString("0.25")
	maxCostRatio      = decimal.RequireFromString("0.80")

	lowRevenueMark  = decimal.NewFromInt(1_000_000)
	highRevenueMark = decimal.NewFromInt(10_000_000)
)

// CostModel estimates the cost-of-goods ratio of a product.
type CostModel struct {
	// DefaultRatio applies to categories missing from CategoryRatios.
	DefaultRatio   decimal.Decimal
	CategoryRatios map[string]decimal.Decimal
	// PriceBands shifts the ratio down for premium and up for budget products.
	PriceBands bool
}

// DefaultCostModel returns the built-in category ratios.
func DefaultCostModel() CostModel {
	ratios := map[string]string{
		"1": "0.70", "2": "0.68", "3": "0.50", "4": "0.52", "5": "0.45", "6": "0.55",
		"7": "0.60", "8": "0.65", "9": "0.62", "10": "0.50", "11": "0.40", "12": "0.45",
	}
	model := CostModel{
		DefaultRatio:   decimal.RequireFromString("0.55"),
		CategoryRatios: make(map[string]decimal.Decimal, len(ratios)),
		PriceBands:     true,
	}
	for id, r := range ratios {
		model.CategoryRatios[id] = decimal.RequireFromString(r)
	}
	return model
}

// FlatCostModel applies one ratio to every product.
func FlatCostModel(ratio decimal.Decimal) CostModel {
	return CostModel{DefaultRatio: ratio}
}

// Ratio returns the estimated COGS ratio for a product of the given category
// sold at avgUnitPrice.
func (m CostModel) Ratio(categoryID string, avgUnitPrice decimal.Decimal) decimal.Decimal {
	ratio, ok := m.CategoryRatios[strings.TrimSpace(categoryID)]
	if !ok {
		ratio = m.DefaultRatio
	}
	if !m.PriceBands {
		return ratio
	}
	switch {
	case avgUnitPrice.GreaterThan(premiumPriceFloor):
		ratio = ratio.Sub(priceBandDelta)
	case avgUnitPrice.LessThan(budgetPriceCeil):
		ratio = ratio.Add(priceBandDelta)
	}
	return decimal.Min(decimal.Max(ratio, minCostRatio), maxCostRatio)
}

// ExpenseModel estimates operating expenses from revenue-proportional rates
// and a flat shipping cost per order. Every field may be zero.
type ExpenseModel struct {
	PlatformRate        decimal.Decimal
	PaymentRate         decimal.Decimal
	MarketingRate       decimal.Decimal
	PackagingRate       decimal.Decimal
	CustomerServiceRate decimal.Decimal
	ShippingPerOrder    decimal.Decimal
}

// DefaultExpenseModel returns the built-in expense rates.
func DefaultExpenseModel() ExpenseModel {
	return ExpenseModel{
		PlatformRate:        decimal.RequireFromString("0.03"),
		PaymentRate:         decimal.RequireFromString("0.025"),
		MarketingRate:       decimal.RequireFromString("0.07"),
		PackagingRate:       decimal.RequireFromString("0.015"),
		CustomerServiceRate: decimal.RequireFromString("0.02"),
		ShippingPerOrder:    decimal.NewFromInt(30_000),
	}
}

// ExpenseBreakdown itemises an operating-expense estimate.
type ExpenseBreakdown struct {
	Platform        decimal.Decimal
	Payment         decimal.Decimal
	Shipping        decimal.Decimal
	Marketing       decimal.Decimal
	Packaging       decimal.Decimal
	CustomerService decimal.Decimal
	Total           decimal.Decimal
}

// Estimate computes the expense breakdown for the given revenue and order count.
func (m ExpenseModel) Estimate(revenue decimal.Decimal, orders int) ExpenseBreakdown {
	b := ExpenseBreakdown{
		Platform:        revenue.Mul(m.PlatformRate),
		Payment:         revenue.Mul(m.PaymentRate),
		Shipping:        m.ShippingPerOrder.Mul(decimal.NewFromInt(int64(orders))),
		Marketing:       revenue.Mul(m.MarketingRate),
		Packaging:       revenue.Mul(m.PackagingRate),
		CustomerService: revenue.Mul(m.CustomerServiceRate),
	}
	b.Total = b.Platform.Add(b.Payment).Add(b.Shipping).Add(b.Marketing).Add(b.Packaging).Add(b.CustomerService)
	return b
}

// ProductProfit is the estimated profit of one product over a period.
type ProductProfit struct {
	ProductID     string
	ProductName   string
	CategoryID    string
	QuantitySold  int
	Revenue       decimal.Decimal
	EstimatedCOGS decimal.Decimal
	GrossProfit   decimal.Decimal
	ProfitMargin  float64
	CostRatio     decimal.Decimal
}

// ProfitSnapshot is the profit estimate for a seller over a period.
type ProfitSnapshot struct {
	PeriodStart        time.Time
	PeriodEnd          time.Time
	TotalRevenue       decimal.Decimal
	EstimatedCOGS      decimal.Decimal
	GrossProfit        decimal.Decimal
	GrossMargin        float64
	OperatingExpenses  ExpenseBreakdown
	NetProfit          decimal.Decimal
	NetMargin          float64
	TotalOrders        int
	TotalQuantity      int
	AverageOrderProfit decimal.Decimal
	TopProducts        []ProductProfit
	Notes              []string
	Caveat             string
}

// ProfitAnalyzer turns revenue-recognized orders into a ProfitSnapshot.
// The zero value uses a flat zero cost ratio and no expenses.
type ProfitAnalyzer struct {
	Costs    CostModel
	Expenses ExpenseModel
	// TopN caps TopProducts; 0 means 10.
	TopN int
}

// NewProfitAnalyzer builds an analyzer with the default cost and expense models.
func NewProfitAnalyzer() ProfitAnalyzer {
	return ProfitAnalyzer{Costs: DefaultCostModel(), Expenses: DefaultExpenseModel(), TopN: defaultTopProfitable}
}

type productTotals struct {
	name       string
	categoryID string
	quantity   int
	revenue    decimal.Decimal
	lastSeen   time.Time
}

// Analyze estimates profit for the revenue-recognized orders created within
// [periodStart, periodEnd]. An empty or invalid period yields a zero snapshot.
func (a ProfitAnalyzer) Analyze(orders []domain.Order, periodStart, periodEnd time.Time) ProfitSnapshot {
	period := NewPeriod(periodStart, periodEnd)
	snapshot := ProfitSnapshot{
		PeriodStart:        period.Start,
		PeriodEnd:          period.End,
		TotalRevenue:       decimal.Zero,
		EstimatedCOGS:      decimal.Zero,
		GrossProfit:        decimal.Zero,
		NetProfit:          decimal.Zero,
		AverageOrderProfit: decimal.Zero,
		OperatingExpenses:  zeroBreakdown(),
		TopProducts:        []ProductProfit{},
		Caveat:             EstimateCaveat,
	}
	if !period.Valid() {
		snapshot.Notes = []string{EstimateCaveat}
		return snapshot
	}

	var ids []string
	products := make(map[string]*productTotals)
	for _, order := range orders {
		if !order.Status.RevenueRecognized() || !period.Contains(order.CreatedAt) {
			continue
		}
		snapshot.TotalOrders++
		snapshot.TotalRevenue = snapshot.TotalRevenue.Add(order.TotalAmount())
		for _, item := range order.Items {
			p, ok := products[item.ProductID]
			if !ok {
				p = &productTotals{revenue: decimal.Zero}
				products[item.ProductID] = p
				ids = append(ids, item.ProductID)
			}
			p.quantity += item.Quantity
			p.revenue = p.revenue.Add(item.LineTotal())
			if !order.CreatedAt.Before(p.lastSeen) {
				p.lastSeen = order.CreatedAt
				p.name = item.ProductName
				p.categoryID = item.CategoryID
			}
			snapshot.TotalQuantity += item.Quantity
		}
	}
	if snapshot.TotalOrders == 0 {
		snapshot.Notes = []string{"No revenue-recognized orders in this period.", EstimateCaveat}
		return snapshot
	}

	profits := make([]ProductProfit, 0, len(ids))
	for _, id := range ids {
		p := products[id]
		avgPrice := decimal.Zero
		if p.quantity > 0 {
			avgPrice = p.revenue.Div(decimal.NewFromInt(int64(p.quantity)))
		}
		ratio := a.Costs.Ratio(p.categoryID, avgPrice)
		cogs := p.revenue.Mul(ratio)
		gross := p.revenue.Sub(cogs)
		snapshot.EstimatedCOGS = snapshot.EstimatedCOGS.Add(cogs)
		profits = append(profits, ProductProfit{
			ProductID:     id,
			ProductName:   p.name,
			CategoryID:    p.categoryID,
			QuantitySold:  p.quantity,
			Revenue:       p.revenue,
			EstimatedCOGS: cogs.Round(2),
			GrossProfit:   gross.Round(2),
			ProfitMargin:  percentOf(gross, p.revenue),
			CostRatio:     ratio,
		})
	}

	limit := a.TopN
	if limit <= 0 {
		limit = defaultTopProfitable
	}
	snapshot.TopProducts = topN(profits, limit, func(x, y ProductProfit) int {
		if c := y.GrossProfit.Cmp(x.GrossProfit); c != 0 {
			return c
		}
		if x.QuantitySold != y.QuantitySold {
			return y.QuantitySold - x.QuantitySold
		}
		return strings.Compare(x.ProductID, y.ProductID)
	})

	snapshot.EstimatedCOGS = snapshot.EstimatedCOGS.Round(2)
	snapshot.GrossProfit = snapshot.TotalRevenue.Sub(snapshot.EstimatedCOGS)
	snapshot.GrossMargin = percentOf(snapshot.GrossProfit, snapshot.TotalRevenue)
	snapshot.OperatingExpenses = roundBreakdown(a.Expenses.Estimate(snapshot.TotalRevenue, snapshot.TotalOrders))
	snapshot.NetProfit = snapshot.GrossProfit.Sub(snapshot.OperatingExpenses.Total)
	snapshot.NetMargin = percentOf(snapshot.NetProfit, snapshot.TotalRevenue)
	snapshot.AverageOrderProfit = snapshot.NetProfit.Div(decimal.NewFromInt(int64(snapshot.TotalOrders))).Round(2)
	snapshot.Notes = profitNotes(snapshot)
	return snapshot
}

func profitNotes(s ProfitSnapshot) []string {
	var notes []string
	switch {
	case s.TotalRevenue.LessThan(lowRevenueMark):
		notes = append(notes, "Revenue is low: consider more marketing or a wider product range.")
	case s.TotalRevenue.GreaterThan(highRevenueMark):
		notes = append(notes, "Revenue is healthy: keep optimising efficiency.")
	}
	switch {
	case s.GrossMargin < 20:
		notes = append(notes, "Gross margin is low: review selling prices or purchase costs.")
	case s.GrossMargin > 40:
		notes = append(notes, "Gross margin is strong: discounts could grow volume.")
	}
	switch {
	case s.NetMargin < 5:
		notes = append(notes, "Net margin is low: operating costs need attention.")
	case s.NetMargin > 15:
		notes = append(notes, "Net margin is excellent: there is room to expand.")
	}
	return append(notes, EstimateCaveat)
}

func zeroBreakdown() ExpenseBreakdown {
	return ExpenseBreakdown{
		Platform:        decimal.Zero,
		Payment:         decimal.Zero,
		Shipping:        decimal.Zero,
		Marketing:       decimal.Zero,
		Packaging:       decimal.Zero,
		CustomerService: decimal.Zero,
		Total:           decimal.Zero,
	}
}

func roundBreakdown(b ExpenseBreakdown) ExpenseBreakdown {
	return ExpenseBreakdown{
		Platform:        b.Platform.Round(2),
		Payment:         b.Payment.Round(2),
		Shipping:        b.Shipping.Round(2),
		Marketing:       b.Marketing.Round(2),
		Packaging:       b.Packaging.Round(2),
		CustomerService: b.CustomerService.Round(2),
		Total:           b.Total.Round(2),
	}
}
