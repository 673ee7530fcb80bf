package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopx/api/internal/analytics"
	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/auth"
	"github.com/shopx/api/internal/platform/httpx"
	"github.com/shopx/api/internal/services"
)

const dateParamLayout = "2006-01-02"

// StatisticsHandlers exposes the seller statistics reports.
type StatisticsHandlers struct {
	stats    services.StatisticsService
	location *time.Location
}

// StatisticsOption customises StatisticsHandlers.
type StatisticsOption func(*StatisticsHandlers)

// WithStatisticsLocation sets the zone used to interpret date query parameters and format dates.
func WithStatisticsLocation(loc *time.Location) StatisticsOption {
	return func(h *StatisticsHandlers) {
		if loc != nil {
			h.location = loc
		}
	}
}

// NewStatisticsHandlers constructs a new StatisticsHandlers instance.
func NewStatisticsHandlers(stats services.StatisticsService, opts ...StatisticsOption) *StatisticsHandlers {
	h := &StatisticsHandlers{stats: stats, location: time.UTC}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /statistics endpoints.
func (h *StatisticsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/revenue", h.revenue)
	r.Get("/revenue-chart", h.revenueChart)
	r.Get("/order-status", h.orderStatus)
	r.Get("/orders", h.orders)
	r.Get("/top-products", h.topProducts)
	r.Get("/top-customers", h.topCustomers)
	r.Get("/profit-analysis", h.profit)
	r.Get("/dashboard", h.dashboard)
}

func (h *StatisticsHandlers) revenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	start, end, err := h.parseDateRange(query.Get("startDate"), query.Get("endDate"))
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	granularity, ok := analytics.ParseGranularity(query.Get("groupBy"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "groupBy must be day, week or month", http.StatusBadRequest))
		return
	}

	report, err := h.stats.Revenue(ctx, services.RevenueQuery{
		StatisticsScope: scope,
		StartDate:       start,
		EndDate:         end,
		Granularity:     granularity,
	})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, revenueResponse{
		Period:       buildPeriodPayload(report.Period),
		GroupBy:      string(report.Granularity),
		Points:       buildRevenuePoints(report.Points),
		TotalRevenue: report.TotalRevenue.String(),
		TotalOrders:  report.TotalOrders,
	})
}

func (h *StatisticsHandlers) revenueChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	days, err := intParam(r, "days")
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	report, err := h.stats.RevenueChart(ctx, services.RevenueChartQuery{StatisticsScope: scope, Days: days})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, revenueChartResponse{
		Period:  buildPeriodPayload(report.Period),
		Points:  buildRevenuePoints(report.Points),
		Summary: buildChartSummary(report.Summary),
	})
}

func (h *StatisticsHandlers) orderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	summary, err := h.stats.OrderStatus(ctx, services.StatusQuery{StatisticsScope: scope})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStatusSummary(summary))
}

func (h *StatisticsHandlers) orders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var statuses []domain.OrderStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := domain.ParseOrderStatus(part)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("unknown status %q", strings.TrimSpace(part)), http.StatusBadRequest))
				return
			}
			statuses = append(statuses, status)
		}
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	orders, err := h.stats.Orders(ctx, services.OrderListQuery{StatisticsScope: scope, Statuses: statuses, Limit: limit})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	payload := orderListResponse{Items: make([]orderPayload, 0, len(orders))}
	for _, order := range orders {
		payload.Items = append(payload.Items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *StatisticsHandlers) topProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	days, err := intParam(r, "days")
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	report, err := h.stats.TopProducts(ctx, services.TopProductsQuery{
		StatisticsScope: scope,
		Days:            days,
		Limit:           limit,
		CategoryID:      strings.TrimSpace(r.URL.Query().Get("categoryId")),
	})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildRanking(report))
}

func (h *StatisticsHandlers) topCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	days, err := intParam(r, "days")
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	report, err := h.stats.TopCustomers(ctx, services.TopCustomersQuery{StatisticsScope: scope, Days: days, Limit: limit})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildRanking(report))
}

func (h *StatisticsHandlers) profit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	start, end, err := h.parseDateRange(query.Get("startDate"), query.Get("endDate"))
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}

	snapshot, err := h.stats.Profit(ctx, services.ProfitQuery{StatisticsScope: scope, StartDate: start, EndDate: end})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildProfit(snapshot))
}

func (h *StatisticsHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	dashboard, err := h.stats.Dashboard(ctx, services.StatusQuery{StatisticsScope: scope})
	if err != nil {
		writeStatisticsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, dashboardResponse{
		Today:                 buildPeriodTotals(dashboard.Today),
		ThisWeek:              buildPeriodTotals(dashboard.ThisWeek),
		ThisMonth:             buildPeriodTotals(dashboard.ThisMonth),
		LastMonth:             buildPeriodTotals(dashboard.LastMonth),
		RevenueGrowth:         dashboard.RevenueGrowth,
		OrderGrowth:           dashboard.OrderGrowth,
		Statuses:              buildStatusSummary(dashboard.Statuses),
		ProductsSoldThisMonth: dashboard.ProductsSoldThisMonth,
	})
}

// scope resolves the caller and the optional sellerId override admins use.
func (h *StatisticsHandlers) scope(w http.ResponseWriter, r *http.Request) (services.StatisticsScope, bool) {
	ctx := r.Context()
	if h.stats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("statistics_service_unavailable", "statistics service unavailable", http.StatusServiceUnavailable))
		return services.StatisticsScope{}, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.StatisticsScope{}, false
	}
	return services.StatisticsScope{
		Actor:    identity,
		SellerID: strings.TrimSpace(r.URL.Query().Get("sellerId")),
	}, true
}

func (h *StatisticsHandlers) parseDateRange(rawStart, rawEnd string) (*time.Time, *time.Time, error) {
	start, err := h.parseDate("startDate", rawStart)
	if err != nil {
		return nil, nil, err
	}
	end, err := h.parseDate("endDate", rawEnd)
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func (h *StatisticsHandlers) parseDate(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateParamLayout, raw, h.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be formatted as YYYY-MM-DD", services.ErrInvalidQuery, name)
	}
	return &t, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", services.ErrInvalidQuery, name)
	}
	return value, nil
}

func writeStatisticsError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidPeriod):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_period", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidQuery):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to read these statistics", http.StatusForbidden))
	case errors.Is(err, services.ErrRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("repository_unavailable", "order store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("statistics_error", "failed to compute statistics", http.StatusInternalServerError))
	}
}

type periodPayload struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

type revenuePointPayload struct {
	Date       string `json:"date"`
	Revenue    string `json:"revenue"`
	OrderCount int    `json:"order_count"`
}

type revenueResponse struct {
	Period       periodPayload         `json:"period"`
	GroupBy      string                `json:"group_by"`
	Points       []revenuePointPayload `json:"points"`
	TotalRevenue string                `json:"total_revenue"`
	TotalOrders  int                   `json:"total_orders"`
}

type revenueChartResponse struct {
	Period  periodPayload         `json:"period"`
	Points  []revenuePointPayload `json:"points"`
	Summary chartSummaryPayload   `json:"summary"`
}

type chartSummaryPayload struct {
	TotalRevenue    string               `json:"total_revenue"`
	AverageRevenue  string               `json:"average_revenue"`
	TotalOrders     int                  `json:"total_orders"`
	PreviousRevenue string               `json:"previous_revenue"`
	PreviousOrders  int                  `json:"previous_orders"`
	RevenueGrowth   float64              `json:"revenue_growth"`
	OrderGrowth     float64              `json:"order_growth"`
	Trend           string               `json:"trend"`
	Accelerating    bool                 `json:"accelerating"`
	Volatility      float64              `json:"volatility"`
	PeakDay         *revenuePointPayload `json:"peak_day,omitempty"`
	LowestDay       *revenuePointPayload `json:"lowest_day,omitempty"`
	DaysWithSales   int                  `json:"days_with_sales"`
}

type statusSummaryPayload struct {
	Total            int            `json:"total"`
	Counts           map[string]int `json:"counts"`
	CompletionRate   float64        `json:"completion_rate"`
	CancellationRate float64        `json:"cancellation_rate"`
	RefundRate       float64        `json:"refund_rate"`
	ActiveRate       float64        `json:"active_rate"`
	FinalizedRate    float64        `json:"finalized_rate"`
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

type rankingResponse struct {
	Period periodPayload         `json:"period"`
	Items  []rankedEntityPayload `json:"items"`
}

type rankedEntityPayload struct {
	Rank              int    `json:"rank"`
	Kind              string `json:"kind"`
	ID                string `json:"id"`
	Name              string `json:"name"`
	CategoryID        string `json:"category_id,omitempty"`
	QuantitySold      int    `json:"quantity_sold,omitempty"`
	Revenue           string `json:"revenue"`
	OrderCount        int    `json:"order_count"`
	AverageOrderValue string `json:"average_order_value,omitempty"`
	AverageUnitPrice  string `json:"average_unit_price,omitempty"`
	FirstOrderAt      string `json:"first_order_at,omitempty"`
	LastOrderAt       string `json:"last_order_at,omitempty"`
	VIP               bool   `json:"vip,omitempty"`
}

type expensesPayload struct {
	Platform        string `json:"platform"`
	Payment         string `json:"payment"`
	Shipping        string `json:"shipping"`
	Marketing       string `json:"marketing"`
	Packaging       string `json:"packaging"`
	CustomerService string `json:"customer_service"`
	Total           string `json:"total"`
}

type productProfitPayload struct {
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name"`
	CategoryID    string  `json:"category_id,omitempty"`
	QuantitySold  int     `json:"quantity_sold"`
	Revenue       string  `json:"revenue"`
	EstimatedCOGS string  `json:"estimated_cogs"`
	GrossProfit   string  `json:"gross_profit"`
	ProfitMargin  float64 `json:"profit_margin"`
	CostRatio     string  `json:"cost_ratio"`
}

type profitResponse struct {
	Period             periodPayload          `json:"period"`
	TotalRevenue       string                 `json:"total_revenue"`
	EstimatedCOGS      string                 `json:"estimated_cogs"`
	GrossProfit        string                 `json:"gross_profit"`
	GrossMargin        float64                `json:"gross_margin"`
	OperatingExpenses  expensesPayload        `json:"operating_expenses"`
	NetProfit          string                 `json:"net_profit"`
	NetMargin          float64                `json:"net_margin"`
	TotalOrders        int                    `json:"total_orders"`
	TotalQuantity      int                    `json:"total_quantity"`
	AverageOrderProfit string                 `json:"average_order_profit"`
	TopProducts        []productProfitPayload `json:"top_products"`
	Notes              []string               `json:"notes"`
	Caveat             string                 `json:"caveat"`
}

type periodTotalsPayload struct {
	Period  periodPayload `json:"period"`
	Revenue string        `json:"revenue"`
	Orders  int           `json:"orders"`
}

type dashboardResponse struct {
	Today                 periodTotalsPayload  `json:"today"`
	ThisWeek              periodTotalsPayload  `json:"this_week"`
	ThisMonth             periodTotalsPayload  `json:"this_month"`
	LastMonth             periodTotalsPayload  `json:"last_month"`
	RevenueGrowth         float64              `json:"revenue_growth"`
	OrderGrowth           float64              `json:"order_growth"`
	Statuses              statusSummaryPayload `json:"statuses"`
	ProductsSoldThisMonth int                  `json:"products_sold_this_month"`
}

func buildPeriodPayload(p analytics.Period) periodPayload {
	return periodPayload{
		StartDate: p.Start.Format(dateParamLayout),
		EndDate:   p.End.Format(dateParamLayout),
		Days:      p.Days(),
	}
}

func buildRevenuePoint(point analytics.RevenuePoint) revenuePointPayload {
	return revenuePointPayload{
		Date:       point.Date.Format(dateParamLayout),
		Revenue:    point.Revenue.String(),
		OrderCount: point.OrderCount,
	}
}

func buildRevenuePoints(points []analytics.RevenuePoint) []revenuePointPayload {
	out := make([]revenuePointPayload, 0, len(points))
	for _, point := range points {
		out = append(out, buildRevenuePoint(point))
	}
	return out
}

func buildChartSummary(s analytics.ChartSummary) chartSummaryPayload {
	payload := chartSummaryPayload{
		TotalRevenue:    s.TotalRevenue.String(),
		AverageRevenue:  s.AverageRevenue.StringFixed(2),
		TotalOrders:     s.TotalOrders,
		PreviousRevenue: s.PreviousRevenue.String(),
		PreviousOrders:  s.PreviousOrders,
		RevenueGrowth:   s.RevenueGrowth,
		OrderGrowth:     s.OrderGrowth,
		Trend:           string(s.Trend),
		Accelerating:    s.Accelerating,
		Volatility:      s.Volatility,
		DaysWithSales:   s.DaysWithSales,
	}
	if s.PeakDay != nil {
		peak := buildRevenuePoint(*s.PeakDay)
		payload.PeakDay = &peak
	}
	if s.LowestDay != nil {
		lowest := buildRevenuePoint(*s.LowestDay)
		payload.LowestDay = &lowest
	}
	return payload
}

func buildStatusSummary(s analytics.StatusSummary) statusSummaryPayload {
	counts := make(map[string]int, len(s.Counts))
	for status, n := range s.Counts {
		counts[string(status)] = n
	}
	return statusSummaryPayload{
		Total:            s.Total,
		Counts:           counts,
		CompletionRate:   s.CompletionRate,
		CancellationRate: s.CancellationRate,
		RefundRate:       s.RefundRate,
		ActiveRate:       s.ActiveRate,
		FinalizedRate:    s.FinalizedRate,
	}
}

func (h *StatisticsHandlers) buildRanking(report services.RankingReport) rankingResponse {
	items := make([]rankedEntityPayload, 0, len(report.Entities))
	for i, entity := range report.Entities {
		item := rankedEntityPayload{
			Rank:         i + 1,
			Kind:         string(entity.Kind),
			ID:           entity.ID,
			Name:         entity.Name,
			CategoryID:   entity.CategoryID,
			QuantitySold: entity.QuantitySold,
			Revenue:      entity.Revenue.String(),
			OrderCount:   entity.OrderCount,
			FirstOrderAt: h.formatLocal(entity.FirstOrderAt),
			LastOrderAt:  h.formatLocal(entity.LastOrderAt),
			VIP:          entity.VIP,
		}
		switch entity.Kind {
		case analytics.EntityProduct:
			item.AverageUnitPrice = entity.AverageUnitPrice.StringFixed(2)
		case analytics.EntityCustomer:
			item.AverageOrderValue = entity.AverageOrderValue.StringFixed(2)
		}
		items = append(items, item)
	}
	return rankingResponse{Period: buildPeriodPayload(report.Period), Items: items}
}

func (h *StatisticsHandlers) buildProfit(s analytics.ProfitSnapshot) profitResponse {
	products := make([]productProfitPayload, 0, len(s.TopProducts))
	for _, p := range s.TopProducts {
		products = append(products, productProfitPayload{
			ProductID:     p.ProductID,
			ProductName:   p.ProductName,
			CategoryID:    p.CategoryID,
			QuantitySold:  p.QuantitySold,
			Revenue:       p.Revenue.String(),
			EstimatedCOGS: p.EstimatedCOGS.String(),
			GrossProfit:   p.GrossProfit.String(),
			ProfitMargin:  p.ProfitMargin,
			CostRatio:     p.CostRatio.String(),
		})
	}
	exp := s.OperatingExpenses
	return profitResponse{
		Period:        buildPeriodPayload(analytics.Period{Start: s.PeriodStart, End: s.PeriodEnd}),
		TotalRevenue:  s.TotalRevenue.String(),
		EstimatedCOGS: s.EstimatedCOGS.String(),
		GrossProfit:   s.GrossProfit.String(),
		GrossMargin:   s.GrossMargin,
		OperatingExpenses: expensesPayload{
			Platform:        exp.Platform.String(),
			Payment:         exp.Payment.String(),
			Shipping:        exp.Shipping.String(),
			Marketing:       exp.Marketing.String(),
			Packaging:       exp.Packaging.String(),
			CustomerService: exp.CustomerService.String(),
			Total:           exp.Total.String(),
		},
		NetProfit:          s.NetProfit.String(),
		NetMargin:          s.NetMargin,
		TotalOrders:        s.TotalOrders,
		TotalQuantity:      s.TotalQuantity,
		AverageOrderProfit: s.AverageOrderProfit.String(),
		TopProducts:        products,
		Notes:              append([]string{}, s.Notes...),
		Caveat:             s.Caveat,
	}
}

func buildPeriodTotals(t analytics.PeriodTotals) periodTotalsPayload {
	return periodTotalsPayload{
		Period:  buildPeriodPayload(t.Period),
		Revenue: t.Revenue.String(),
		Orders:  t.Orders,
	}
}

func (h *StatisticsHandlers) formatLocal(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(h.location).Format(time.RFC3339)
}
