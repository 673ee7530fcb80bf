package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopx/api/internal/analytics"
	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/cache"
	"github.com/shopx/api/internal/repositories"
)

const (
	dateKeyLayout = "2006-01-02"

	defaultChartDays        = 7
	maxChartDays            = 366
	defaultTopProductsDays  = 30
	defaultTopCustomersDays = 90
	defaultRankingLimit     = 10
	maxRankingLimit         = 100
)

// ErrInvalidQuery indicates statistics query parameters outside their accepted range.
var ErrInvalidQuery = errors.New("statistics: invalid query")

// StatisticsMetrics records report latency and cache efficiency. *observability.Metrics satisfies it.
type StatisticsMetrics interface {
	RecordStatistics(ctx context.Context, report string, elapsed time.Duration)
	RecordCacheLookup(ctx context.Context, report string, hit bool)
}

// StatisticsSettings carries the tunables loaded from configuration.
type StatisticsSettings struct {
	Location         *time.Location
	VIP              analytics.VIPPolicy
	Profit           analytics.ProfitAnalyzer
	TopProductsDays  int
	TopCustomersDays int
	DefaultLimit     int
}

// StatisticsServiceDeps bundles collaborators required to construct the statistics service.
type StatisticsServiceDeps struct {
	Orders     repositories.OrderRepository
	Authorizer Authorizer
	Cache      *cache.Loader
	Settings   StatisticsSettings
	Metrics    StatisticsMetrics
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type statisticsService struct {
	orders     repositories.OrderRepository
	authorizer Authorizer
	cache      *cache.Loader
	settings   StatisticsSettings
	metrics    StatisticsMetrics
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewStatisticsService wires dependencies into a concrete StatisticsService implementation.
func NewStatisticsService(deps StatisticsServiceDeps) (StatisticsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("statistics service: order repository is required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("statistics service: authorizer is required")
	}

	settings := deps.Settings
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.TopProductsDays <= 0 {
		settings.TopProductsDays = defaultTopProductsDays
	}
	if settings.TopCustomersDays <= 0 {
		settings.TopCustomersDays = defaultTopCustomersDays
	}
	if settings.DefaultLimit <= 0 {
		settings.DefaultLimit = defaultRankingLimit
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &statisticsService{
		orders:     deps.Orders,
		authorizer: deps.Authorizer,
		cache:      deps.Cache,
		settings:   settings,
		metrics:    deps.Metrics,
		clock:      clock,
		logger:     logger,
	}, nil
}

func (s *statisticsService) Revenue(ctx context.Context, query RevenueQuery) (RevenueReport, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return RevenueReport{}, err
	}
	period, err := s.resolvePeriod(query.StartDate, query.EndDate)
	if err != nil {
		return RevenueReport{}, err
	}
	granularity := query.Granularity
	if granularity == "" {
		granularity = analytics.GranularityDay
	}

	name := fmt.Sprintf("revenue:%s:%s:%s", period.Start.Format(dateKeyLayout), period.End.Format(dateKeyLayout), granularity)
	return loadReport(ctx, s, sellerID, "revenue", name, func(ctx context.Context) (RevenueReport, error) {
		orders, err := s.ordersIn(ctx, sellerID, period)
		if err != nil {
			return RevenueReport{}, err
		}
		points := analytics.BuildSeries(orders, period.Start, period.End, granularity)
		total, count := analytics.SeriesTotals(points)
		return RevenueReport{
			Period:       period,
			Granularity:  granularity,
			Points:       points,
			TotalRevenue: total,
			TotalOrders:  count,
		}, nil
	})
}

func (s *statisticsService) RevenueChart(ctx context.Context, query RevenueChartQuery) (RevenueChartReport, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return RevenueChartReport{}, err
	}
	days := query.Days
	if days == 0 {
		days = defaultChartDays
	}
	if days < 1 || days > maxChartDays {
		return RevenueChartReport{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidQuery, maxChartDays)
	}

	period := analytics.TrailingDays(s.now(), days)
	previous := period.Previous()
	name := fmt.Sprintf("chart:%s:%d", period.End.Format(dateKeyLayout), days)
	return loadReport(ctx, s, sellerID, "revenue_chart", name, func(ctx context.Context) (RevenueChartReport, error) {
		orders, err := s.ordersIn(ctx, sellerID, analytics.Period{Start: previous.Start, End: period.End})
		if err != nil {
			return RevenueChartReport{}, err
		}
		current := analytics.BuildSeries(orders, period.Start, period.End, analytics.GranularityDay)
		prior := analytics.BuildSeries(orders, previous.Start, previous.End, analytics.GranularityDay)
		return RevenueChartReport{
			Period:  period,
			Points:  current,
			Summary: analytics.SummarizeChart(current, prior),
		}, nil
	})
}

func (s *statisticsService) OrderStatus(ctx context.Context, query StatusQuery) (analytics.StatusSummary, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return analytics.StatusSummary{}, err
	}
	return loadReport(ctx, s, sellerID, "order_status", "status", func(ctx context.Context) (analytics.StatusSummary, error) {
		orders, err := s.fetch(ctx, sellerID, repositories.OrderQuery{})
		if err != nil {
			return analytics.StatusSummary{}, err
		}
		return analytics.SummarizeStatuses(orders), nil
	})
}

func (s *statisticsService) Orders(ctx context.Context, query OrderListQuery) ([]domain.Order, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return nil, err
	}
	if len(query.Statuses) == 0 {
		return nil, fmt.Errorf("%w: at least one status is required", ErrInvalidQuery)
	}
	limit, err := s.limit(query.Limit)
	if err != nil {
		return nil, err
	}

	orders, err := s.fetch(ctx, sellerID, repositories.OrderQuery{Statuses: query.Statuses})
	if err != nil {
		return nil, err
	}
	filtered := analytics.FilterByStatus(orders, query.Statuses...)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (s *statisticsService) TopProducts(ctx context.Context, query TopProductsQuery) (RankingReport, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return RankingReport{}, err
	}
	period, limit, err := s.rankingWindow(query.Days, s.settings.TopProductsDays, query.Limit)
	if err != nil {
		return RankingReport{}, err
	}
	categoryID := strings.TrimSpace(query.CategoryID)

	name := fmt.Sprintf("top_products:%s:%s:%d:%s", period.Start.Format(dateKeyLayout), period.End.Format(dateKeyLayout), limit, categoryID)
	return loadReport(ctx, s, sellerID, "top_products", name, func(ctx context.Context) (RankingReport, error) {
		orders, err := s.ordersIn(ctx, sellerID, period)
		if err != nil {
			return RankingReport{}, err
		}
		var filters []analytics.LineItemFilter
		if categoryID != "" {
			filters = append(filters, analytics.InCategory(categoryID))
		}
		return RankingReport{
			Period:   period,
			Entities: analytics.RankProducts(orders, period.Start, period.End, limit, filters...),
		}, nil
	})
}

func (s *statisticsService) TopCustomers(ctx context.Context, query TopCustomersQuery) (RankingReport, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return RankingReport{}, err
	}
	period, limit, err := s.rankingWindow(query.Days, s.settings.TopCustomersDays, query.Limit)
	if err != nil {
		return RankingReport{}, err
	}

	name := fmt.Sprintf("top_customers:%s:%s:%d", period.Start.Format(dateKeyLayout), period.End.Format(dateKeyLayout), limit)
	return loadReport(ctx, s, sellerID, "top_customers", name, func(ctx context.Context) (RankingReport, error) {
		orders, err := s.ordersIn(ctx, sellerID, period)
		if err != nil {
			return RankingReport{}, err
		}
		return RankingReport{
			Period:   period,
			Entities: analytics.RankCustomers(orders, limit, s.settings.VIP),
		}, nil
	})
}

func (s *statisticsService) Profit(ctx context.Context, query ProfitQuery) (analytics.ProfitSnapshot, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return analytics.ProfitSnapshot{}, err
	}
	period, err := s.resolvePeriod(query.StartDate, query.EndDate)
	if err != nil {
		return analytics.ProfitSnapshot{}, err
	}

	name := fmt.Sprintf("profit:%s:%s", period.Start.Format(dateKeyLayout), period.End.Format(dateKeyLayout))
	return loadReport(ctx, s, sellerID, "profit", name, func(ctx context.Context) (analytics.ProfitSnapshot, error) {
		orders, err := s.ordersIn(ctx, sellerID, period)
		if err != nil {
			return analytics.ProfitSnapshot{}, err
		}
		return s.settings.Profit.Analyze(orders, period.Start, period.End), nil
	})
}

func (s *statisticsService) Dashboard(ctx context.Context, query StatusQuery) (analytics.Dashboard, error) {
	sellerID, err := s.resolveSeller(ctx, query.StatisticsScope)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	now := s.now()
	window := analytics.DashboardRange(now)

	name := "dashboard:" + now.Format(dateKeyLayout)
	return loadReport(ctx, s, sellerID, "dashboard", name, func(ctx context.Context) (analytics.Dashboard, error) {
		orders, err := s.ordersIn(ctx, sellerID, window)
		if err != nil {
			return analytics.Dashboard{}, err
		}
		return analytics.BuildDashboard(orders, now), nil
	})
}

func (s *statisticsService) Invalidate(ctx context.Context, sellerID string) error {
	return s.cache.Invalidate(ctx, cacheScope(sellerID))
}

// loadReport serves a report through the cache and records latency and hit metrics.
func loadReport[T any](ctx context.Context, s *statisticsService, sellerID, report, name string, compute func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	value, hit, err := cache.Load(ctx, s.cache, cacheScope(sellerID), name, compute)
	if err != nil {
		return value, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(ctx, report, hit)
		if !hit {
			s.metrics.RecordStatistics(ctx, report, time.Since(started))
		}
	}
	return value, nil
}

func cacheScope(sellerID string) string {
	return "seller:" + sellerID
}

// resolveSeller picks the seller a report covers and checks the actor may read it.
// Sellers default to themselves; admins must name the seller.
func (s *statisticsService) resolveSeller(ctx context.Context, scope StatisticsScope) (string, error) {
	if scope.Actor == nil {
		return "", fmt.Errorf("%w: no identity", ErrUnauthorized)
	}
	sellerID := strings.TrimSpace(scope.SellerID)
	if sellerID == "" {
		sellerID = strings.TrimSpace(scope.Actor.SellerID)
	}
	if sellerID == "" {
		return "", fmt.Errorf("%w: seller id is required", ErrInvalidQuery)
	}
	if err := s.authorizer.Authorize(ctx, scope.Actor, ActionReadStatistics, sellerID); err != nil {
		return "", err
	}
	return sellerID, nil
}

// resolvePeriod fills a single missing bound: a missing end is today and a
// missing start is the first day of the end's month.
func (s *statisticsService) resolvePeriod(start, end *time.Time) (analytics.Period, error) {
	if start == nil && end == nil {
		return analytics.Period{}, fmt.Errorf("%w: startDate or endDate is required", ErrInvalidPeriod)
	}
	var endDay time.Time
	if end != nil {
		endDay = end.In(s.settings.Location)
	} else {
		endDay = s.now()
	}
	var startDay time.Time
	if start != nil {
		startDay = start.In(s.settings.Location)
	} else {
		startDay = time.Date(endDay.Year(), endDay.Month(), 1, 0, 0, 0, 0, s.settings.Location)
	}
	period := analytics.NewPeriod(startDay, endDay)
	if !period.Valid() {
		return analytics.Period{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidPeriod,
			period.Start.Format(dateKeyLayout), period.End.Format(dateKeyLayout))
	}
	return period, nil
}

func (s *statisticsService) rankingWindow(days, fallback, limit int) (analytics.Period, int, error) {
	if days == 0 {
		days = fallback
	}
	if days < 1 || days > maxChartDays {
		return analytics.Period{}, 0, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidQuery, maxChartDays)
	}
	resolved, err := s.limit(limit)
	if err != nil {
		return analytics.Period{}, 0, err
	}
	return analytics.TrailingDays(s.now(), days), resolved, nil
}

func (s *statisticsService) limit(limit int) (int, error) {
	if limit == 0 {
		return s.settings.DefaultLimit, nil
	}
	if limit < 1 || limit > maxRankingLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, maxRankingLimit)
	}
	return limit, nil
}

func (s *statisticsService) ordersIn(ctx context.Context, sellerID string, period analytics.Period) ([]domain.Order, error) {
	from := period.Start
	to := period.EndOfDay()
	return s.fetch(ctx, sellerID, repositories.OrderQuery{CreatedBetween: domain.DateRange{From: &from, To: &to}})
}

func (s *statisticsService) fetch(ctx context.Context, sellerID string, query repositories.OrderQuery) ([]domain.Order, error) {
	orders, err := s.orders.GetOrdersBySeller(ctx, sellerID, query)
	if err != nil {
		s.logger(ctx, "statistics.orders.fetch_failed", map[string]any{
			"sellerID": sellerID,
			"error":    err,
		})
		return nil, mapRepositoryError(err)
	}
	return orders, nil
}

func (s *statisticsService) now() time.Time {
	return s.clock().In(s.settings.Location)
}
