package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/auth"
	"github.com/shopx/api/internal/platform/textutil"
	"github.com/shopx/api/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"

	historyIDPrefix = "osh_"
	eventIDPrefix   = "evt_"
)

// OrderStatusServiceDeps bundles collaborators required to construct the status machine.
type OrderStatusServiceDeps struct {
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Authorizer  Authorizer
	Statistics  StatisticsInvalidator
	Metrics     TransitionMetrics
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderStatusService struct {
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	authorizer Authorizer
	statistics StatisticsInvalidator
	metrics    TransitionMetrics
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	locks      *keyedLock
}

// NewOrderStatusService wires dependencies into a concrete OrderStatusService implementation.
func NewOrderStatusService(deps OrderStatusServiceDeps) (OrderStatusService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order status service: order repository is required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("order status service: authorizer is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderStatusService{
		orders:     deps.Orders,
		unitOfWork: unit,
		authorizer: deps.Authorizer,
		statistics: deps.Statistics,
		metrics:    deps.Metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
		locks:  newKeyedLock(),
	}, nil
}

func (s *orderStatusService) Transition(ctx context.Context, cmd TransitionCommand) (TransitionResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return TransitionResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Target.Valid() {
		return TransitionResult{}, fmt.Errorf("%w: unknown target status %q", ErrOrderInvalidInput, cmd.Target)
	}
	if cmd.Actor == nil {
		return TransitionResult{}, fmt.Errorf("%w: no identity", ErrUnauthorized)
	}

	unlock, err := s.locks.Lock(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}
	defer unlock()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return TransitionResult{}, mapRepositoryError(err)
	}

	if err := s.authorizer.Authorize(ctx, cmd.Actor, ActionTransition, order.SellerID); err != nil {
		s.reject(ctx, "unauthorized")
		return TransitionResult{}, err
	}

	// A retry of a transition that already landed succeeds even when it
	// still carries the pre-transition expected status.
	if order.Status == cmd.Target {
		return TransitionResult{Order: order}, nil
	}

	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		s.reject(ctx, "expected_status")
		return TransitionResult{}, fmt.Errorf("%w: expected status %q but was %q", ErrConcurrentModification, *cmd.ExpectedStatus, order.Status)
	}

	if !CanTransition(order.Status, cmd.Target) {
		s.reject(ctx, "invalid_transition")
		return TransitionResult{}, &TransitionError{OrderID: order.ID, Current: order.Status, Requested: cmd.Target}
	}

	now := s.now()
	prevStatus := order.Status
	entry := domain.StatusHistoryEntry{
		ID:         historyIDPrefix + s.newID(),
		OrderID:    order.ID,
		FromStatus: prevStatus,
		ToStatus:   cmd.Target,
		ActorID:    strings.TrimSpace(cmd.Actor.UID),
		Note:       textutil.SanitizeNote(cmd.Note),
		ChangedAt:  now,
	}

	var updated domain.Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.orders.UpdateStatus(txCtx, repositories.StatusUpdate{
			OrderID:         order.ID,
			ExpectedVersion: order.Version,
			Status:          cmd.Target,
			ChangedAt:       now,
		})
		if err != nil {
			return mapRepositoryError(err)
		}
		if err := s.orders.AppendStatusHistory(txCtx, entry); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			s.reject(ctx, "version_conflict")
		}
		return TransitionResult{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(ctx, string(prevStatus), string(updated.Status))
	}
	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderID":  updated.ID,
		"sellerID": updated.SellerID,
		"from":     string(prevStatus),
		"to":       string(updated.Status),
		"actorID":  entry.ActorID,
		"version":  updated.Version,
	})
	s.invalidateStatistics(ctx, updated.SellerID)
	s.publishEvent(ctx, domain.OrderEvent{
		ID:             eventIDPrefix + s.newID(),
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		SellerID:       updated.SellerID,
		PreviousStatus: prevStatus,
		CurrentStatus:  updated.Status,
		ActorID:        entry.ActorID,
		Note:           entry.Note,
		Version:        updated.Version,
		OccurredAt:     now,
	})

	return TransitionResult{Order: updated, Changed: true, Entry: &entry}, nil
}

func (s *orderStatusService) GetOrder(ctx context.Context, actor *auth.Identity, orderID string) (OrderView, error) {
	order, err := s.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return OrderView{}, err
	}
	return OrderView{Order: order, AllowedTransitions: AllowedTransitions(order.Status)}, nil
}

func (s *orderStatusService) ListHistory(ctx context.Context, actor *auth.Identity, orderID string) ([]domain.StatusHistoryEntry, error) {
	order, err := s.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	entries, err := s.orders.ListStatusHistory(ctx, order.ID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return entries, nil
}

func (s *orderStatusService) loadAuthorized(ctx context.Context, actor *auth.Identity, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err)
	}
	if err := s.authorizer.Authorize(ctx, actor, ActionReadOrder, order.SellerID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderStatusService) reject(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejection(ctx, reason)
	}
}

func (s *orderStatusService) invalidateStatistics(ctx context.Context, sellerID string) {
	if s.statistics == nil {
		return
	}
	if err := s.statistics.Invalidate(ctx, sellerID); err != nil {
		s.logger(ctx, "statistics.cache.invalidate_failed", map[string]any{
			"sellerID": sellerID,
			"error":    err,
		})
	}
}

func (s *orderStatusService) publishEvent(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"type":    event.Type,
			"orderID": event.OrderID,
			"status":  string(event.CurrentStatus),
			"error":   err,
		})
	}
}

func (s *orderStatusService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderStatusService) now() time.Time {
	return s.clock()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
