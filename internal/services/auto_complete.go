package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/platform/auth"
	"github.com/shopx/api/internal/repositories"
)

const (
	autoCompleteActor   = "system:auto-complete"
	autoCompleteNote    = "closed automatically after delivery"
	defaultDeliveredAge = 72 * time.Hour
	defaultBatchSize    = 100
)

// AutoCompleteMetrics records how many orders a run closed. *observability.Metrics satisfies it.
type AutoCompleteMetrics interface {
	RecordAutoCompleted(ctx context.Context, n int)
}

// AutoCompleterDeps bundles collaborators required to construct the auto-completer.
type AutoCompleterDeps struct {
	Orders       repositories.OrderRepository
	Machine      OrderStatusService
	DeliveredAge time.Duration
	BatchSize    int
	Metrics      AutoCompleteMetrics
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// AutoCompleter closes delivered orders nobody disputed within DeliveredAge.
type AutoCompleter struct {
	orders       repositories.OrderRepository
	machine      OrderStatusService
	deliveredAge time.Duration
	batchSize    int
	metrics      AutoCompleteMetrics
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
	actor        *auth.Identity
}

func NewAutoCompleter(deps AutoCompleterDeps) (*AutoCompleter, error) {
	if deps.Orders == nil {
		return nil, errors.New("auto-completer: order repository is required")
	}
	if deps.Machine == nil {
		return nil, errors.New("auto-completer: status service is required")
	}
	age := deps.DeliveredAge
	if age <= 0 {
		age = defaultDeliveredAge
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AutoCompleter{
		orders:       deps.Orders,
		machine:      deps.Machine,
		deliveredAge: age,
		batchSize:    batch,
		metrics:      deps.Metrics,
		clock:        clock,
		logger:       logger,
		actor:        auth.SystemIdentity(autoCompleteActor),
	}, nil
}

// Run completes one batch of stale delivered orders and returns how many moved.
// Failures on individual orders are logged and skipped.
func (a *AutoCompleter) Run(ctx context.Context) (int, error) {
	cutoff := a.clock().UTC().Add(-a.deliveredAge)
	candidates, err := a.orders.FindByStatusChangedBefore(ctx, domain.OrderStatusDelivered, cutoff, a.batchSize)
	if err != nil {
		return 0, mapRepositoryError(err)
	}

	completed := 0
	for _, order := range candidates {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		expected := domain.OrderStatusDelivered
		result, err := a.machine.Transition(ctx, TransitionCommand{
			OrderID:        order.ID,
			Target:         domain.OrderStatusCompleted,
			Actor:          a.actor,
			Note:           autoCompleteNote,
			ExpectedStatus: &expected,
		})
		switch {
		case err == nil:
			if result.Changed {
				completed++
			}
		case errors.Is(err, ErrConcurrentModification):
		default:
			a.logger(ctx, "order.autocomplete.failed", map[string]any{
				"orderID": order.ID,
				"error":   err,
			})
		}
	}

	if a.metrics != nil && completed > 0 {
		a.metrics.RecordAutoCompleted(ctx, completed)
	}
	a.logger(ctx, "order.autocomplete.run", map[string]any{
		"candidates": len(candidates),
		"completed":  completed,
		"cutoff":     cutoff,
	})
	return completed, nil
}

// Start runs the job every interval until ctx is cancelled. The returned
// channel closes once the loop has exited.
func (a *AutoCompleter) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
					a.logger(ctx, "order.autocomplete.run_failed", map[string]any{"error": err})
				}
			}
		}
	}()
	return done
}
