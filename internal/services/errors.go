package services

import (
	"errors"
	"fmt"

	"github.com/shopx/api/internal/domain"
	"github.com/shopx/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidTransition indicates the requested status is not reachable from the current one.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrUnauthorized indicates the actor neither owns the order nor administers the shop.
	ErrUnauthorized = errors.New("order: unauthorized")
	// ErrConcurrentModification indicates another transition committed first.
	ErrConcurrentModification = errors.New("order: concurrent modification")
	// ErrInvalidPeriod indicates a statistics period that ends before it starts or has no bounds.
	ErrInvalidPeriod = errors.New("statistics: invalid period")
	// ErrRepositoryUnavailable indicates the backing store could not be reached.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)

// TransitionError carries the rejected (current, requested) pair.
type TransitionError struct {
	OrderID   string
	Current   domain.OrderStatus
	Requested domain.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: order %s cannot move from %s to %s", ErrInvalidTransition, e.OrderID, e.Current, e.Requested)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
		}
	}

	return err
}
