package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/josh-kwaku/pointstore/internal/domain"
	"github.com/josh-kwaku/pointstore/internal/logging"
	"github.com/josh-kwaku/pointstore/internal/repository"
)

// outcomeErrors are the failures a caller can act on. Anything else that
// escapes a unit of work is reported as ErrSettlementAborted.
var outcomeErrors = []error{
	domain.ErrEmptyBasket,
	domain.ErrInvalidQuantity,
	domain.ErrAccountNotFound,
	domain.ErrItemNotFound,
	domain.ErrInsufficientStock,
	domain.ErrInsufficientFunds,
	domain.ErrSettlementNotFound,
}

func isOutcome(err error) bool {
	for _, target := range outcomeErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) || repository.IsTransient(err)
}

// runUnit runs fn in a fresh transaction, retrying lock and serialization
// failures with exponential backoff.
func (s *Service) runUnit(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	log := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case isOutcome(err):
			return backoff.Permanent(err)
		case isRetryable(err):
			log.Warn("retrying unit of work", "op", op, "attempt", attempt, "error", err)
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxRetries), ctx)
	err := backoff.Retry(operation, policy)
	if err == nil {
		return nil
	}
	if isOutcome(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w (context: %w)", err, ctxErr)
	}
	return fmt.Errorf("%w after %d attempt(s): %w", domain.ErrSettlementAborted, attempt, err)
}
