package service

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Strategy is one fallback step of a cascade. Attempt either completes the
// whole operation or returns an error so the next strategy runs.
type Strategy struct {
	Name    string
	Attempt func(ctx context.Context) error
}

// RunCascade executes strategies in order and stops at the first success,
// returning the winning strategy's name. The bootstrap, transfer, and
// record-write cascades all go through here so the try-next-on-failure loop
// exists exactly once.
//
// Only the joined error of every attempt surfaces when all strategies fail;
// intermediate failures are logged and swallowed.
func RunCascade(ctx context.Context, operation string, strategies []Strategy) (string, error) {
	var attemptErrs []error

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		err := s.Attempt(ctx)
		if err == nil {
			return s.Name, nil
		}

		log.Printf("%s: strategy %q failed: %v", operation, s.Name, err)
		attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", s.Name, err))

		// Cancellation is not a strategy failure; stop the cascade.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
	}

	return "", fmt.Errorf("%s: all strategies failed: %w", operation, errors.Join(attemptErrs...))
}
