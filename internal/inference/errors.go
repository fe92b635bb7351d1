package inference

import (
	"errors"
	"fmt"
	"strings"

	"bookshelf/internal/services"
)

// ErrModelNotSelected reports that no active model has been chosen.
var ErrModelNotSelected = fmt.Errorf("%w: no model selected", services.ErrConfiguration)

// ContextAttempt records one failed rung of the context ladder.
type ContextAttempt struct {
	Size int
	Err  error
}

// ContextExhaustedError reports that no size on the ladder produced a context.
// The engine cannot process anything until the model or ladder changes.
type ContextExhaustedError struct {
	Model    string
	Attempts []ContextAttempt
}

func (e *ContextExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%d: %v", attempt.Size, attempt.Err))
	}
	lowest := 0
	if n := len(e.Attempts); n > 0 {
		lowest = e.Attempts[n-1].Size
	}
	return fmt.Sprintf("failed to initialize model context even at lowest setting (%d) for %s [%s]",
		lowest, e.Model, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match the configuration marker.
func (e *ContextExhaustedError) Unwrap() error {
	return services.ErrConfiguration
}

// IsEngineFatal reports whether err leaves the gateway unable to serve any
// further request, as opposed to a failure scoped to one prompt.
func IsEngineFatal(err error) bool {
	if errors.Is(err, ErrModelNotSelected) {
		return true
	}
	var exhausted *ContextExhaustedError
	return errors.As(err, &exhausted)
}
