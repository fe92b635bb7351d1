package jobs

import (
	"fmt"

	"bookshelf/internal/services"
)

// ErrJobActive is returned by Start while a scan is running.
var ErrJobActive = fmt.Errorf("%w: scan already active", services.ErrConflict)

// CrashScope distinguishes a panic contained at the item boundary from one
// that escaped to the run supervisor.
type CrashScope string

const (
	ScopeItem    CrashScope = "item"
	ScopeProcess CrashScope = "process"
)

// CrashError records a recovered panic.
type CrashError struct {
	Scope CrashScope
	Path  string
	Value any
	Stack []byte
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("%s crash: %s", e.Scope, e.Message())
}

// Message is the panic value rendered as text.
func (e *CrashError) Message() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *CrashError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
