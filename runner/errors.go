// errors.go - Fehlertypen des Runners
//
// Dieses Modul enthaelt:
// - Sentinel-Fehler fuer Handle-Verwaltung und Panics
// - Error: Fehler mit Operation und Handle
package runner

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownHandle = errors.New("unknown model handle")
	ErrTooManyModels = errors.New("too many models loaded")
	ErrClosed        = errors.New("runtime is closed")

	// ErrPanic wraps a caller-contract violation recovered at the boundary.
	ErrPanic = errors.New("panic")
)

// Error records the operation and handle a failure belongs to.
type Error struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *Error) Error() string {
	if e.Handle == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
