// MODUL: treelite/errors
// ZWECK: Fehlertypen des Tree-Engine Adapters
// HINWEISE: Wird in allen Builds kompiliert, auch ohne cgo

package treelite

import "errors"

var (
	// ErrUnavailable is returned when the predictor runtime cannot be loaded
	// or the binary was built without the treelite tag.
	ErrUnavailable = errors.New("treelite runtime not available")

	// ErrClosed is returned by a predictor after Close.
	ErrClosed = errors.New("predictor is closed")
)

// Error carries the message reported by the runtime.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "treelite: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
