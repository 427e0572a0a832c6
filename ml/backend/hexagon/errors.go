// MODUL: hexagon/errors
// ZWECK: Fehlertypen des DSP-Adapters
// HINWEISE: Wird in allen Builds kompiliert, auch ohne cgo

package hexagon

import "errors"

var (
	// ErrUnavailable is returned when the binary was built without the
	// hexagon tag or the model library cannot be loaded.
	ErrUnavailable = errors.New("hexagon runtime not available")

	// ErrClosed is returned by a model after Close.
	ErrClosed = errors.New("hexagon model is closed")
)

// Error carries the status and log reported by the DSP runtime.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "hexagon: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
