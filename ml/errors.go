// errors.go - Fehler fuer Verletzungen des Tensor-Vertrags
package ml

import "errors"

var (
	// ErrUnsupported is returned for operations a backend cannot honour.
	ErrUnsupported = errors.New("not supported by this backend")

	ErrUnknownInput   = errors.New("unknown input")
	ErrDimMismatch    = errors.New("dimension mismatch")
	ErrShapeMismatch  = errors.New("shape mismatch")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrSizeMismatch   = errors.New("size mismatch")
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrUnknownDType   = errors.New("unknown dtype")
	ErrTooManyColumns = errors.New("too many columns")

	// ErrShapeOverflow is returned when a shape has more elements than fit in an int64.
	ErrShapeOverflow = errors.New("shape too large")

	// ErrStaleView is returned when a borrowed View outlived its owner's run.
	ErrStaleView = errors.New("view is no longer valid")
)
