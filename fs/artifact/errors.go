package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrNoModelFiles is returned when no rule recognises the given files.
	ErrNoModelFiles = errors.New("no valid model files found")

	// ErrMissingRole is returned when a backend's required file is absent.
	// The artifact is unusable; retrying will not help.
	ErrMissingRole = errors.New("missing required artifact file")

	// ErrAmbiguous is returned when several files qualify for one role.
	ErrAmbiguous = errors.New("ambiguous artifact files")

	ErrManifest = errors.New("invalid pipeline manifest")
)

// ResolveError describes a failed resolution step.
type ResolveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("artifact %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
