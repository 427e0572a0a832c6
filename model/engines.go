// engines.go - Gemeinsame Konstruktion der Engine-Varianten
//
// Dieses Modul enthaelt:
// - openEngine: Metadaten lesen und Engine ueber die Registry laden
// - useAllocator: Allocator-Override an die Engine weiterreichen
package model

import (
	"errors"
	"fmt"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/fs/metadata"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/ml/alloc"
)

func openEngine(b ml.Backend, r *artifact.Resolved, o *Options) (ml.Engine, *metadata.Metadata, error) {
	meta, err := r.Metadata()
	if err != nil {
		return nil, nil, err
	}

	open, err := o.Registry.engine(b)
	if err != nil {
		return nil, nil, err
	}

	p := o.params()
	p.Metadata = meta
	e, err := open(r, p)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", b, err)
	}
	return e, meta, nil
}

// useAllocator hands a fully set allocator to the engine and pins it. It
// returns the pinned allocator, or nil when defaults apply. A partial
// registration allocates with the defaults.
func useAllocator(b ml.Backend, e ml.Engine, o *Options) (*alloc.Allocator, error) {
	a := o.Allocator
	switch a.State() {
	case alloc.StateNone:
		return nil, nil
	case alloc.StatePartial:
		o.Logger.Warn("allocator override is partially registered, using defaults", "backend", b.String())
		return nil, nil
	}

	u, ok := e.(ml.AllocatorUser)
	if !ok {
		return nil, fmt.Errorf("allocator override on %s: %w", b, ml.ErrUnsupported)
	}
	a.Acquire()
	if err := u.UseAllocator(a); err != nil {
		a.Release()
		return nil, fmt.Errorf("allocator override on %s: %w", b, err)
	}
	return a, nil
}

// closeOnError closes e when *err is set.
func closeOnError(e ml.Engine, err *error) {
	if *err != nil {
		*err = errors.Join(*err, e.Close())
	}
}
