package model

import (
	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
)

// Relay is a model compiled into a relay virtual machine executable. Its
// tensors may be declared by metadata when the executable does not report
// them.
type Relay struct {
	base
}

func newRelay(r *artifact.Resolved, o *Options) (_ *Relay, err error) {
	e, meta, err := openEngine(ml.BackendRelay, r, o)
	if err != nil {
		return nil, err
	}
	defer closeOnError(e, &err)

	pinned, err := useAllocator(ml.BackendRelay, e, o)
	if err != nil {
		return nil, err
	}

	m := &Relay{base: newBase(ml.BackendRelay, e, meta, o)}
	m.alloc = pinned
	return m, nil
}

func (m *Relay) SetThreadCount(n int) error {
	return m.setThreads(n)
}

func (m *Relay) SetCPUAffinity(enabled bool) error {
	return m.setAffinity(enabled)
}
