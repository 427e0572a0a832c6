package model

import (
	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
)

// Frozen is a frozen-graph model. Input and output tensors are taken from
// WithTensorNames when given, otherwise the engine detects them. The
// thread count can only be chosen at load time.
type Frozen struct {
	base
}

func newFrozen(r *artifact.Resolved, o *Options) (*Frozen, error) {
	e, meta, err := openEngine(ml.BackendFrozen, r, o)
	if err != nil {
		return nil, err
	}
	return &Frozen{base: newBase(ml.BackendFrozen, e, meta, o)}, nil
}

func (m *Frozen) SetThreadCount(int) error {
	return unsupported("set thread count", m.backend)
}

func (m *Frozen) SetCPUAffinity(bool) error {
	return unsupported("set cpu affinity", m.backend)
}
