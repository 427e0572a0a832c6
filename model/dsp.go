package model

import (
	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
)

// DSP is a model offloaded to the dsp engine.
type DSP struct {
	base
}

func newDSP(r *artifact.Resolved, o *Options) (*DSP, error) {
	e, meta, err := openEngine(ml.BackendDSP, r, o)
	if err != nil {
		return nil, err
	}
	return &DSP{base: newBase(ml.BackendDSP, e, meta, o)}, nil
}

func (m *DSP) SetThreadCount(int) error {
	return unsupported("set thread count", m.backend)
}

func (m *DSP) SetCPUAffinity(bool) error {
	return unsupported("set cpu affinity", m.backend)
}
