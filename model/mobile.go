package model

import (
	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
)

// Mobile is a model for the mobile interpreter.
type Mobile struct {
	base
}

func newMobile(r *artifact.Resolved, o *Options) (*Mobile, error) {
	e, meta, err := openEngine(ml.BackendMobile, r, o)
	if err != nil {
		return nil, err
	}
	return &Mobile{base: newBase(ml.BackendMobile, e, meta, o)}, nil
}

func (m *Mobile) SetThreadCount(n int) error {
	return m.setThreads(n)
}

func (m *Mobile) SetCPUAffinity(bool) error {
	return unsupported("set cpu affinity", m.backend)
}
