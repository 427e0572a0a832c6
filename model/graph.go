package model

import (
	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
)

// Graph is a model compiled for the graph engine.
type Graph struct {
	base
}

func newGraph(r *artifact.Resolved, o *Options) (_ *Graph, err error) {
	e, meta, err := openEngine(ml.BackendGraph, r, o)
	if err != nil {
		return nil, err
	}
	defer closeOnError(e, &err)

	pinned, err := useAllocator(ml.BackendGraph, e, o)
	if err != nil {
		return nil, err
	}

	m := &Graph{base: newBase(ml.BackendGraph, e, meta, o)}
	m.alloc = pinned
	return m, nil
}

func (m *Graph) SetThreadCount(n int) error {
	return m.setThreads(n)
}

func (m *Graph) SetCPUAffinity(enabled bool) error {
	return m.setAffinity(enabled)
}
