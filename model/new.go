// MODUL: new
// ZWECK: Erzeugt die passende Modell-Variante aus einem aufgeloesten Artefakt
// INPUT: artifact.Resolved, Options
// OUTPUT: Model
// NEBENEFFEKTE: Laedt Engines ueber die Registry
// ABHAENGIGKEITEN: fs/artifact, ml
// HINWEISE: Der Switch ueber ml.Backend ist vollstaendig; neue Tags muessen hier ergaenzt werden

package model

import (
	"errors"
	"fmt"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
)

// New loads the model described by r.
func New(r *artifact.Resolved, opts ...Option) (Model, error) {
	o := DefaultOptions()
	o.Apply(opts...)

	m, err := open(r, &o)
	if err != nil {
		return nil, err
	}

	tune(m, &o)
	o.Logger.Debug("model loaded", "backend", m.Backend().String(), "source", r.Source,
		"inputs", m.InputCount(), "outputs", m.OutputCount(), "weights", m.WeightCount())
	return m, nil
}

// Open resolves paths and loads the model found there.
func Open(paths []string, opts ...Option) (Model, error) {
	r, err := artifact.Resolve(paths...)
	if err != nil {
		return nil, err
	}
	return New(r, opts...)
}

func open(r *artifact.Resolved, o *Options) (Model, error) {
	switch r.Backend {
	case ml.BackendGraph:
		return loaded(newGraph(r, o))
	case ml.BackendTree:
		return loaded(newTree(r, o))
	case ml.BackendMobile:
		return loaded(newMobile(r, o))
	case ml.BackendFrozen:
		return loaded(newFrozen(r, o))
	case ml.BackendDSP:
		return loaded(newDSP(r, o))
	case ml.BackendRelay:
		return loaded(newRelay(r, o))
	case ml.BackendPipeline:
		return openPipeline(r, o)
	default:
		return nil, fmt.Errorf("model: unknown backend %v", r.Backend)
	}
}

// loaded keeps a failed constructor's typed nil out of the interface.
func loaded[M Model](m M, err error) (Model, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

func openPipeline(r *artifact.Resolved, o *Options) (Model, error) {
	stages := make([]Model, 0, len(r.Stages))
	closeAll := func() error {
		var errs []error
		for _, s := range stages {
			errs = append(errs, s.Close())
		}
		return errors.Join(errs...)
	}

	for i, sr := range r.Stages {
		m, err := open(sr, o)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("pipeline stage %d: %w", i, err), closeAll())
		}
		stages = append(stages, m)
	}

	p, err := newPipeline(o.Logger, stages)
	if err != nil {
		return nil, errors.Join(err, closeAll())
	}
	return p, nil
}

// tune applies the thread and affinity defaults where the model supports
// them. Frozen graphs receive the thread count at load time instead.
func tune(m Model, o *Options) {
	if o.Threads > 0 {
		if err := m.SetThreadCount(o.Threads); err != nil {
			o.Logger.Debug("thread count not applied", "backend", m.Backend().String(), "error", err)
		}
	}
	if o.Affinity {
		if err := m.SetCPUAffinity(true); err != nil {
			o.Logger.Debug("cpu affinity not applied", "backend", m.Backend().String(), "error", err)
		}
	}
}
