// MODUL: registry
// ZWECK: Registry der Engine-Konstruktoren pro Backend-Tag
// INPUT: Backend-Tag, EngineOpener bzw. PredictorOpener
// OUTPUT: Geladene Engines fuer aufgeloeste Artefakte
// NEBENEFFEKTE: Native Adapter registrieren sich per init() in der DefaultRegistry
// ABHAENGIGKEITEN: github.com/emirpasic/gods/v2 (treemap), fs/artifact, fs/metadata, ml
// HINWEISE: Doppelte Registrierung ist ein Programmierfehler und panict

package model

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/emirpasic/gods/v2/maps/treemap"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/fs/metadata"
	"github.com/edgerun/edgerun/ml"
)

// ErrNoEngine is returned when no engine is registered for a backend.
var ErrNoEngine = errors.New("no engine registered for backend")

// RegistryError repraesentiert einen Registry-spezifischen Fehler.
type RegistryError struct {
	Op      string
	Backend ml.Backend
	Err     error
}

func (e *RegistryError) Error() string {
	return "model: " + e.Op + " " + e.Backend.String() + ": " + e.Err.Error()
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// OpenParams is what an engine receives at load time.
type OpenParams struct {
	Device      ml.DeviceType
	DeviceID    int
	Threads     int
	InputNames  []string
	OutputNames []string
	Metadata    *metadata.Metadata
}

// EngineOpener loads a tensor-graph engine for a resolved artifact.
type EngineOpener func(r *artifact.Resolved, p OpenParams) (ml.Engine, error)

// PredictorOpener loads a tree-engine predictor for a resolved artifact.
type PredictorOpener func(r *artifact.Resolved, p OpenParams) (ml.Predictor, error)

// Registry holds engine constructors keyed by backend tag.
type Registry struct {
	mu        sync.RWMutex
	engines   *treemap.Map[ml.Backend, EngineOpener]
	predictor PredictorOpener
}

func NewRegistry() *Registry {
	return &Registry{engines: treemap.New[ml.Backend, EngineOpener]()}
}

// DefaultRegistry is used by New unless WithRegistry is given. Native
// adapters register themselves from init.
var DefaultRegistry = NewRegistry()

// RegisterEngine registers the engine for backend b. The tree and pipeline
// backends have no engine.
func (r *Registry) RegisterEngine(b ml.Backend, open EngineOpener) {
	if b == ml.BackendTree || b == ml.BackendPipeline {
		panic(fmt.Sprintf("model: backend %s takes no engine", b))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engines.Get(b); ok {
		panic("model: engine already registered for " + b.String())
	}
	r.engines.Put(b, open)
}

// RegisterPredictor registers the tree-engine predictor loader.
func (r *Registry) RegisterPredictor(open PredictorOpener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.predictor != nil {
		panic("model: predictor already registered")
	}
	r.predictor = open
}

func (r *Registry) engine(b ml.Backend) (EngineOpener, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open, ok := r.engines.Get(b)
	if !ok {
		return nil, &RegistryError{Op: "open", Backend: b, Err: ErrNoEngine}
	}
	return open, nil
}

func (r *Registry) predictorOpener() (PredictorOpener, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.predictor == nil {
		return nil, &RegistryError{Op: "open", Backend: ml.BackendTree, Err: ErrNoEngine}
	}
	return r.predictor, nil
}

// Backends lists the backends that can be opened, in tag order. The
// pipeline backend is always available.
func (r *Registry) Backends() []ml.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := r.engines.Keys()
	if r.predictor != nil {
		backends = append(backends, ml.BackendTree)
	}
	backends = append(backends, ml.BackendPipeline)

	out := make([]ml.Backend, 0, len(backends))
	for _, b := range ml.Backends() {
		if slices.Contains(backends, b) {
			out = append(out, b)
		}
	}
	return out
}
