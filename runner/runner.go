// MODUL: runner
// ZWECK: Handle-basierte Laufzeit ueber geladene Modelle (oeffentliche Grenze)
// INPUT: Artefakt-Pfade oder In-Memory-Elemente, Tensor-Daten, Handles
// OUTPUT: Handles (UUID), Tensor-Daten, Beschreibungen, letzter Fehler
// NEBENEFFEKTE: Laedt und schliesst Modelle, begrenzt parallele Runs
// ABHAENGIGKEITEN: github.com/google/uuid, golang.org/x/sync/semaphore, model, fs/artifact
// HINWEISE: Jede fehlgeschlagene Operation setzt LastError; Panics werden in Fehler umgewandelt

package runner

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
)

// Handle identifies a loaded model.
type Handle string

// Info describes a loaded model.
type Info struct {
	Handle  Handle
	Backend ml.Backend
	Source  string
	Created time.Time

	Inputs  []ml.TensorDescriptor
	Outputs []ml.TensorDescriptor
	Weights []ml.TensorDescriptor

	// OutputNames is true when outputs can be addressed by name.
	OutputNames bool
}

type entry struct {
	mu      sync.Mutex
	model   model.Model
	source  string
	created time.Time
}

// Runtime owns loaded models. All methods are safe for concurrent use;
// operations on one handle are serialized.
type Runtime struct {
	mu     sync.RWMutex
	models map[Handle]*entry
	closed bool

	sem  *semaphore.Weighted
	opts Options

	errMu   sync.Mutex
	lastErr error
}

func New(opts ...Option) *Runtime {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Runtime{
		models: make(map[Handle]*entry),
		sem:    semaphore.NewWeighted(int64(o.MaxParallel)),
		opts:   o,
	}
}

// =============================================================================
// Letzter Fehler
// =============================================================================

// LastError returns the message of the most recent failure, or "" when no
// operation has failed yet.
func (r *Runtime) LastError() string {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	if r.lastErr == nil {
		return ""
	}
	return r.lastErr.Error()
}

// Err returns the most recent failure.
func (r *Runtime) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

func (r *Runtime) record(op string, h Handle, err error) error {
	if err == nil {
		return nil
	}

	err = &Error{Op: op, Handle: h, Err: err}
	r.errMu.Lock()
	r.lastErr = err
	r.errMu.Unlock()

	r.opts.Logger.Debug("runner operation failed", "op", op, "handle", string(h), "error", err)
	return err
}

// guard runs fn and converts a panic into ErrPanic.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return fn()
}

// =============================================================================
// Erzeugen und Loeschen
// =============================================================================

// Create resolves paths and loads the model on the given device. An empty
// device keeps the EDGERUN_DEVICE default.
func (r *Runtime) Create(ctx context.Context, paths []string, device string, deviceID int) (Handle, error) {
	var h Handle
	err := guard(func() error {
		res, err := artifact.Resolve(paths...)
		if err != nil {
			return err
		}
		h, err = r.create(ctx, res, device, deviceID)
		return err
	})
	return h, r.record("create", "", err)
}

// CreateFromElements loads a model from explicitly tagged locations.
func (r *Runtime) CreateFromElements(ctx context.Context, elems []artifact.Location, device string, deviceID int) (Handle, error) {
	var h Handle
	err := guard(func() error {
		res, err := artifact.ResolveElements(elems...)
		if err != nil {
			return err
		}
		h, err = r.create(ctx, res, device, deviceID)
		return err
	})
	return h, r.record("create", "", err)
}

// CreateResolved loads an already resolved artifact.
func (r *Runtime) CreateResolved(ctx context.Context, res *artifact.Resolved, device string, deviceID int) (Handle, error) {
	var h Handle
	err := guard(func() error {
		var err error
		h, err = r.create(ctx, res, device, deviceID)
		return err
	})
	return h, r.record("create", "", err)
}

func (r *Runtime) create(ctx context.Context, res *artifact.Resolved, device string, deviceID int) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	opts := append(slices.Clone(r.opts.ModelOptions), model.WithLogger(r.opts.Logger))
	if device != "" {
		d, err := ml.ParseDevice(device)
		if err != nil {
			return "", err
		}
		opts = append(opts, model.WithDevice(d, deviceID))
	}

	if err := r.reserve(); err != nil {
		return "", err
	}

	m, err := model.New(res, opts...)
	if err != nil {
		return "", err
	}

	h := Handle(uuid.NewString())
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		m.Close()
		return "", ErrClosed
	}
	if r.opts.MaxModels > 0 && len(r.models) >= r.opts.MaxModels {
		m.Close()
		return "", fmt.Errorf("%w: limit %d", ErrTooManyModels, r.opts.MaxModels)
	}
	r.models[h] = &entry{model: m, source: res.Source, created: time.Now()}

	r.opts.Logger.Info("model created", "handle", string(h), "backend", m.Backend().String(), "source", res.Source)
	return h, nil
}

// reserve fails early when the model limit is already reached.
func (r *Runtime) reserve() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}
	if r.opts.MaxModels > 0 && len(r.models) >= r.opts.MaxModels {
		return fmt.Errorf("%w: limit %d", ErrTooManyModels, r.opts.MaxModels)
	}
	return nil
}

// Delete closes the model and invalidates the handle.
func (r *Runtime) Delete(h Handle) error {
	r.mu.Lock()
	e, ok := r.models[h]
	delete(r.models, h)
	r.mu.Unlock()

	if !ok {
		return r.record("delete", h, ErrUnknownHandle)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return r.record("delete", h, e.model.Close())
}

// Close closes every loaded model. The runtime rejects new models afterwards.
func (r *Runtime) Close() error {
	r.mu.Lock()
	models := r.models
	r.models = make(map[Handle]*entry)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for h, e := range models {
		e.mu.Lock()
		if err := e.model.Close(); err != nil {
			errs = append(errs, &Error{Op: "close", Handle: h, Err: err})
		}
		e.mu.Unlock()
	}
	if len(errs) > 0 {
		return r.record("close", "", fmt.Errorf("%d models failed to close: %w", len(errs), errs[0]))
	}
	return nil
}

// =============================================================================
// Zugriff ueber Handles
// =============================================================================

// with runs fn on the model of h while holding its lock.
func (r *Runtime) with(op string, h Handle, fn func(m model.Model) error) error {
	r.mu.RLock()
	e, ok := r.models[h]
	r.mu.RUnlock()
	if !ok {
		return r.record(op, h, ErrUnknownHandle)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return r.record(op, h, guard(func() error { return fn(e.model) }))
}

func (r *Runtime) SetInput(h Handle, name string, shape ml.Shape, data []byte) error {
	return r.with("set input", h, func(m model.Model) error {
		return m.SetInput(name, shape, data)
	})
}

func (r *Runtime) GetInput(h Handle, name string, buf []byte) error {
	return r.with("get input", h, func(m model.Model) error {
		return m.GetInput(name, buf)
	})
}

// Run executes the model. At most MaxParallel runs execute at once; ctx
// bounds the wait for a slot.
func (r *Runtime) Run(ctx context.Context, h Handle) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return r.record("run", h, err)
	}
	defer r.sem.Release(1)

	return r.with("run", h, func(m model.Model) error {
		start := time.Now()
		err := m.Run()
		if r.opts.Observer != nil {
			r.opts.Observer(m.Backend(), time.Since(start), err)
		}
		return err
	})
}

// GetOutput copies output i into buf. An out-of-range index is reported as
// an error.
func (r *Runtime) GetOutput(h Handle, i int, buf []byte) error {
	return r.with("get output", h, func(m model.Model) error {
		return m.GetOutput(i, buf)
	})
}

func (r *Runtime) GetOutputByName(h Handle, name string, buf []byte) error {
	return r.with("get output", h, func(m model.Model) error {
		return m.GetOutputByName(name, buf)
	})
}

// ReadOutput returns output i together with a copy of its data.
func (r *Runtime) ReadOutput(h Handle, i int) (ml.TensorDescriptor, []byte, error) {
	var d ml.TensorDescriptor
	var data []byte
	err := r.with("get output", h, func(m model.Model) error {
		d = m.Output(i)
		v, err := m.OutputView(i)
		if err != nil {
			return err
		}
		b, err := v.Bytes()
		if err != nil {
			return err
		}
		data = slices.Clone(b)
		return nil
	})
	return d, data, err
}

// OutputView borrows output i. The view becomes invalid on the next run
// or when the handle is deleted.
func (r *Runtime) OutputView(h Handle, i int) (ml.View, error) {
	var v ml.View
	err := r.with("get output view", h, func(m model.Model) error {
		var err error
		v, err = m.OutputView(i)
		return err
	})
	return v, err
}

func (r *Runtime) OutputIndex(h Handle, name string) (int, error) {
	var i int
	err := r.with("output index", h, func(m model.Model) error {
		var err error
		i, err = m.OutputIndex(name)
		return err
	})
	return i, err
}

func (r *Runtime) SetThreadCount(h Handle, n int) error {
	return r.with("set thread count", h, func(m model.Model) error {
		return m.SetThreadCount(n)
	})
}

func (r *Runtime) SetCPUAffinity(h Handle, enabled bool) error {
	return r.with("set cpu affinity", h, func(m model.Model) error {
		return m.SetCPUAffinity(enabled)
	})
}

// BackendName returns the backend label of the model.
func (r *Runtime) BackendName(h Handle) (string, error) {
	var name string
	err := r.with("backend name", h, func(m model.Model) error {
		name = m.Backend().String()
		return nil
	})
	return name, err
}

// Describe returns the tensors of the model.
func (r *Runtime) Describe(h Handle) (Info, error) {
	r.mu.RLock()
	e, ok := r.models[h]
	r.mu.RUnlock()
	if !ok {
		return Info{}, r.record("describe", h, ErrUnknownHandle)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return describe(h, e), nil
}

func describe(h Handle, e *entry) Info {
	m := e.model
	info := Info{
		Handle:  h,
		Backend: m.Backend(),
		Source:  e.source,
		Created: e.created,
		Inputs:  make([]ml.TensorDescriptor, m.InputCount()),
		Outputs: make([]ml.TensorDescriptor, m.OutputCount()),
		Weights: make([]ml.TensorDescriptor, m.WeightCount()),
	}
	for i := range info.Inputs {
		info.Inputs[i] = m.Input(i)
	}
	for i := range info.Outputs {
		info.Outputs[i] = m.Output(i)
	}
	for i := range info.Weights {
		info.Weights[i] = m.Weight(i)
	}
	info.OutputNames = m.HasOutputNames()
	return info
}

// List describes all loaded models, oldest first.
func (r *Runtime) List() []Info {
	r.mu.RLock()
	entries := maps.Clone(r.models)
	r.mu.RUnlock()

	infos := make([]Info, 0, len(entries))
	for h, e := range entries {
		e.mu.Lock()
		infos = append(infos, describe(h, e))
		e.mu.Unlock()
	}
	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Or(a.Created.Compare(b.Created), cmp.Compare(a.Handle, b.Handle))
	})
	return infos
}

// Len returns the number of loaded models.
func (r *Runtime) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
