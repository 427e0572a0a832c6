// MODUL: options
// ZWECK: Functional Options fuer die Modell-Erzeugung
// INPUT: Geraet, Threads, Tensor-Namen, Allocator, Logger, Registry
// OUTPUT: Options Struct
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: envconfig (Defaults), ml, ml/alloc
// HINWEISE: Defaults kommen aus EDGERUN_DEVICE, EDGERUN_NUM_THREADS und EDGERUN_CPU_AFFINITY

package model

import (
	"log/slog"

	"github.com/edgerun/edgerun/envconfig"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/ml/alloc"
)

// Options configures New.
type Options struct {
	Registry *Registry
	Device   ml.DeviceType
	DeviceID int

	// Threads is applied after construction where the backend supports it,
	// and handed to engines that only take it at load time. 0 keeps the
	// engine default.
	Threads  int
	Affinity bool

	// InputNames and OutputNames select tensors of engines that cannot
	// enumerate them (frozen graphs).
	InputNames  []string
	OutputNames []string

	Allocator *alloc.Allocator
	Logger    *slog.Logger
}

// Option ist eine funktionale Option fuer Options.
type Option func(*Options)

// DefaultOptions reads the defaults from the environment.
func DefaultOptions() Options {
	device, err := ml.ParseDevice(envconfig.Device())
	if err != nil {
		slog.Warn("invalid device, using cpu", "device", envconfig.Device())
		device = ml.DeviceCPU
	}

	return Options{
		Registry: DefaultRegistry,
		Device:   device,
		Threads:  int(envconfig.NumThreads()),
		Affinity: envconfig.CPUAffinity(),
		Logger:   slog.Default(),
	}
}

func WithRegistry(r *Registry) Option {
	return func(o *Options) {
		if r != nil {
			o.Registry = r
		}
	}
}

func WithDevice(d ml.DeviceType, id int) Option {
	return func(o *Options) {
		o.Device = d
		o.DeviceID = id
	}
}

// WithThreads sets the engine thread count. Values <= 0 keep the engine default.
func WithThreads(n int) Option {
	return func(o *Options) {
		o.Threads = max(n, 0)
	}
}

func WithCPUAffinity(enabled bool) Option {
	return func(o *Options) {
		o.Affinity = enabled
	}
}

func WithTensorNames(inputs, outputs []string) Option {
	return func(o *Options) {
		o.InputNames = inputs
		o.OutputNames = outputs
	}
}

// WithAllocator routes numeric engine allocations through a. The allocator
// must have all or none of its primitives set.
func WithAllocator(a *alloc.Allocator) Option {
	return func(o *Options) {
		o.Allocator = a
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Apply wendet alle Options an.
func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

func (o *Options) params() OpenParams {
	return OpenParams{
		Device:      o.Device,
		DeviceID:    o.DeviceID,
		Threads:     o.Threads,
		InputNames:  o.InputNames,
		OutputNames: o.OutputNames,
	}
}
