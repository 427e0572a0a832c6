// options.go - Functional Options fuer den Runner
//
// Dieses Modul enthaelt:
// - Options: Parallelitaet, Modell-Limit, Logger, Run-Observer
// - DefaultOptions: Defaults aus EDGERUN_NUM_PARALLEL und EDGERUN_MAX_LOADED_MODELS
package runner

import (
	"log/slog"
	"time"

	"github.com/edgerun/edgerun/envconfig"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
)

// RunObserver is called after every run with the backend, the duration
// and the result.
type RunObserver func(backend ml.Backend, d time.Duration, err error)

type Options struct {
	// MaxParallel caps concurrent runs over all handles.
	MaxParallel int

	// MaxModels caps loaded models. 0 means unlimited.
	MaxModels int

	ModelOptions []model.Option
	Observer     RunObserver
	Logger       *slog.Logger
}

type Option func(*Options)

func DefaultOptions() Options {
	return Options{
		MaxParallel: max(int(envconfig.NumParallel()), 1),
		MaxModels:   int(envconfig.MaxModels()),
		Logger:      slog.Default(),
	}
}

func WithMaxParallel(n int) Option {
	return func(o *Options) {
		o.MaxParallel = max(n, 1)
	}
}

func WithMaxModels(n int) Option {
	return func(o *Options) {
		o.MaxModels = max(n, 0)
	}
}

// WithModelOptions appends options passed to every model.New.
func WithModelOptions(opts ...model.Option) Option {
	return func(o *Options) {
		o.ModelOptions = append(o.ModelOptions, opts...)
	}
}

func WithRunObserver(fn RunObserver) Option {
	return func(o *Options) {
		o.Observer = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
