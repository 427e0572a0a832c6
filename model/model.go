// Package model - Einheitlicher Modell-Vertrag ueber alle Execution-Engines
//
// Dieses Paket definiert das Model-Interface und die Varianten pro Engine-Familie.
//
// Hauptkomponenten:
// - Model: Interface fuer Tensor-Zugriff, Run und Tuning
// - base: gemeinsame Logik aller Engine-Varianten
// - New: Erzeugt die passende Variante aus einem aufgeloesten Artefakt
// - Registry: Engine-Konstruktoren pro Backend-Tag
// - Pipeline: Geordnete Verkettung mehrerer Modelle

package model

import (
	"errors"

	"github.com/edgerun/edgerun/ml"
)

// Fehler-Definitionen
var (
	// ErrNoMetadata is returned for name-based output access on models
	// whose metadata declares no output names.
	ErrNoMetadata = errors.New("unsupported: model has no metadata with output names")

	ErrUnknownOutput   = errors.New("unknown output")
	ErrClosed          = errors.New("model is closed")
	ErrInvalidThreads  = errors.New("invalid thread count")
	ErrTreeliteVersion = errors.New("unsupported tree-engine version")
)

// Model is the uniform contract every engine family is presented through.
// A Model is not safe for concurrent SetInput and Run calls.
//
// Input, Output and Weight panic when i is out of range.
type Model interface {
	Backend() ml.Backend

	InputCount() int
	OutputCount() int
	WeightCount() int

	Input(i int) ml.TensorDescriptor
	Output(i int) ml.TensorDescriptor
	Weight(i int) ml.TensorDescriptor

	// SetInput binds row-major data to the named input. Every dimension
	// must equal the declared one unless that is unknown; the caller's
	// shape is reported afterwards.
	SetInput(name string, shape ml.Shape, data []byte) error

	// SetInputView binds a borrowed view without copying.
	SetInputView(name string, v ml.View) error

	GetInput(name string, buf []byte) error
	GetOutput(i int, buf []byte) error

	// OutputView borrows the engine-owned output buffer until the next Run.
	OutputView(i int) (ml.View, error)

	// HasOutputNames reports whether metadata names the outputs, which
	// GetOutputByName and OutputIndex require.
	HasOutputNames() bool
	GetOutputByName(name string, buf []byte) error
	OutputIndex(name string) (int, error)

	Run() error

	SetThreadCount(n int) error
	SetCPUAffinity(enabled bool) error

	Close() error
}

var (
	_ Model = (*Graph)(nil)
	_ Model = (*Tree)(nil)
	_ Model = (*Mobile)(nil)
	_ Model = (*Frozen)(nil)
	_ Model = (*DSP)(nil)
	_ Model = (*Relay)(nil)
	_ Model = (*Pipeline)(nil)
)
