//go:build !hexagon || !cgo

// MODUL: hexagon/stub
// ZWECK: Stub-Implementierung ohne Build-Tag "hexagon" oder ohne CGO
// HINWEISE: Registriert keine Engine; DSP-Modelle liefern dann model.ErrNoEngine

package hexagon

import "github.com/edgerun/edgerun/ml"

// Available reports whether this build can load DSP models.
func Available() bool {
	return false
}

// Model Stub
type Model struct{}

// Load Stub - gibt immer ErrUnavailable zurueck
func Load(path, skeletonDir string) (*Model, error) {
	return nil, ErrUnavailable
}

func (m *Model) Inputs() []ml.TensorDescriptor  { return nil }
func (m *Model) Outputs() []ml.TensorDescriptor { return nil }

func (m *Model) SetInput(int, ml.Shape, []byte) error {
	return ErrUnavailable
}

func (m *Model) Input(int) ([]byte, error) {
	return nil, ErrUnavailable
}

func (m *Model) Run() error {
	return ErrUnavailable
}

func (m *Model) Output(int) (ml.Shape, []byte, error) {
	return nil, nil, ErrUnavailable
}

func (m *Model) Close() error {
	return nil
}
