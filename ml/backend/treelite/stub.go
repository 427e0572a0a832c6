//go:build !treelite || !cgo

// MODUL: treelite/stub
// ZWECK: Stub-Implementierung ohne Build-Tag "treelite" oder ohne CGO
// HINWEISE: Registriert keinen Predictor; Tree-Modelle liefern dann model.ErrNoEngine

package treelite

import "github.com/edgerun/edgerun/ml"

// Available reports whether the predictor runtime could be loaded.
func Available() bool {
	return false
}

// Predictor Stub
type Predictor struct{}

// Load Stub - gibt immer ErrUnavailable zurueck
func Load(path string, threads int) (*Predictor, error) {
	return nil, ErrUnavailable
}

func (p *Predictor) NumFeature() int     { return 0 }
func (p *Predictor) NumOutputGroup() int { return 0 }

func (p *Predictor) Predict(*ml.CSRBatch, []float32) error {
	return ErrUnavailable
}

func (p *Predictor) SetThreadCount(int) error {
	return ErrUnavailable
}

func (p *Predictor) Close() error {
	return nil
}
