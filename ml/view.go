// view.go - Geliehene Sicht auf Engine-eigene Buffer
// Enthaelt: Epoch (Run-Zaehler des Besitzers) und View (gueltig bis zum naechsten Run)
package ml

import "sync/atomic"

// Epoch counts the runs of the model that owns a set of engine buffers.
// Advancing it invalidates every View handed out before.
type Epoch struct {
	n atomic.Uint64
}

func (e *Epoch) Advance() {
	e.n.Add(1)
}

func (e *Epoch) Current() uint64 {
	return e.n.Load()
}

// View is a borrowed, non-owning window onto an engine-owned tensor buffer.
// It stays valid only until the owning model runs again.
type View struct {
	Type  DType
	Shape Shape

	data  []byte
	epoch uint64
	clock *Epoch
}

// NewView borrows data for the current epoch of clock.
func NewView(clock *Epoch, dtype DType, shape Shape, data []byte) View {
	return View{
		Type:  dtype,
		Shape: shape,
		data:  data,
		epoch: clock.Current(),
		clock: clock,
	}
}

func (v View) Valid() bool {
	return v.clock != nil && v.clock.Current() == v.epoch
}

// Bytes returns the borrowed buffer. Callers must not retain it past the
// owner's next Run.
func (v View) Bytes() ([]byte, error) {
	if !v.Valid() {
		return nil, ErrStaleView
	}
	return v.data, nil
}

func (v View) Len() int {
	return len(v.data)
}
