package ml

import (
	"errors"
	"testing"
)

func TestViewInvalidatedByAdvance(t *testing.T) {
	var clock Epoch
	data := Float32Bytes([]float32{1, 2, 3})

	v := NewView(&clock, DTypeF32, Shape{3}, data)
	b, err := v.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if got := BytesFloat32(b); len(got) != 3 || got[2] != 3 {
		t.Errorf("unexpected view contents %v", got)
	}

	clock.Advance()
	if v.Valid() {
		t.Error("view should be stale after Advance")
	}
	if _, err := v.Bytes(); !errors.Is(err, ErrStaleView) {
		t.Errorf("expected ErrStaleView, got %v", err)
	}

	fresh := NewView(&clock, DTypeF32, Shape{3}, data)
	if !fresh.Valid() {
		t.Error("new view should be valid")
	}
}

func TestZeroView(t *testing.T) {
	var v View
	if v.Valid() {
		t.Error("zero view must not be valid")
	}
	if _, err := v.Bytes(); !errors.Is(err, ErrStaleView) {
		t.Errorf("expected ErrStaleView, got %v", err)
	}
}
