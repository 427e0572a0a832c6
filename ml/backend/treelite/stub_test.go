//go:build !treelite || !cgo

package treelite

import (
	"errors"
	"testing"

	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
)

var _ ml.Predictor = (*Predictor)(nil)

func TestStub(t *testing.T) {
	if Available() {
		t.Fatal("stub reports the runtime as available")
	}
	if _, err := Load("model.so", 1); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	for _, b := range model.DefaultRegistry.Backends() {
		if b == ml.BackendTree {
			t.Error("stub registered a tree predictor")
		}
	}
}
