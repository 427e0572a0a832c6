//go:build hexagon && cgo

package hexagon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgerun/edgerun/ml"
)

var (
	_ ml.Engine      = (*Model)(nil)
	_ ml.InputReader = (*Model)(nil)
)

func TestLoadMissingLibrary(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing_hexagon_model.so"), "")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// TestLoad needs a compiled model in EDGERUN_TEST_HEXAGON_MODEL and a DSP.
func TestLoad(t *testing.T) {
	path := os.Getenv("EDGERUN_TEST_HEXAGON_MODEL")
	if path == "" {
		t.Skip("EDGERUN_TEST_HEXAGON_MODEL not set")
	}

	m, err := Load(path, filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	in := m.Inputs()[0]
	data := make([]byte, in.Size())
	if err := m.SetInput(0, in.Shape, data); err != nil {
		t.Fatal(err)
	}
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}

	shape, out, err := m.Output(0)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(out)) != (ml.TensorDescriptor{Type: m.Outputs()[0].Type, Shape: shape}).Size() {
		t.Errorf("output has %d bytes for shape %s", len(out), shape)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Run(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
