package cmd

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
	"github.com/edgerun/edgerun/model/modeltest"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments("input", []string{"a=x.bin", "b=dir/y=1.bin", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "x.bin", "b": "dir/y=1.bin", "c": ""}, got)

	_, err = parseAssignments("input", []string{"noequals"})
	assert.ErrorContains(t, err, "expected name=value")

	_, err = parseAssignments("input", []string{"=x"})
	assert.Error(t, err)

	_, err = parseAssignments("shape", []string{"a=1", "a=2"})
	assert.ErrorContains(t, err, "given twice")
}

func TestPreviewValues(t *testing.T) {
	f32 := func(shape ...int64) ml.TensorDescriptor {
		return ml.TensorDescriptor{Type: ml.DTypeF32, Shape: shape}
	}

	data := ml.Float32Bytes([]float32{1, 2.5, float32(math.NaN()), 4})
	assert.Equal(t, "[ 1.0000, 2.5000, NaN, 4.0000]", previewValues(f32(4), data))
	assert.Equal(t, "[[ 1.0000, 2.5000], [ NaN, 4.0000]]", previewValues(f32(2, 2), data))

	long := ml.Float32Bytes([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	assert.Equal(t, "[ 1.0000, 2.0000, ..., 9.0000, 10.0000]", previewValues(f32(10), long))

	str := ml.TensorDescriptor{Type: ml.DTypeString, Shape: ml.Shape{9}}
	assert.Equal(t, `["a","b"]`, previewValues(str, []byte(`["a","b"]`)))

	other := ml.TensorDescriptor{Type: ml.DTypeOther, Shape: ml.Shape{3}}
	assert.Equal(t, "3 B", previewValues(other, []byte{1, 2, 3}))
}

func TestInputShape(t *testing.T) {
	in := ml.TensorDescriptor{Name: "x", Type: ml.DTypeF32, Shape: ml.Shape{-1, 2}}

	shape, err := inputShape(in, "", 16)
	require.NoError(t, err)
	assert.Equal(t, ml.Shape{2, 2}, shape)

	shape, err = inputShape(in, "4,1", 16)
	require.NoError(t, err)
	assert.Equal(t, ml.Shape{4, 1}, shape)

	_, err = inputShape(in, "", 12)
	assert.ErrorContains(t, err, "do not fit")

	_, err = inputShape(ml.TensorDescriptor{Name: "y", Type: ml.DTypeF32, Shape: ml.Shape{-1, -1}}, "", 16)
	assert.ErrorContains(t, err, "--shape y=")

	shape, err = inputShape(ml.TensorDescriptor{Name: "s", Type: ml.DTypeString, Shape: ml.Shape{-1}}, "", 11)
	require.NoError(t, err)
	assert.Equal(t, ml.Shape{11}, shape)
}

func withEngines(t *testing.T, engines map[ml.Backend][]ml.Engine) {
	t.Helper()
	prev := modelOptions
	modelOptions = []model.Option{model.WithRegistry(modeltest.Registry(engines, nil))}
	t.Cleanup(func() { modelOptions = prev })
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.tflite")
	require.NoError(t, os.WriteFile(path, []byte("tflite"), 0o644))
	return path
}

func TestInspect(t *testing.T) {
	withEngines(t, map[ml.Backend][]ml.Engine{
		ml.BackendMobile: {modeltest.Identity(ml.TensorDescriptor{Name: "x", Type: ml.DTypeF32, Shape: ml.Shape{1, 3}})},
	})
	path := writeModel(t)

	var out bytes.Buffer
	cmd := newInspectCmd()
	cmd.SetArgs([]string{path})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "backend: "+ml.BackendMobile.String())
	assert.Contains(t, out.String(), "model.tflite")
	assert.Contains(t, out.String(), "(1, 3)")
	assert.Contains(t, out.String(), "12 B")
}

func TestInspectResolveOnly(t *testing.T) {
	withEngines(t, nil)
	path := writeModel(t)

	var out bytes.Buffer
	cmd := newInspectCmd()
	cmd.SetArgs([]string{"--resolve-only", path})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "backend: "+ml.BackendMobile.String())
	assert.NotContains(t, out.String(), "KIND")
}

func TestRun(t *testing.T) {
	withEngines(t, map[ml.Backend][]ml.Engine{
		ml.BackendMobile: {modeltest.Scale(
			ml.TensorDescriptor{Name: "x", Type: ml.DTypeF32, Shape: ml.Shape{-1, 2}},
			ml.TensorDescriptor{Name: "y", Type: ml.DTypeF32, Shape: ml.Shape{-1, 2}},
			2,
		)},
	})
	path := writeModel(t)

	dir := t.TempDir()
	input := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(input, ml.Float32Bytes([]float32{1, 2, 3, 4}), 0o644))

	outDir := filepath.Join(dir, "out")
	var out bytes.Buffer
	cmd := newRunCmd()
	cmd.SetArgs([]string{path, "--input", "x=" + input, "--output-dir", outDir})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "2.0000, 4.0000")

	data, err := os.ReadFile(filepath.Join(outDir, "y.bin"))
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4, 6, 8}, ml.BytesFloat32(data))
}

func TestRunInputErrors(t *testing.T) {
	x := ml.TensorDescriptor{Name: "x", Type: ml.DTypeF32, Shape: ml.Shape{-1, 2}}
	path := writeModel(t)

	cases := map[string][]string{
		"missing input": {path},
		"unknown input": {path, "--input", "x=a.bin", "--input", "z=b.bin"},
		"bad shape":     {path, "--input", "x=a.bin", "--shape", "x"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			withEngines(t, map[ml.Backend][]ml.Engine{ml.BackendMobile: {modeltest.Identity(x)}})

			cmd := newRunCmd()
			cmd.SetArgs(args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			assert.Error(t, cmd.ExecuteContext(context.Background()))
		})
	}
}
