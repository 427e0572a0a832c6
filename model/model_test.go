package model_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/ml/alloc"
	"github.com/edgerun/edgerun/model"
	"github.com/edgerun/edgerun/model/modeltest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func f32(name string, shape ...int64) ml.TensorDescriptor {
	return ml.TensorDescriptor{Name: name, Type: ml.DTypeF32, Shape: shape}
}

func resolved(b ml.Backend, meta string) *artifact.Resolved {
	r := &artifact.Resolved{Backend: b, Locations: map[artifact.Role]artifact.Location{}}
	if meta != "" {
		r.Locations[artifact.RoleMetadata] = artifact.Location{Role: artifact.RoleMetadata, Name: "metadata.json", Data: []byte(meta)}
	}
	return r
}

func open(t *testing.T, b ml.Backend, e ml.Engine, meta string, opts ...model.Option) model.Model {
	t.Helper()
	reg := modeltest.Registry(map[ml.Backend][]ml.Engine{b: {e}}, nil)
	opts = append([]model.Option{model.WithRegistry(reg), model.WithLogger(quiet), model.WithThreads(0), model.WithCPUAffinity(false)}, opts...)
	m, err := model.New(resolved(b, meta), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSetGetInputRoundTrip(t *testing.T) {
	for _, b := range []ml.Backend{ml.BackendGraph, ml.BackendMobile, ml.BackendFrozen, ml.BackendDSP, ml.BackendRelay} {
		t.Run(b.String(), func(t *testing.T) {
			m := open(t, b, modeltest.Identity(f32("x", -1, 3)), "")

			data := ml.Float32Bytes([]float32{1, 2, 3, 4, 5, 6})
			require.NoError(t, m.SetInput("x", ml.Shape{2, 3}, data))

			buf := make([]byte, len(data))
			require.NoError(t, m.GetInput("x", buf))
			assert.Equal(t, data, buf)

			assert.Equal(t, ml.Shape{2, 3}, m.Input(0).Shape, "bound shape is reported")
			assert.Equal(t, int64(24), m.Input(0).Size())
		})
	}
}

func TestSetInputValidation(t *testing.T) {
	m := open(t, ml.BackendGraph, modeltest.Identity(f32("x", -1, 3)), "")

	cases := []struct {
		name  string
		input string
		shape ml.Shape
		size  int
		err   error
	}{
		{"unknown input", "y", ml.Shape{1, 3}, 12, ml.ErrUnknownInput},
		{"rank", "x", ml.Shape{3}, 12, ml.ErrDimMismatch},
		{"fixed dimension", "x", ml.Shape{1, 4}, 16, ml.ErrShapeMismatch},
		{"negative dimension", "x", ml.Shape{-1, 3}, 12, ml.ErrShapeMismatch},
		{"byte size", "x", ml.Shape{2, 3}, 12, ml.ErrSizeMismatch},
		{"element count overflow", "x", ml.Shape{1 << 62, 3}, 0, ml.ErrShapeOverflow},
		{"byte size overflow", "x", ml.Shape{1 << 61, 3}, 0, ml.ErrShapeOverflow},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := m.SetInput(tt.input, tt.shape, make([]byte, tt.size))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Equal(t, ml.Shape{-1, 3}, m.Input(0).Shape, "failed binds do not change the reported shape")
}

func TestRunAndOutputs(t *testing.T) {
	e := modeltest.Scale(f32("x", 1, 2), f32("y", 1, 2), 2)
	m := open(t, ml.BackendGraph, e, "")

	require.NoError(t, m.SetInput("x", ml.Shape{1, 2}, ml.Float32Bytes([]float32{1.5, -3})))
	require.NoError(t, m.Run())

	buf := make([]byte, m.Output(0).Size())
	require.NoError(t, m.GetOutput(0, buf))
	assert.Equal(t, []float32{3, -6}, ml.BytesFloat32(buf))

	assert.ErrorIs(t, m.GetOutput(0, make([]byte, 4)), ml.ErrBufferTooSmall)

	v, err := m.OutputView(0)
	require.NoError(t, err)
	require.True(t, v.Valid())
	require.NoError(t, m.Run())
	_, err = v.Bytes()
	assert.ErrorIs(t, err, ml.ErrStaleView, "views expire on the next run")
}

func TestRunError(t *testing.T) {
	e := modeltest.Identity(f32("x", 1))
	e.Err = errors.New("kernel failed")
	m := open(t, ml.BackendMobile, e, "")

	require.NoError(t, m.SetInput("x", ml.Shape{1}, make([]byte, 4)))
	err := m.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run mobile")
	assert.ErrorIs(t, err, e.Err)
}

func TestIndexOutOfRangePanics(t *testing.T) {
	m := open(t, ml.BackendGraph, modeltest.Identity(f32("x", 1)), "")

	assert.Panics(t, func() { m.Input(1) })
	assert.Panics(t, func() { m.Output(-1) })
	assert.Panics(t, func() { m.Weight(0) })
	assert.Panics(t, func() { _ = m.GetOutput(3, nil) })
}

func TestTuningSupport(t *testing.T) {
	cases := []struct {
		backend  ml.Backend
		threads  bool
		affinity bool
	}{
		{ml.BackendGraph, true, true},
		{ml.BackendRelay, true, true},
		{ml.BackendMobile, true, false},
		{ml.BackendFrozen, false, false},
		{ml.BackendDSP, false, false},
	}

	for _, tt := range cases {
		t.Run(tt.backend.String(), func(t *testing.T) {
			e := &modeltest.TunableEngine{Engine: modeltest.Identity(f32("x", 1))}
			m := open(t, tt.backend, e, "")

			err := m.SetThreadCount(2)
			if tt.threads {
				require.NoError(t, err)
				assert.Equal(t, 2, e.Threads)
			} else {
				assert.ErrorIs(t, err, ml.ErrUnsupported)
			}

			err = m.SetCPUAffinity(true)
			if tt.affinity {
				require.NoError(t, err)
				assert.True(t, e.Affinity)
			} else {
				assert.ErrorIs(t, err, ml.ErrUnsupported)
			}
		})
	}
}

func TestTuningWithoutEngineSupport(t *testing.T) {
	m := open(t, ml.BackendGraph, modeltest.Identity(f32("x", 1)), "")
	assert.ErrorIs(t, m.SetThreadCount(4), ml.ErrUnsupported)
	assert.ErrorIs(t, m.SetCPUAffinity(true), ml.ErrUnsupported)

	tm := open(t, ml.BackendGraph, &modeltest.TunableEngine{Engine: modeltest.Identity(f32("x", 1))}, "")
	assert.ErrorIs(t, tm.SetThreadCount(0), model.ErrInvalidThreads)
}

func TestThreadsAppliedAtCreation(t *testing.T) {
	e := &modeltest.TunableEngine{Engine: modeltest.Identity(f32("x", 1))}
	open(t, ml.BackendRelay, e, "", model.WithThreads(3))
	assert.Equal(t, 3, e.Threads)
}

func TestOutputByName(t *testing.T) {
	e := modeltest.Identity(f32("x", 2))
	m := open(t, ml.BackendGraph, e, "")
	assert.False(t, m.HasOutputNames())

	_, err := m.OutputIndex("x_out")
	assert.ErrorIs(t, err, model.ErrNoMetadata)
	assert.ErrorIs(t, m.GetOutputByName("x_out", make([]byte, 8)), model.ErrNoMetadata)

	meta := `{"Model": {"Outputs": [{"name": "score", "dtype": "float32", "shape": [2]}]}}`
	named := open(t, ml.BackendGraph, modeltest.Identity(f32("x", 2)), meta)
	assert.True(t, named.HasOutputNames())

	i, err := named.OutputIndex("score")
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	_, err = named.OutputIndex("other")
	assert.ErrorIs(t, err, model.ErrUnknownOutput)

	require.NoError(t, named.SetInput("x", ml.Shape{2}, ml.Float32Bytes([]float32{7, 8})))
	require.NoError(t, named.Run())
	buf := make([]byte, 8)
	require.NoError(t, named.GetOutputByName("score", buf))
	assert.Equal(t, []float32{7, 8}, ml.BytesFloat32(buf))
}

func TestRelayTensorsFromMetadata(t *testing.T) {
	e := modeltest.Identity(f32("x", 1))
	e.In, e.Out = nil, nil

	meta := `{"Model": {
		"Inputs": [{"name": "features", "dtype": "float32", "shape": [null, 4]}],
		"Outputs": [{"name": "scores", "dtype": "float32", "shape": [null, 4]}]}}`
	m := open(t, ml.BackendRelay, e, meta)

	require.Equal(t, 1, m.InputCount())
	assert.Equal(t, "features", m.Input(0).Name)
	assert.Equal(t, ml.Shape{-1, 4}, m.Input(0).Shape)
	assert.Equal(t, "scores", m.Output(0).Name)
}

func TestDataTransforms(t *testing.T) {
	meta := `{
		"Model": {"Outputs": [{"name": "label", "dtype": "float32", "shape": [null, 1]}]},
		"DataTransform": {
			"Input": {"0": {"CategoricalString": [{"apple": 0, "banana": 1}, {}]}},
			"Output": {"0": {"CategoricalString": [{"cat": 0, "dog": 1}]}}
		}}`

	e := &modeltest.Engine{
		In:  []ml.TensorDescriptor{f32("x", -1, 2)},
		Out: []ml.TensorDescriptor{f32("y", -1, 1)},
		// y = first column
		Fn: func(shapes []ml.Shape, inputs [][]byte) ([]ml.Shape, [][]byte, error) {
			in := ml.BytesFloat32(inputs[0])
			rows := int(shapes[0][0])
			out := make([]float32, rows)
			for i := range rows {
				out[i] = in[i*2]
			}
			return []ml.Shape{{int64(rows), 1}}, [][]byte{ml.Float32Bytes(out)}, nil
		},
	}
	m := open(t, ml.BackendGraph, e, meta)

	assert.Equal(t, ml.DTypeString, m.Input(0).Type)
	raw := []byte(`[["banana", 3], ["apple", "4.5"], ["kiwi", 1]]`)
	require.NoError(t, m.SetInput("x", ml.Shape{int64(len(raw))}, raw))
	require.NoError(t, m.Run())

	out := m.Output(0)
	assert.Equal(t, ml.DTypeString, out.Type)
	buf := make([]byte, out.Size())
	require.NoError(t, m.GetOutput(0, buf))
	assert.JSONEq(t, `[["dog"], ["cat"], ["<unseen_label>"]]`, string(buf))
}

func TestAllocatorOverride(t *testing.T) {
	funcs := alloc.Funcs{
		Malloc: func(n int) []byte { return make([]byte, n) },
		Realloc: func(b []byte, n int) []byte {
			out := make([]byte, n)
			copy(out, b)
			return out
		},
		Free:         func([]byte) {},
		AlignedAlloc: func(_, n int) []byte { return make([]byte, n) },
	}

	t.Run("partial", func(t *testing.T) {
		a := alloc.New()
		require.NoError(t, a.SetMalloc(funcs.Malloc))

		e := &modeltest.TunableEngine{Engine: modeltest.Identity(f32("x", 1))}
		reg := modeltest.Registry(map[ml.Backend][]ml.Engine{ml.BackendGraph: {e}}, nil)
		m, err := model.New(resolved(ml.BackendGraph, ""), model.WithRegistry(reg), model.WithAllocator(a), model.WithLogger(quiet))
		require.NoError(t, err, "a partial override falls back to the defaults")
		t.Cleanup(func() { m.Close() })

		assert.Nil(t, e.Allocator)
		assert.NoError(t, a.SetFree(funcs.Free), "a partial override is not pinned")
	})

	t.Run("unpinned model does not release another model's pin", func(t *testing.T) {
		a := alloc.New()
		require.NoError(t, a.Register(funcs))

		held := &modeltest.TunableEngine{Engine: modeltest.Identity(f32("x", 1))}
		reg := modeltest.Registry(map[ml.Backend][]ml.Engine{
			ml.BackendGraph:  {held},
			ml.BackendMobile: {modeltest.Identity(f32("x", 1))},
		}, nil)
		g, err := model.New(resolved(ml.BackendGraph, ""), model.WithRegistry(reg), model.WithAllocator(a), model.WithLogger(quiet))
		require.NoError(t, err)
		defer g.Close()

		mobile, err := model.New(resolved(ml.BackendMobile, ""), model.WithRegistry(reg), model.WithAllocator(a), model.WithLogger(quiet))
		require.NoError(t, err)
		require.NoError(t, mobile.Close())

		assert.ErrorIs(t, a.Reset(), alloc.ErrInUse)
	})

	t.Run("engine without extension point", func(t *testing.T) {
		a := alloc.New()
		require.NoError(t, a.Register(funcs))

		e := modeltest.Identity(f32("x", 1))
		reg := modeltest.Registry(map[ml.Backend][]ml.Engine{ml.BackendRelay: {e}}, nil)
		_, err := model.New(resolved(ml.BackendRelay, ""), model.WithRegistry(reg), model.WithAllocator(a), model.WithLogger(quiet))
		assert.ErrorIs(t, err, ml.ErrUnsupported)
		assert.True(t, e.Closed, "engine is released when construction fails")
	})

	t.Run("held for model lifetime", func(t *testing.T) {
		a := alloc.New()
		require.NoError(t, a.Register(funcs))

		e := &modeltest.TunableEngine{Engine: modeltest.Identity(f32("x", 1))}
		reg := modeltest.Registry(map[ml.Backend][]ml.Engine{ml.BackendGraph: {e}}, nil)
		m, err := model.New(resolved(ml.BackendGraph, ""), model.WithRegistry(reg), model.WithAllocator(a), model.WithLogger(quiet))
		require.NoError(t, err)
		assert.Same(t, a, e.Allocator)

		assert.ErrorIs(t, a.Reset(), alloc.ErrInUse)
		require.NoError(t, m.Close())
		assert.NoError(t, a.Reset())
	})
}

func TestNoEngineRegistered(t *testing.T) {
	_, err := model.New(resolved(ml.BackendMobile, ""), model.WithRegistry(model.NewRegistry()), model.WithLogger(quiet))
	assert.ErrorIs(t, err, model.ErrNoEngine)

	var rerr *model.RegistryError
	assert.ErrorAs(t, err, &rerr)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := model.NewRegistry()
	open := func(*artifact.Resolved, model.OpenParams) (ml.Engine, error) { return nil, nil }
	reg.RegisterEngine(ml.BackendGraph, open)

	assert.Panics(t, func() { reg.RegisterEngine(ml.BackendGraph, open) })
	assert.Panics(t, func() { reg.RegisterEngine(ml.BackendTree, open) })

	reg.RegisterEngine(ml.BackendDSP, open)
	assert.Equal(t, []ml.Backend{ml.BackendGraph, ml.BackendDSP, ml.BackendPipeline}, reg.Backends())
}

func TestClose(t *testing.T) {
	e := modeltest.Identity(f32("x", 1))
	reg := modeltest.Registry(map[ml.Backend][]ml.Engine{ml.BackendGraph: {e}}, nil)
	m, err := model.New(resolved(ml.BackendGraph, ""), model.WithRegistry(reg), model.WithLogger(quiet))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "second close is a no-op")
	assert.True(t, e.Closed)
	assert.ErrorIs(t, m.Run(), model.ErrClosed)
}
