// Package modeltest provides in-memory engines for exercising models
// without native runtimes.
package modeltest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/ml/alloc"
	"github.com/edgerun/edgerun/model"
)

// RunFunc computes outputs from the bound inputs.
type RunFunc func(shapes []ml.Shape, inputs [][]byte) ([]ml.Shape, [][]byte, error)

// Engine is an in-memory ml.Engine that also reads back inputs and lists
// weights. Outputs are written into buffers owned by the engine and reused
// across runs.
type Engine struct {
	In  []ml.TensorDescriptor
	Out []ml.TensorDescriptor
	W   []ml.TensorDescriptor
	Fn  RunFunc

	// Err, when set, fails the next Run.
	Err error

	Runs   int
	Closed bool

	shapes    []ml.Shape
	inputs    [][]byte
	outShapes []ml.Shape
	outputs   [][]byte
}

// Identity returns an engine whose outputs equal its inputs.
func Identity(in ...ml.TensorDescriptor) *Engine {
	out := make([]ml.TensorDescriptor, len(in))
	for i, d := range in {
		out[i] = ml.TensorDescriptor{Name: d.Name + "_out", Type: d.Type, Shape: d.Shape.Clone()}
	}
	return &Engine{
		In:  in,
		Out: out,
		Fn: func(shapes []ml.Shape, inputs [][]byte) ([]ml.Shape, [][]byte, error) {
			return shapes, inputs, nil
		},
	}
}

// Scale returns a float32 engine that multiplies its single input by k.
func Scale(in, out ml.TensorDescriptor, k float32) *Engine {
	return &Engine{
		In:  []ml.TensorDescriptor{in},
		Out: []ml.TensorDescriptor{out},
		Fn: func(shapes []ml.Shape, inputs [][]byte) ([]ml.Shape, [][]byte, error) {
			src := ml.BytesFloat32(inputs[0])
			dst := make([]float32, len(src))
			for i, v := range src {
				dst[i] = v * k
			}
			return []ml.Shape{shapes[0]}, [][]byte{ml.Float32Bytes(dst)}, nil
		},
	}
}

func (e *Engine) Inputs() []ml.TensorDescriptor {
	return e.In
}

func (e *Engine) Outputs() []ml.TensorDescriptor {
	return e.Out
}

func (e *Engine) Weights() []ml.TensorDescriptor {
	return e.W
}

func (e *Engine) SetInput(index int, shape ml.Shape, data []byte) error {
	if index < 0 || index >= len(e.In) {
		return fmt.Errorf("%w: index %d", ml.ErrUnknownInput, index)
	}
	if e.inputs == nil {
		e.inputs = make([][]byte, len(e.In))
		e.shapes = make([]ml.Shape, len(e.In))
	}
	e.inputs[index] = data
	e.shapes[index] = shape.Clone()
	return nil
}

func (e *Engine) Input(index int) ([]byte, error) {
	if index < 0 || index >= len(e.inputs) || e.inputs[index] == nil {
		return nil, fmt.Errorf("input %d is not set", index)
	}
	return e.inputs[index], nil
}

func (e *Engine) Run() error {
	if e.Err != nil {
		return e.Err
	}
	for i := range e.In {
		if e.inputs == nil || e.inputs[i] == nil {
			return fmt.Errorf("input %d is not set", i)
		}
	}

	shapes, outputs, err := e.Fn(e.shapes, e.inputs)
	if err != nil {
		return err
	}

	if e.outputs == nil {
		e.outputs = make([][]byte, len(e.Out))
	}
	e.outShapes = shapes
	for i, o := range outputs {
		// reuse the engine-owned buffer like a native runtime would
		e.outputs[i] = append(e.outputs[i][:0], o...)
	}
	e.Runs++
	return nil
}

func (e *Engine) Output(index int) (ml.Shape, []byte, error) {
	if index < 0 || index >= len(e.Out) {
		return nil, nil, fmt.Errorf("output index %d out of range", index)
	}
	if e.outputs == nil {
		return e.Out[index].Shape, nil, nil
	}
	return e.outShapes[index], e.outputs[index], nil
}

func (e *Engine) Close() error {
	if e.Closed {
		return errors.New("engine closed twice")
	}
	e.Closed = true
	return nil
}

// TunableEngine additionally accepts thread, affinity and allocator settings.
type TunableEngine struct {
	*Engine

	Threads   int
	Affinity  bool
	Allocator *alloc.Allocator
}

func (e *TunableEngine) SetThreadCount(n int) error {
	e.Threads = n
	return nil
}

func (e *TunableEngine) SetCPUAffinity(enabled bool) error {
	e.Affinity = enabled
	return nil
}

func (e *TunableEngine) UseAllocator(a *alloc.Allocator) error {
	e.Allocator = a
	return nil
}

// =============================================================================
// Predictor
// =============================================================================

// Predictor scores each row as the sum of its present values plus the
// output group index.
type Predictor struct {
	Features int
	Groups   int

	Last   *ml.CSRBatch
	Closed bool
}

func (p *Predictor) NumFeature() int {
	return p.Features
}

func (p *Predictor) NumOutputGroup() int {
	return p.Groups
}

func (p *Predictor) Predict(batch *ml.CSRBatch, out []float32) error {
	if len(out) != batch.NumRow*p.Groups {
		return fmt.Errorf("output has %d values, want %d", len(out), batch.NumRow*p.Groups)
	}
	p.Last = batch
	for i := range batch.NumRow {
		var sum float32
		for k := batch.RowPtr[i]; k < batch.RowPtr[i+1]; k++ {
			sum += batch.Data[k]
		}
		for g := range p.Groups {
			out[i*p.Groups+g] = sum + float32(g)
		}
	}
	return nil
}

func (p *Predictor) Close() error {
	p.Closed = true
	return nil
}

// =============================================================================
// Registry
// =============================================================================

// Registry returns a registry that hands out the given engines. Engines are
// returned once per open in registration order; a backend opened more often
// than engines were given fails.
func Registry(engines map[ml.Backend][]ml.Engine, pred ml.Predictor) *model.Registry {
	r := model.NewRegistry()
	var mu sync.Mutex
	for b, list := range engines {
		queue := list
		r.RegisterEngine(b, func(*artifact.Resolved, model.OpenParams) (ml.Engine, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(queue) == 0 {
				return nil, fmt.Errorf("no more %s engines", b)
			}
			e := queue[0]
			queue = queue[1:]
			return e, nil
		})
	}
	if pred != nil {
		r.RegisterPredictor(func(*artifact.Resolved, model.OpenParams) (ml.Predictor, error) {
			return pred, nil
		})
	}
	return r
}
