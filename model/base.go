// MODUL: base
// ZWECK: Gemeinsame Logik aller Engine-Varianten (Tensor-Tabellen, Validierung, Run, Transforms)
// INPUT: Geladene ml.Engine, optionale Metadaten
// OUTPUT: Einbettbarer base-Struct, der den Grossteil von Model implementiert
// NEBENEFFEKTE: Haelt den Allocator fuer die Lebensdauer des Modells
// ABHAENGIGKEITEN: ml, fs/metadata, transform, logutil
// HINWEISE: SetThreadCount/SetCPUAffinity implementiert jede Variante selbst

package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgerun/edgerun/fs/metadata"
	"github.com/edgerun/edgerun/logutil"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/ml/alloc"
	"github.com/edgerun/edgerun/transform"
)

// shapeCheck validates a caller shape against a declared input.
type shapeCheck func(decl ml.TensorDescriptor, shape ml.Shape) error

type base struct {
	backend ml.Backend
	engine  ml.Engine

	// declared tensors; inputs[i].Shape is replaced by the bound shape.
	// engineInputs keeps the engine's view of transformed inputs.
	engineInputs []ml.TensorDescriptor
	declared     []ml.TensorDescriptor
	inputs       []ml.TensorDescriptor
	outputs      []ml.TensorDescriptor
	weights      []ml.TensorDescriptor

	meta  *metadata.Metadata
	tf    *transform.Transformer
	check shapeCheck

	// transformed holds output bytes produced by output transforms
	transformed map[int][]byte

	epoch  ml.Epoch
	alloc  *alloc.Allocator
	log    *slog.Logger
	closed bool
}

func newBase(backend ml.Backend, engine ml.Engine, meta *metadata.Metadata, o *Options) base {
	b := base{
		backend:     backend,
		engine:      engine,
		meta:        meta,
		tf:          transform.New(meta.Transforms()),
		check:       strictShape,
		transformed: make(map[int][]byte),
		log:         o.Logger.With("backend", backend.String()),
	}

	b.engineInputs = merge(engine.Inputs(), meta.Inputs())
	b.declared = make([]ml.TensorDescriptor, len(b.engineInputs))
	copy(b.declared, b.engineInputs)
	b.outputs = merge(engine.Outputs(), meta.Outputs())
	if wl, ok := engine.(ml.WeightLister); ok {
		b.weights = wl.Weights()
	}

	// transformed tensors are exchanged as JSON text
	for i := range b.declared {
		if b.tf.HasInput(i) {
			b.declared[i] = ml.TensorDescriptor{Name: b.declared[i].Name, Type: ml.DTypeString, Shape: ml.Shape{ml.DimUnknown}}
		}
	}
	for i := range b.outputs {
		if b.tf.HasOutput(i) {
			b.outputs[i].Type = ml.DTypeString
			b.outputs[i].Shape = ml.Shape{ml.DimUnknown}
		}
	}

	b.inputs = make([]ml.TensorDescriptor, len(b.declared))
	copy(b.inputs, b.declared)
	return b
}

// merge prefers engine-reported tensors and fills gaps from metadata.
func merge(engine, meta []ml.TensorDescriptor) []ml.TensorDescriptor {
	if len(engine) == 0 {
		return meta
	}

	out := make([]ml.TensorDescriptor, len(engine))
	for i, d := range engine {
		if d.Name == "" && i < len(meta) {
			d.Name = meta[i].Name
		}
		d.Shape = d.Shape.Clone()
		out[i] = d
	}
	return out
}

// =============================================================================
// Abfragen
// =============================================================================

func (b *base) Backend() ml.Backend {
	return b.backend
}

func (b *base) InputCount() int {
	return len(b.inputs)
}

func (b *base) OutputCount() int {
	return len(b.outputs)
}

func (b *base) WeightCount() int {
	return len(b.weights)
}

func (b *base) Input(i int) ml.TensorDescriptor {
	checkIndex("input", i, len(b.inputs))
	return b.inputs[i]
}

func (b *base) Output(i int) ml.TensorDescriptor {
	checkIndex("output", i, len(b.outputs))
	return b.outputs[i]
}

func (b *base) Weight(i int) ml.TensorDescriptor {
	checkIndex("weight", i, len(b.weights))
	return b.weights[i]
}

func checkIndex(kind string, i, n int) {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("model: %s index %d out of range [0, %d)", kind, i, n))
	}
}

func (b *base) inputIndex(name string) (int, error) {
	for i, d := range b.inputs {
		if d.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ml.ErrUnknownInput, name)
}

func (b *base) HasOutputNames() bool {
	return b.meta.HasOutputNames()
}

// OutputIndex resolves an output name declared in the model's metadata.
func (b *base) OutputIndex(name string) (int, error) {
	if !b.meta.HasOutputNames() {
		return 0, ErrNoMetadata
	}
	i, ok := b.meta.OutputIndex(name)
	if !ok || i >= len(b.outputs) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOutput, name)
	}
	return i, nil
}

// =============================================================================
// Eingaben
// =============================================================================

// strictShape requires equal rank and equal dimensions except where the
// declared dimension is unknown.
func strictShape(decl ml.TensorDescriptor, shape ml.Shape) error {
	if shape.Dim() != decl.Dim() {
		return fmt.Errorf("%w: input %q has %d dimensions, got %d", ml.ErrDimMismatch, decl.Name, decl.Dim(), shape.Dim())
	}
	for k, d := range shape {
		if d < 0 {
			return fmt.Errorf("%w: input %q dimension %d is %d", ml.ErrShapeMismatch, decl.Name, k, d)
		}
		if decl.Shape[k] >= 0 && decl.Shape[k] != d {
			return fmt.Errorf("%w: input %q expects %s, got %s", ml.ErrShapeMismatch, decl.Name, decl.Shape, shape)
		}
	}
	return nil
}

func (b *base) SetInput(name string, shape ml.Shape, data []byte) error {
	if b.closed {
		return ErrClosed
	}

	i, err := b.inputIndex(name)
	if err != nil {
		return err
	}
	return b.bind(i, shape, data)
}

func (b *base) SetInputView(name string, v ml.View) error {
	if b.closed {
		return ErrClosed
	}

	i, err := b.inputIndex(name)
	if err != nil {
		return err
	}
	if v.Type != b.declared[i].Type {
		return fmt.Errorf("%w: input %q is %s, view is %s", ml.ErrTypeMismatch, name, b.declared[i].Type, v.Type)
	}

	data, err := v.Bytes()
	if err != nil {
		return fmt.Errorf("input %q: %w", name, err)
	}
	return b.bind(i, v.Shape, data)
}

func (b *base) bind(i int, shape ml.Shape, data []byte) error {
	decl := b.declared[i]

	check := b.check
	if b.tf.HasInput(i) {
		check = strictShape
	}
	if err := check(decl, shape); err != nil {
		return err
	}
	want, err := ml.TensorDescriptor{Type: decl.Type, Shape: shape}.ByteSize()
	if err != nil {
		return fmt.Errorf("input %q: %w", decl.Name, err)
	}
	if int64(len(data)) != want {
		return fmt.Errorf("%w: input %q of shape %s needs %d bytes, got %d", ml.ErrSizeMismatch, decl.Name, shape, want, len(data))
	}

	bound, boundShape := data, shape
	if b.tf.HasInput(i) {
		values, tshape, err := b.tf.TransformInput(i, data)
		if err != nil {
			return err
		}
		if err := b.check(b.engineInputs[i], tshape); err != nil {
			return err
		}
		bound, boundShape = ml.Float32Bytes(values), tshape
	}

	if err := b.engine.SetInput(i, boundShape, bound); err != nil {
		return fmt.Errorf("input %q: %w", decl.Name, err)
	}

	b.inputs[i].Shape = shape.Clone()
	return nil
}

func (b *base) GetInput(name string, buf []byte) error {
	if b.closed {
		return ErrClosed
	}

	i, err := b.inputIndex(name)
	if err != nil {
		return err
	}

	r, ok := b.engine.(ml.InputReader)
	if !ok {
		return fmt.Errorf("get input: %w", ml.ErrUnsupported)
	}
	data, err := r.Input(i)
	if err != nil {
		return fmt.Errorf("input %q: %w", name, err)
	}
	return copyOut(name, buf, data)
}

func copyOut(name string, buf, data []byte) error {
	if len(buf) < len(data) {
		return fmt.Errorf("%w: %q needs %d bytes, buffer has %d", ml.ErrBufferTooSmall, name, len(data), len(buf))
	}
	copy(buf, data)
	return nil
}

// =============================================================================
// Ausfuehrung und Ausgaben
// =============================================================================

// Run executes the engine, then refreshes output shapes and transforms.
// Views handed out before are invalid afterwards.
func (b *base) Run() error {
	if b.closed {
		return ErrClosed
	}

	b.epoch.Advance()
	clear(b.transformed)

	start := time.Now()
	if err := b.engine.Run(); err != nil {
		return fmt.Errorf("run %s: %w", b.backend, err)
	}

	for i := range b.outputs {
		shape, data, err := b.engine.Output(i)
		if err != nil {
			return fmt.Errorf("run %s: output %d: %w", b.backend, i, err)
		}

		if !b.tf.HasOutput(i) {
			b.outputs[i].Shape = shape.Clone()
			continue
		}

		text, err := b.tf.TransformOutput(i, ml.BytesFloat32(data))
		if err != nil {
			return fmt.Errorf("run %s: %w", b.backend, err)
		}
		b.transformed[i] = text
		b.outputs[i].Shape = ml.Shape{int64(len(text))}
	}

	b.log.Log(context.TODO(), logutil.LevelTrace, "run complete", "duration", time.Since(start))
	return nil
}

func (b *base) output(i int) (ml.Shape, []byte, error) {
	if text, ok := b.transformed[i]; ok {
		return ml.Shape{int64(len(text))}, text, nil
	}
	return b.engine.Output(i)
}

func (b *base) GetOutput(i int, buf []byte) error {
	checkIndex("output", i, len(b.outputs))
	if b.closed {
		return ErrClosed
	}

	_, data, err := b.output(i)
	if err != nil {
		return fmt.Errorf("output %d: %w", i, err)
	}
	return copyOut(b.outputs[i].Name, buf, data)
}

func (b *base) OutputView(i int) (ml.View, error) {
	checkIndex("output", i, len(b.outputs))
	if b.closed {
		return ml.View{}, ErrClosed
	}

	shape, data, err := b.output(i)
	if err != nil {
		return ml.View{}, fmt.Errorf("output %d: %w", i, err)
	}
	return ml.NewView(&b.epoch, b.outputs[i].Type, shape, data), nil
}

func (b *base) GetOutputByName(name string, buf []byte) error {
	i, err := b.OutputIndex(name)
	if err != nil {
		return err
	}
	return b.GetOutput(i, buf)
}

// =============================================================================
// Tuning und Lebenszyklus
// =============================================================================

func (b *base) setThreads(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreads, n)
	}
	ts, ok := b.engine.(ml.ThreadSetter)
	if !ok {
		return fmt.Errorf("set thread count on %s: %w", b.backend, ml.ErrUnsupported)
	}
	return ts.SetThreadCount(n)
}

func (b *base) setAffinity(enabled bool) error {
	as, ok := b.engine.(ml.AffinitySetter)
	if !ok {
		return fmt.Errorf("set cpu affinity on %s: %w", b.backend, ml.ErrUnsupported)
	}
	return as.SetCPUAffinity(enabled)
}

func unsupported(op string, backend ml.Backend) error {
	return fmt.Errorf("%s on %s: %w", op, backend, ml.ErrUnsupported)
}

func (b *base) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.epoch.Advance()
	b.alloc.Release()
	return b.engine.Close()
}
