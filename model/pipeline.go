// MODUL: pipeline
// ZWECK: Geordnete Verkettung von Modellen mit Kompatibilitaetspruefung
// INPUT: Stufen (beliebige Model-Varianten, auch verschachtelte Pipelines)
// OUTPUT: Pipeline, die selbst ein Model ist
// NEBENEFFEKTE: Stufen-Buffer werden ohne Kopie weitergereicht
// ABHAENGIGKEITEN: ml
// HINWEISE: Nicht nebenlaeufig nutzbar; Tuning-Fehler einzelner Stufen werden ignoriert

package model

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgerun/edgerun/ml"
)

// ErrStageCount is returned when adjacent stages disagree on the number of
// tensors passed between them.
var ErrStageCount = errors.New("output count does not match input count")

// StageError describes an incompatibility between stage Stage and the
// stage before it.
type StageError struct {
	Stage  int
	Tensor int
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %d tensor %d: %v", e.Stage, e.Tensor, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline runs its stages in order, binding each stage's outputs to the
// next stage's inputs. Its inputs are the first stage's, its outputs the
// last stage's.
type Pipeline struct {
	stages []Model

	// declared holds each stage's inputs as reported before any binding
	declared [][]ml.TensorDescriptor

	log *slog.Logger
}

// NewPipeline validates adjacent stages and returns the composite. Stage
// ownership passes to the pipeline only on success.
func NewPipeline(stages ...Model) (*Pipeline, error) {
	return newPipeline(slog.Default(), stages)
}

func newPipeline(log *slog.Logger, stages []Model) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, errors.New("pipeline needs at least one stage")
	}

	p := &Pipeline{
		stages:   stages,
		declared: make([][]ml.TensorDescriptor, len(stages)),
		log:      log.With("backend", ml.BackendPipeline.String()),
	}
	for s, m := range stages {
		p.declared[s] = make([]ml.TensorDescriptor, m.InputCount())
		for j := range p.declared[s] {
			p.declared[s][j] = m.Input(j)
		}
	}

	for s := 1; s < len(stages); s++ {
		if err := p.compatible(s, true); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// compatible checks stage s against the outputs of stage s-1. Counts,
// ranks and types are fixed after construction, so later checks only
// compare shapes.
func (p *Pipeline) compatible(s int, full bool) error {
	prev := p.stages[s-1]
	in := p.declared[s]

	if full && prev.OutputCount() != len(in) {
		return &StageError{Stage: s, Tensor: -1, Err: fmt.Errorf("%w: %d outputs, %d inputs", ErrStageCount, prev.OutputCount(), len(in))}
	}

	for j, want := range in {
		got := prev.Output(j)
		if full {
			if got.Dim() != want.Dim() {
				return &StageError{Stage: s, Tensor: j, Err: fmt.Errorf("%w: %s has %d dimensions, %s expects %d", ml.ErrDimMismatch, got.Name, got.Dim(), want.Name, want.Dim())}
			}
			if got.Type != want.Type {
				return &StageError{Stage: s, Tensor: j, Err: fmt.Errorf("%w: %s is %s, %s expects %s", ml.ErrTypeMismatch, got.Name, got.Type, want.Name, want.Type)}
			}
		}
		if !got.Shape.Matches(want.Shape) {
			return &StageError{Stage: s, Tensor: j, Err: fmt.Errorf("%w: %s is %s, %s expects %s", ml.ErrShapeMismatch, got.Name, got.Shape, want.Name, want.Shape)}
		}
	}
	return nil
}

// Stages returns the stages in order.
func (p *Pipeline) Stages() []Model {
	return p.stages
}

func (p *Pipeline) first() Model {
	return p.stages[0]
}

func (p *Pipeline) last() Model {
	return p.stages[len(p.stages)-1]
}

func (p *Pipeline) Backend() ml.Backend {
	return ml.BackendPipeline
}

func (p *Pipeline) InputCount() int {
	return p.first().InputCount()
}

func (p *Pipeline) OutputCount() int {
	return p.last().OutputCount()
}

func (p *Pipeline) WeightCount() int {
	n := 0
	for _, s := range p.stages {
		n += s.WeightCount()
	}
	return n
}

func (p *Pipeline) Input(i int) ml.TensorDescriptor {
	return p.first().Input(i)
}

func (p *Pipeline) Output(i int) ml.TensorDescriptor {
	return p.last().Output(i)
}

// Weight indexes the concatenation of all stage weights.
func (p *Pipeline) Weight(i int) ml.TensorDescriptor {
	checkIndex("weight", i, p.WeightCount())
	for _, s := range p.stages {
		if i < s.WeightCount() {
			return s.Weight(i)
		}
		i -= s.WeightCount()
	}
	panic("unreachable")
}

func (p *Pipeline) SetInput(name string, shape ml.Shape, data []byte) error {
	return p.first().SetInput(name, shape, data)
}

func (p *Pipeline) SetInputView(name string, v ml.View) error {
	return p.first().SetInputView(name, v)
}

func (p *Pipeline) GetInput(name string, buf []byte) error {
	return p.first().GetInput(name, buf)
}

func (p *Pipeline) GetOutput(i int, buf []byte) error {
	return p.last().GetOutput(i, buf)
}

func (p *Pipeline) OutputView(i int) (ml.View, error) {
	return p.last().OutputView(i)
}

func (p *Pipeline) GetOutputByName(name string, buf []byte) error {
	return p.last().GetOutputByName(name, buf)
}

func (p *Pipeline) HasOutputNames() bool {
	return p.last().HasOutputNames()
}

func (p *Pipeline) OutputIndex(name string) (int, error) {
	return p.last().OutputIndex(name)
}

// Run executes the stages in order. Before each transition the previous
// stage's current output shapes are checked again and its output buffers
// are bound to the next stage without copying.
func (p *Pipeline) Run() error {
	if err := p.first().Run(); err != nil {
		return fmt.Errorf("pipeline stage 0: %w", err)
	}

	for s := 1; s < len(p.stages); s++ {
		if err := p.compatible(s, false); err != nil {
			return err
		}

		prev, next := p.stages[s-1], p.stages[s]
		for j, in := range p.declared[s] {
			v, err := prev.OutputView(j)
			if err != nil {
				return &StageError{Stage: s, Tensor: j, Err: err}
			}
			if err := next.SetInputView(in.Name, v); err != nil {
				return &StageError{Stage: s, Tensor: j, Err: err}
			}
		}

		if err := next.Run(); err != nil {
			return fmt.Errorf("pipeline stage %d: %w", s, err)
		}
	}
	return nil
}

// SetThreadCount is forwarded to every stage. Stages that refuse are skipped.
func (p *Pipeline) SetThreadCount(n int) error {
	for s, m := range p.stages {
		if err := m.SetThreadCount(n); err != nil {
			p.log.Debug("stage ignored thread count", "stage", s, "backend", m.Backend().String(), "error", err)
		}
	}
	return nil
}

// SetCPUAffinity is forwarded to every stage. Stages that refuse are skipped.
func (p *Pipeline) SetCPUAffinity(enabled bool) error {
	for s, m := range p.stages {
		if err := m.SetCPUAffinity(enabled); err != nil {
			p.log.Debug("stage ignored cpu affinity", "stage", s, "backend", m.Backend().String(), "error", err)
		}
	}
	return nil
}

func (p *Pipeline) Close() error {
	var errs []error
	for _, s := range p.stages {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
