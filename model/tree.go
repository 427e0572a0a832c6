// MODUL: tree
// ZWECK: Modell-Variante fuer die Tree-Engine (Entscheidungsbaum-Predictor)
// INPUT: Dichte float32-Zeilen (Zeilen x Spalten) ueber den Eingang "data"
// OUTPUT: Scores "output" (Zeilen x Output-Gruppen)
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: golang.org/x/mod/semver (version.json), ml (CSR)
// HINWEISE: Fehlende Werte sind NaN, bei SparseInput in den Metadaten auch 0

package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
)

const (
	treeInputName  = "data"
	treeOutputName = "output"

	// minTreeliteVersion is the oldest predictor format the engine loads.
	minTreeliteVersion = "v0.93.0"
)

// Tree is a decision-tree model. Its single input accepts rows with fewer
// columns than the feature count; absent columns are missing values.
type Tree struct {
	base
	pred ml.Predictor
}

func newTree(r *artifact.Resolved, o *Options) (_ *Tree, err error) {
	if err := checkTreeVersion(r); err != nil {
		return nil, err
	}

	meta, err := r.Metadata()
	if err != nil {
		return nil, err
	}

	open, err := o.Registry.predictorOpener()
	if err != nil {
		return nil, err
	}
	p := o.params()
	p.Metadata = meta
	pred, err := open(r, p)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ml.BackendTree, err)
	}

	e := &treeEngine{pred: pred, zeroMissing: meta.SparseInput()}
	m := &Tree{base: newBase(ml.BackendTree, e, meta, o), pred: pred}
	m.check = treeShape
	return m, nil
}

// treeShape accepts (rows, cols) with cols up to the feature count.
func treeShape(decl ml.TensorDescriptor, shape ml.Shape) error {
	if shape.Dim() != 2 {
		return fmt.Errorf("%w: input %q has 2 dimensions, got %d", ml.ErrDimMismatch, decl.Name, shape.Dim())
	}
	if shape[0] < 0 || shape[1] < 0 {
		return fmt.Errorf("%w: input %q got %s", ml.ErrShapeMismatch, decl.Name, shape)
	}
	if numFeature := decl.Shape[1]; numFeature >= 0 && shape[1] > numFeature {
		return fmt.Errorf("%w: input %q has %d features, got %d columns", ml.ErrTooManyColumns, decl.Name, numFeature, shape[1])
	}
	return nil
}

// checkTreeVersion validates the optional version.json of the artifact.
func checkTreeVersion(r *artifact.Resolved) error {
	l, ok := r.Location(artifact.RoleVersion)
	if !ok {
		return nil
	}

	data, err := l.ReadAll()
	if err != nil {
		return err
	}

	var v struct {
		Treelite string `json:"Treelite"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTreeliteVersion, l.Label(), err)
	}
	if v.Treelite == "" {
		return nil
	}

	version := v.Treelite
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return fmt.Errorf("%w: %q is not a version", ErrTreeliteVersion, v.Treelite)
	}
	if semver.Compare(version, minTreeliteVersion) < 0 {
		return fmt.Errorf("%w: %s is older than %s", ErrTreeliteVersion, v.Treelite, minTreeliteVersion)
	}
	return nil
}

func (m *Tree) SetThreadCount(n int) error {
	return m.setThreads(n)
}

func (m *Tree) SetCPUAffinity(bool) error {
	return unsupported("set cpu affinity", m.backend)
}

// =============================================================================
// Predictor als Engine
// =============================================================================

// treeEngine presents a predictor through the ml.Engine boundary. Input is
// kept as a CSR batch built row by row.
type treeEngine struct {
	pred        ml.Predictor
	zeroMissing bool

	dense []byte
	batch *ml.CSRBatch

	// out holds predRows rows from the last Run.
	out      []float32
	predRows int
}

func (e *treeEngine) Inputs() []ml.TensorDescriptor {
	return []ml.TensorDescriptor{{
		Name:  treeInputName,
		Type:  ml.DTypeF32,
		Shape: ml.Shape{ml.DimUnknown, int64(e.pred.NumFeature())},
	}}
}

func (e *treeEngine) Outputs() []ml.TensorDescriptor {
	rows := ml.DimUnknown
	if e.batch != nil {
		rows = int64(e.batch.NumRow)
	}
	return []ml.TensorDescriptor{{
		Name:  treeOutputName,
		Type:  ml.DTypeF32,
		Shape: ml.Shape{rows, int64(e.pred.NumOutputGroup())},
	}}
}

func (e *treeEngine) SetInput(index int, shape ml.Shape, data []byte) error {
	if index != 0 {
		return fmt.Errorf("%w: index %d", ml.ErrUnknownInput, index)
	}

	rows, cols := int(shape[0]), int(shape[1])
	if rows > 0 && cols == 0 {
		return fmt.Errorf("%w: input %q has no columns", ml.ErrShapeMismatch, treeInputName)
	}
	batch, err := ml.DenseToCSR(ml.BytesFloat32(data), rows, cols, e.pred.NumFeature(), e.zeroMissing)
	if err != nil {
		return err
	}

	e.batch = batch
	e.dense = append(e.dense[:0], data...)
	return nil
}

func (e *treeEngine) Input(index int) ([]byte, error) {
	if index != 0 {
		return nil, fmt.Errorf("%w: index %d", ml.ErrUnknownInput, index)
	}
	return e.dense, nil
}

func (e *treeEngine) Run() error {
	if e.batch == nil {
		return fmt.Errorf("input %q is not set", treeInputName)
	}

	n := e.batch.NumRow * e.pred.NumOutputGroup()
	if cap(e.out) < n {
		e.out = make([]float32, n)
	}
	e.out = e.out[:n]
	if err := e.pred.Predict(e.batch, e.out); err != nil {
		e.out, e.predRows = e.out[:0], 0
		return err
	}
	e.predRows = e.batch.NumRow
	return nil
}

func (e *treeEngine) Output(index int) (ml.Shape, []byte, error) {
	if index != 0 {
		return nil, nil, fmt.Errorf("output index %d out of range", index)
	}
	return ml.Shape{int64(e.predRows), int64(e.pred.NumOutputGroup())}, ml.Float32Bytes(e.out), nil
}

func (e *treeEngine) SetThreadCount(n int) error {
	ts, ok := e.pred.(ml.ThreadSetter)
	if !ok {
		return fmt.Errorf("set thread count on %s: %w", ml.BackendTree, ml.ErrUnsupported)
	}
	return ts.SetThreadCount(n)
}

func (e *treeEngine) Close() error {
	return e.pred.Close()
}
