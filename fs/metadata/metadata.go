// MODUL: metadata
// ZWECK: Liest das optionale Metadaten-JSON eines Artefakts (Tensor-Namen, Transform-Mappings)
// INPUT: Rohe JSON-Bytes (metadata.json / *.meta / compiled.meta)
// OUTPUT: Metadata mit Modell-Tensoren, SparseInput-Flag und DataTransform-Mappings
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: encoding/json (stdlib), ml
// HINWEISE: null in einem Shape bedeutet unbekannte Dimension (-1)

// Package metadata parses the side-channel JSON document shipped next to a
// compiled model.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/edgerun/edgerun/ml"
)

var (
	// ErrInvalid is returned for metadata documents that cannot be used.
	ErrInvalid = errors.New("invalid model metadata")

	ErrDuplicateName = errors.New("duplicate tensor name")
)

// Error is returned by Parse. It records which part of the document failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("metadata %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// =============================================================================
// Dokument-Struktur
// =============================================================================

// Metadata is the parsed document.
type Metadata struct {
	Model         Model          `json:"Model"`
	DataTransform *DataTransform `json:"DataTransform,omitempty"`
}

// Model lists the declared tensors. Engines that report their own tensors
// take precedence over these entries.
type Model struct {
	Inputs  []TensorSpec `json:"Inputs,omitempty"`
	Outputs []TensorSpec `json:"Outputs,omitempty"`

	// SparseInput marks zero-valued cells of tree-engine input as missing.
	SparseInput bool `json:"SparseInput,omitempty"`
}

// TensorSpec is one declared tensor. A nil entry in Shape is an unknown
// dimension.
type TensorSpec struct {
	Name  string   `json:"name"`
	DType string   `json:"dtype"`
	Shape []*int64 `json:"shape"`
}

// Descriptor converts the spec into an ml.TensorDescriptor.
func (s TensorSpec) Descriptor() (ml.TensorDescriptor, error) {
	desc := ml.TensorDescriptor{Name: s.Name, Type: ml.DTypeF32}
	if s.DType != "" {
		dt, err := ml.ParseDType(s.DType)
		if err != nil {
			return ml.TensorDescriptor{}, fmt.Errorf("tensor %q: %w", s.Name, err)
		}
		desc.Type = dt
	}

	desc.Shape = make(ml.Shape, len(s.Shape))
	for i, d := range s.Shape {
		switch {
		case d == nil:
			desc.Shape[i] = ml.DimUnknown
		case *d < 0:
			desc.Shape[i] = ml.DimUnknown
		default:
			desc.Shape[i] = *d
		}
	}
	return desc, nil
}

// DataTransform declares per-column mappings keyed by tensor index.
type DataTransform struct {
	Input  map[string]ColumnTransform `json:"Input,omitempty"`
	Output map[string]ColumnTransform `json:"Output,omitempty"`
}

// ColumnTransform holds one mapping table per column. An empty table marks
// a numeric passthrough column.
type ColumnTransform struct {
	CategoricalString []map[string]int64 `json:"CategoricalString"`
}

// Columns returns the declared column count.
func (c ColumnTransform) Columns() int {
	return len(c.CategoricalString)
}

// Mapped reports whether column j has a mapping table.
func (c ColumnTransform) Mapped(j int) bool {
	return j >= 0 && j < len(c.CategoricalString) && len(c.CategoricalString[j]) > 0
}

// InputTransform returns the transform declared for input index, if any.
func (d *DataTransform) InputTransform(index int) (ColumnTransform, bool) {
	if d == nil {
		return ColumnTransform{}, false
	}
	c, ok := d.Input[strconv.Itoa(index)]
	return c, ok && c.Columns() > 0
}

// OutputTransform returns the transform declared for output index, if any.
func (d *DataTransform) OutputTransform(index int) (ColumnTransform, bool) {
	if d == nil {
		return ColumnTransform{}, false
	}
	c, ok := d.Output[strconv.Itoa(index)]
	return c, ok && c.Columns() > 0
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes and validates a metadata document.
func Parse(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &Error{Op: "parse", Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
	}

	if err := m.validate(); err != nil {
		return nil, &Error{Op: "validate", Err: err}
	}
	return &m, nil
}

func (m *Metadata) validate() error {
	for _, set := range [][]TensorSpec{m.Model.Inputs, m.Model.Outputs} {
		seen := make(map[string]struct{}, len(set))
		for _, s := range set {
			if _, err := s.Descriptor(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			if s.Name == "" {
				continue
			}
			if _, ok := seen[s.Name]; ok {
				return fmt.Errorf("%w: %w %q", ErrInvalid, ErrDuplicateName, s.Name)
			}
			seen[s.Name] = struct{}{}
		}
	}

	if m.DataTransform == nil {
		return nil
	}
	for _, set := range []map[string]ColumnTransform{m.DataTransform.Input, m.DataTransform.Output} {
		for key := range set {
			if i, err := strconv.Atoi(key); err != nil || i < 0 {
				return fmt.Errorf("%w: data transform key %q is not a tensor index", ErrInvalid, key)
			}
		}
	}
	return nil
}

// =============================================================================
// Abfragen
// =============================================================================

// HasOutputNames reports whether outputs can be addressed by name.
func (m *Metadata) HasOutputNames() bool {
	if m == nil || len(m.Model.Outputs) == 0 {
		return false
	}
	for _, o := range m.Model.Outputs {
		if o.Name == "" {
			return false
		}
	}
	return true
}

// OutputIndex returns the index of the named output.
func (m *Metadata) OutputIndex(name string) (int, bool) {
	if m == nil {
		return 0, false
	}
	for i, o := range m.Model.Outputs {
		if o.Name == name {
			return i, true
		}
	}
	return 0, false
}

// OutputName returns the declared name of output i, or "".
func (m *Metadata) OutputName(i int) string {
	if m == nil || i < 0 || i >= len(m.Model.Outputs) {
		return ""
	}
	return m.Model.Outputs[i].Name
}

// Inputs converts the declared inputs.
func (m *Metadata) Inputs() []ml.TensorDescriptor {
	if m == nil {
		return nil
	}
	return descriptors(m.Model.Inputs)
}

// Outputs converts the declared outputs.
func (m *Metadata) Outputs() []ml.TensorDescriptor {
	if m == nil {
		return nil
	}
	return descriptors(m.Model.Outputs)
}

func (m *Metadata) SparseInput() bool {
	return m != nil && m.Model.SparseInput
}

// Transforms returns the data transform section, which may be nil.
func (m *Metadata) Transforms() *DataTransform {
	if m == nil {
		return nil
	}
	return m.DataTransform
}

// descriptors assumes validate already accepted every spec.
func descriptors(specs []TensorSpec) []ml.TensorDescriptor {
	out := make([]ml.TensorDescriptor, 0, len(specs))
	for _, s := range specs {
		d, _ := s.Descriptor()
		out = append(out, d)
	}
	return out
}
