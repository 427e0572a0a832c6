package metadata

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/edgerun/edgerun/ml"
)

const sampleMeta = `{
  "Model": {
    "Outputs": [
      {"name": "label", "dtype": "int64", "shape": [null]},
      {"name": "probabilities", "dtype": "float32", "shape": [null, 3]}
    ],
    "SparseInput": true
  },
  "DataTransform": {
    "Input": {"0": {"CategoricalString": [{"apple": 0, "banana": 1}, {}]}},
    "Output": {"0": {"CategoricalString": [{"cat": 0, "dog": 1}]}}
  }
}`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleMeta))
	if err != nil {
		t.Fatal(err)
	}

	want := []ml.TensorDescriptor{
		{Name: "label", Type: ml.DTypeI64, Shape: ml.Shape{-1}},
		{Name: "probabilities", Type: ml.DTypeF32, Shape: ml.Shape{-1, 3}},
	}
	if diff := cmp.Diff(want, m.Outputs()); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}

	if !m.SparseInput() {
		t.Error("expected SparseInput")
	}
	if !m.HasOutputNames() {
		t.Error("expected output names")
	}
	if i, ok := m.OutputIndex("probabilities"); !ok || i != 1 {
		t.Errorf("OutputIndex(probabilities) = %d, %t", i, ok)
	}
	if _, ok := m.OutputIndex("missing"); ok {
		t.Error("unexpected index for unknown output")
	}

	in, ok := m.Transforms().InputTransform(0)
	if !ok {
		t.Fatal("expected input transform 0")
	}
	if in.Columns() != 2 || !in.Mapped(0) || in.Mapped(1) {
		t.Errorf("unexpected column layout %+v", in)
	}
	if _, ok := m.Transforms().InputTransform(1); ok {
		t.Error("unexpected input transform 1")
	}
	if _, ok := m.Transforms().OutputTransform(0); !ok {
		t.Error("expected output transform 0")
	}
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"bad json":       `{"Model": `,
		"bad dtype":      `{"Model": {"Outputs": [{"name": "a", "dtype": "complex"}]}}`,
		"duplicate name": `{"Model": {"Outputs": [{"name": "a"}, {"name": "a"}]}}`,
		"non-index key":  `{"DataTransform": {"Input": {"first": {"CategoricalString": []}}}}`,
		"negative index": `{"DataTransform": {"Output": {"-1": {"CategoricalString": []}}}}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			var merr *Error
			if !errors.As(err, &merr) {
				t.Errorf("expected *Error, got %T", err)
			}
		})
	}
}

func TestNilMetadata(t *testing.T) {
	var m *Metadata
	if m.HasOutputNames() || m.SparseInput() {
		t.Error("nil metadata must report nothing")
	}
	if _, ok := m.OutputIndex("x"); ok {
		t.Error("nil metadata has no outputs")
	}
	if _, ok := m.Transforms().InputTransform(0); ok {
		t.Error("nil metadata has no transforms")
	}
}

func TestUnnamedOutputs(t *testing.T) {
	m, err := Parse([]byte(`{"Model": {"Outputs": [{"dtype": "float32", "shape": [1]}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.HasOutputNames() {
		t.Error("outputs without names are not addressable")
	}
}
