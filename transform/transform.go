// MODUL: transform
// ZWECK: Wandelt JSON-kodierte Batch-Eingaben in numerische Tensoren um (und zurueck)
// INPUT: Roher JSON-Text (2-D Array), Spalten-Mappings aus den Metadaten
// OUTPUT: float32-Matrix (Zeilen x Spalten) bzw. JSON-Array mit Labels
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: fs/metadata, ml
// HINWEISE: Einzelne fehlerhafte Zellen werden durch Sentinels ersetzt, nur Strukturfehler brechen ab

// Package transform maps categorical string columns to numeric codes.
package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/edgerun/edgerun/fs/metadata"
	"github.com/edgerun/edgerun/ml"
)

// MissingValue replaces a mapped cell whose value has no code.
const MissingValue float32 = -1

// UnseenLabel replaces an output code with no label.
const UnseenLabel = "<unseen_label>"

// BadValue replaces a passthrough cell that is not a number.
var BadValue = float32(math.NaN())

var (
	ErrParse       = errors.New("input is not a 2-D JSON array")
	ErrColumns     = errors.New("column count mismatch")
	ErrNoTransform = errors.New("no data transform declared")
)

// Error is a structural failure of a whole batch.
type Error struct {
	Op    string
	Index int
	Row   int
	Err   error
}

func (e *Error) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("transform %s %d: row %d: %v", e.Op, e.Index, e.Row, e.Err)
	}
	return fmt.Sprintf("transform %s %d: %v", e.Op, e.Index, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transformer applies the data transforms declared in a model's metadata.
type Transformer struct {
	dt *metadata.DataTransform

	// inverted output tables, built on first use
	labels map[int][]map[int64]string
}

// New returns a Transformer for dt. A nil dt declares no transforms.
func New(dt *metadata.DataTransform) *Transformer {
	return &Transformer{dt: dt, labels: make(map[int][]map[int64]string)}
}

// HasInput reports whether input index is transformed.
func (t *Transformer) HasInput(index int) bool {
	_, ok := t.dt.InputTransform(index)
	return ok
}

// HasOutput reports whether output index is transformed.
func (t *Transformer) HasOutput(index int) bool {
	_, ok := t.dt.OutputTransform(index)
	return ok
}

// InputColumns returns the column count declared for input index.
func (t *Transformer) InputColumns(index int) int {
	c, _ := t.dt.InputTransform(index)
	return c.Columns()
}

// =============================================================================
// Eingabe
// =============================================================================

// TransformInput converts raw, a UTF-8 JSON array of rows, into a row-major
// float32 matrix of shape (rows, columns).
func (t *Transformer) TransformInput(index int, raw []byte) ([]float32, ml.Shape, error) {
	ct, ok := t.dt.InputTransform(index)
	if !ok {
		return nil, nil, &Error{Op: "input", Index: index, Row: -1, Err: ErrNoTransform}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, nil, &Error{Op: "input", Index: index, Row: -1, Err: fmt.Errorf("%w: %v", ErrParse, err)}
	}
	if dec.More() {
		return nil, nil, &Error{Op: "input", Index: index, Row: -1, Err: fmt.Errorf("%w: trailing data", ErrParse)}
	}

	cols := ct.Columns()
	for i, row := range rows {
		if len(row) != cols {
			return nil, nil, &Error{Op: "input", Index: index, Row: i, Err: fmt.Errorf("%w: got %d columns, want %d", ErrColumns, len(row), cols)}
		}
	}

	out := make([]float32, len(rows)*cols)
	for i, row := range rows {
		for j, cell := range row {
			if ct.Mapped(j) {
				out[i*cols+j] = lookup(ct.CategoricalString[j], cell)
			} else {
				out[i*cols+j] = number(cell)
			}
		}
	}

	return out, ml.Shape{int64(len(rows)), int64(cols)}, nil
}

// lookup maps a string cell, or the literal text of a number cell.
func lookup(table map[string]int64, cell any) float32 {
	var key string
	switch v := cell.(type) {
	case string:
		key = v
	case json.Number:
		key = v.String()
	default:
		return MissingValue
	}

	code, ok := table[key]
	if !ok {
		return MissingValue
	}
	return float32(code)
}

func number(cell any) float32 {
	switch v := cell.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return BadValue
		}
		return float32(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return BadValue
		}
		return float32(f)
	default:
		return BadValue
	}
}

// =============================================================================
// Ausgabe
// =============================================================================

// TransformOutput maps the numeric codes of output index back to labels
// and encodes them as a JSON array of rows. Unmapped columns keep their
// numeric value.
func (t *Transformer) TransformOutput(index int, values []float32) ([]byte, error) {
	ct, ok := t.dt.OutputTransform(index)
	if !ok {
		return nil, &Error{Op: "output", Index: index, Row: -1, Err: ErrNoTransform}
	}

	cols := ct.Columns()
	if len(values)%cols != 0 {
		return nil, &Error{Op: "output", Index: index, Row: -1, Err: fmt.Errorf("%w: %d values for %d columns", ErrColumns, len(values), cols)}
	}

	inv := t.inverse(index, ct)
	rows := make([][]any, len(values)/cols)
	for i := range rows {
		row := make([]any, cols)
		for j := range row {
			v := values[i*cols+j]
			switch {
			case !ct.Mapped(j):
				row[j] = jsonNumber(v)
			case math.IsNaN(float64(v)):
				row[j] = UnseenLabel
			default:
				label, ok := inv[j][int64(v)]
				if !ok {
					label = UnseenLabel
				}
				row[j] = label
			}
		}
		rows[i] = row
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return nil, &Error{Op: "output", Index: index, Row: -1, Err: err}
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// jsonNumber keeps NaN and infinities encodable.
func jsonNumber(v float32) any {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func (t *Transformer) inverse(index int, ct metadata.ColumnTransform) []map[int64]string {
	if inv, ok := t.labels[index]; ok {
		return inv
	}

	inv := make([]map[int64]string, ct.Columns())
	for j, table := range ct.CategoricalString {
		inv[j] = make(map[int64]string, len(table))
		for label, code := range table {
			// several labels may share a code; keep the smallest for stable output
			if prev, ok := inv[j][code]; !ok || label < prev {
				inv[j][code] = label
			}
		}
	}
	t.labels[index] = inv
	return inv
}
