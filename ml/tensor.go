// tensor.go - Tensor-Beschreibung und Shapes
// Enthaelt: Shape (mit -1 fuer unbekannte Dimensionen) und TensorDescriptor
package ml

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// DimUnknown marks a dimension that is unresolved until an input is bound.
const DimUnknown int64 = -1

// Shape is an ordered list of dimension sizes in row-major order.
type Shape []int64

func (s Shape) Dim() int {
	return len(s)
}

// Count returns the number of elements, or -1 if any dimension is unknown
// or the product does not fit in an int64. A rank-0 shape describes a scalar.
func (s Shape) Count() int64 {
	n, err := s.Elements()
	if err != nil {
		return DimUnknown
	}
	return n
}

// Elements returns the number of elements of a fully known shape.
func (s Shape) Elements() (int64, error) {
	n := int64(1)
	for _, d := range s {
		if d < 0 {
			return 0, fmt.Errorf("%w: %s has unknown dimensions", ErrShapeMismatch, s)
		}
		if d != 0 && n > math.MaxInt64/d {
			return 0, fmt.Errorf("%w: %s", ErrShapeOverflow, s)
		}
		n *= d
	}
	return n, nil
}

// Known reports whether every dimension is resolved.
func (s Shape) Known() bool {
	return !slices.ContainsFunc(s, func(d int64) bool { return d < 0 })
}

func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Matches reports whether other has the same rank and agrees element-wise
// wherever neither side is unknown. Unknown dimensions are wildcards.
func (s Shape) Matches(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] < 0 || other[i] < 0 {
			continue
		}
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ParseShape parses "1,3,224,224" (spaces and parentheses are ignored).
func ParseShape(s string) (Shape, error) {
	s = strings.Trim(strings.TrimSpace(s), "()[]")
	if s == "" {
		return Shape{}, nil
	}

	fields := strings.Split(s, ",")
	shape := make(Shape, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, err
		}
		shape = append(shape, d)
	}
	return shape, nil
}

// TensorDescriptor describes one input, output or weight of a model.
type TensorDescriptor struct {
	Name  string `json:"name"`
	Type  DType  `json:"dtype"`
	Shape Shape  `json:"shape"`
}

func (t TensorDescriptor) Dim() int {
	return t.Shape.Dim()
}

func (t TensorDescriptor) Count() int64 {
	return t.Shape.Count()
}

// Size returns the byte size of the tensor, or -1 while its shape is unknown.
func (t TensorDescriptor) Size() int64 {
	n, err := t.ByteSize()
	if err != nil {
		return DimUnknown
	}
	return n
}

// ByteSize is Size for a shape that must be fully known. Sizes beyond
// int64 fail with ErrShapeOverflow.
func (t TensorDescriptor) ByteSize() (int64, error) {
	n, err := t.Shape.Elements()
	if err != nil {
		return 0, err
	}
	elem := int64(t.Type.Size())
	if elem != 0 && n > math.MaxInt64/elem {
		return 0, fmt.Errorf("%w: %s of %s", ErrShapeOverflow, t.Shape, t.Type)
	}
	return n * elem, nil
}
