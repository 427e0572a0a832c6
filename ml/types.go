// types.go - Datentypen fuer Tensor-Elemente
// Dieses Modul definiert das feste Typ-Vokabular, das alle Engines teilen.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF64
	DTypeI8
	DTypeU8
	DTypeI16
	DTypeI32
	DTypeI64
	DTypeString
	DTypeBool
)

// DTypes lists every element type of the vocabulary.
func DTypes() []DType {
	return []DType{DTypeF32, DTypeF64, DTypeI8, DTypeU8, DTypeI16, DTypeI32, DTypeI64, DTypeString, DTypeBool}
}

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "float32"
	case DTypeF64:
		return "float64"
	case DTypeI8:
		return "int8"
	case DTypeU8:
		return "uint8"
	case DTypeI16:
		return "int16"
	case DTypeI32:
		return "int32"
	case DTypeI64:
		return "int64"
	case DTypeString:
		return "string"
	case DTypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Size returns the element width in bytes. String tensors are byte buffers.
func (t DType) Size() int {
	switch t {
	case DTypeF32, DTypeI32:
		return 4
	case DTypeF64, DTypeI64:
		return 8
	case DTypeI16:
		return 2
	case DTypeI8, DTypeU8, DTypeString, DTypeBool:
		return 1
	default:
		return 0
	}
}

// ParseDType accepts the canonical names plus the short aliases engines
// commonly report ("float", "double", "int", "long").
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "float":
		return DTypeF32, nil
	case "float64", "double":
		return DTypeF64, nil
	case "int8":
		return DTypeI8, nil
	case "uint8":
		return DTypeU8, nil
	case "int16":
		return DTypeI16, nil
	case "int32", "int":
		return DTypeI32, nil
	case "int64", "long":
		return DTypeI64, nil
	case "string", "json":
		return DTypeString, nil
	case "bool":
		return DTypeBool, nil
	default:
		return DTypeOther, fmt.Errorf("%w: %q", ErrUnknownDType, s)
	}
}

func (t DType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
