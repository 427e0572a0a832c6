// dump.go - Dump-Funktionen fuer Tensor-Debugging und Visualisierung
// Dieses Modul gibt Roh-Bytes eines Tensors verschachtelt nach Shape aus.
package ml

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func mul[T number](s ...T) T {
	p := T(1)
	for _, v := range s {
		p *= v
	}

	return p
}

// DumpOptions configures tensor dump output format.
type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places to print. Applies to float32 and float64.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Precision = n
	}
}

// DumpWithThreshold sets the threshold for printing the entire tensor. If the number of elements
// is less than or equal to this value, the entire tensor will be printed. Otherwise, only the
// beginning and end of each dimension will be printed.
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Threshold = n
	}
}

// DumpWithEdgeItems sets the number of elements to print at the beginning and end of each dimension.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.EdgeItems = n
	}
}

type dumpOptions struct {
	Precision, Threshold, EdgeItems int
}

// Dump renders row-major tensor bytes as nested lists. When shape does not
// describe exactly the elements in data, the values are printed flat.
func Dump(shape Shape, t DType, data []byte, optsFuncs ...DumpOptions) string {
	opts := dumpOptions{Precision: 4, Threshold: 1000, EdgeItems: 3}
	for _, optsFunc := range optsFuncs {
		optsFunc(&opts)
	}

	if t == DTypeString || t.Size() == 0 {
		return "<unsupported>"
	}

	count := len(data) / t.Size()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	if len(dims) == 0 || !shape.Known() || mul(dims...) != count {
		dims = []int{count}
	}

	if count <= opts.Threshold {
		opts.EdgeItems = math.MaxInt
	}

	data = data[:count*t.Size()]
	switch t {
	case DTypeF32:
		return dump[[]float32](data, dims, opts.EdgeItems, func(f float32) string {
			return strconv.FormatFloat(float64(f), 'f', opts.Precision, 32)
		})
	case DTypeF64:
		return dump[[]float64](data, dims, opts.EdgeItems, func(f float64) string {
			return strconv.FormatFloat(f, 'f', opts.Precision, 64)
		})
	case DTypeI8:
		return dump[[]int8](data, dims, opts.EdgeItems, func(i int8) string {
			return strconv.FormatInt(int64(i), 10)
		})
	case DTypeU8:
		return dump[[]uint8](data, dims, opts.EdgeItems, func(i uint8) string {
			return strconv.FormatUint(uint64(i), 10)
		})
	case DTypeI16:
		return dump[[]int16](data, dims, opts.EdgeItems, func(i int16) string {
			return strconv.FormatInt(int64(i), 10)
		})
	case DTypeI32:
		return dump[[]int32](data, dims, opts.EdgeItems, func(i int32) string {
			return strconv.FormatInt(int64(i), 10)
		})
	case DTypeI64:
		return dump[[]int64](data, dims, opts.EdgeItems, func(i int64) string {
			return strconv.FormatInt(i, 10)
		})
	case DTypeBool:
		return dump[[]uint8](data, dims, opts.EdgeItems, func(b uint8) string {
			return strconv.FormatBool(b != 0)
		})
	default:
		return "<unsupported>"
	}
}

func dump[S ~[]E, E number](data []byte, shape []int, items int, fn func(E) string) string {
	s := make(S, mul(shape...))
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, s); err != nil {
		return fmt.Sprintf("<%v>", err)
	}

	var sb strings.Builder
	var f func([]int, int)
	f = func(dims []int, stride int) {
		prefix := strings.Repeat(" ", len(shape)-len(dims)+1)
		sb.WriteString("[")
		defer func() { sb.WriteString("]") }()
		for i := 0; i < dims[0]; i++ {
			if i >= items && i < dims[0]-items {
				sb.WriteString("..., ")
				// skip to next printable element
				skip := dims[0] - 2*items
				if len(dims) > 1 {
					stride += mul(append(dims[1:], skip)...)
					fmt.Fprint(&sb, strings.Repeat("\n", len(dims)-1), prefix)
				}
				i += skip - 1
			} else if len(dims) > 1 {
				f(dims[1:], stride)
				stride += mul(dims[1:]...)
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ",", strings.Repeat("\n", len(dims)-1), prefix)
				}
			} else {
				text := fn(s[stride+i])
				if len(text) > 0 && text[0] != '-' {
					sb.WriteString(" ")
				}

				sb.WriteString(text)
				if i < dims[0]-1 {
					sb.WriteString(", ")
				}
			}
		}
	}
	f(shape, 0)

	return sb.String()
}
