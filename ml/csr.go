// csr.go - Compressed Sparse Row Batches fuer die Tree-Engine
// Zeilen werden inkrementell aufgebaut; fehlende Werte werden nicht gespeichert.
package ml

import (
	"fmt"
	"math"
)

// CSRBatch is the tree-engine's native input: row i owns the entries
// ColInd[RowPtr[i]:RowPtr[i+1]] and Data[RowPtr[i]:RowPtr[i+1]].
type CSRBatch struct {
	RowPtr []int64
	ColInd []uint32
	Data   []float32
	NumRow int
	NumCol int
}

// CSRBuilder appends dense rows to a CSRBatch. A cell is missing when it is
// NaN, or when it is zero and zeroMissing is set.
type CSRBuilder struct {
	numCol      int
	zeroMissing bool
	batch       CSRBatch
}

func NewCSRBuilder(numCol int, zeroMissing bool) *CSRBuilder {
	return &CSRBuilder{
		numCol:      numCol,
		zeroMissing: zeroMissing,
		batch: CSRBatch{
			RowPtr: []int64{0},
			NumCol: numCol,
		},
	}
}

// AppendRow adds one row. Rows shorter than the feature count are padded
// with missing values; longer rows are rejected.
func (b *CSRBuilder) AppendRow(row []float32) error {
	if len(row) > b.numCol {
		return fmt.Errorf("%w: row has %d columns, model expects at most %d", ErrTooManyColumns, len(row), b.numCol)
	}

	for j, v := range row {
		if b.missing(v) {
			continue
		}
		b.batch.ColInd = append(b.batch.ColInd, uint32(j))
		b.batch.Data = append(b.batch.Data, v)
	}

	b.batch.RowPtr = append(b.batch.RowPtr, int64(len(b.batch.Data)))
	b.batch.NumRow++
	return nil
}

func (b *CSRBuilder) missing(v float32) bool {
	if math.IsNaN(float64(v)) {
		return true
	}
	return b.zeroMissing && v == 0
}

func (b *CSRBuilder) Batch() *CSRBatch {
	return &b.batch
}

// DenseToCSR converts a row-major rows x cols matrix.
func DenseToCSR(data []float32, rows, cols, numCol int, zeroMissing bool) (*CSRBatch, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d matrix", ErrShapeMismatch, rows, cols)
	}
	if cols != 0 && rows > math.MaxInt/cols {
		return nil, fmt.Errorf("%w: %dx%d matrix", ErrShapeOverflow, rows, cols)
	}
	if rows*cols != len(data) {
		return nil, fmt.Errorf("%w: %d values for a %dx%d matrix", ErrSizeMismatch, len(data), rows, cols)
	}

	b := NewCSRBuilder(numCol, zeroMissing)
	for i := range rows {
		if err := b.AppendRow(data[i*cols : (i+1)*cols]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.Batch(), nil
}
