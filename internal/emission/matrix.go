// Package emission defines the borrowed log-probability matrix shared
// between the acoustic model, the recognizer, and the matchers.
package emission

import "fmt"

// Matrix is a borrowed, column-major view over log-probabilities with
// shape (Rows, Cols): rows are vocabulary ids (including BLANK), columns
// are frames in time order. Storage is column-major (each frame's full
// vocabulary vector is contiguous) so that appending, dropping, and
// slicing frames — the operations the recognizer and the online matcher
// live on — never require touching more than the affected columns.
//
// A Matrix never owns its backing storage beyond the call that produced
// it; callers must not retain one past the lifetime of the slice it was
// built from (see the "emission matrix borrowing" design note).
type Matrix struct {
	Data []float32 // len == Rows*Cols, column c occupies Data[c*Rows:(c+1)*Rows]
	Rows int
	Cols int
}

// New wraps data as a Rows x Cols column-major matrix. len(data) must
// equal rows*cols.
func New(data []float32, rows, cols int) Matrix {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("emission: data length %d does not match %dx%d", len(data), rows, cols))
	}
	return Matrix{Data: data, Rows: rows, Cols: cols}
}

// At returns the log-probability for the given vocabulary row and frame
// column.
func (m Matrix) At(row, col int) float32 {
	return m.Data[col*m.Rows+row]
}

// Col returns the live slice backing a single frame's vocabulary vector.
// The slice aliases m.Data; callers must not retain it past m's lifetime.
func (m Matrix) Col(col int) []float32 {
	return m.Data[col*m.Rows : (col+1)*m.Rows]
}

// Slice returns the sub-matrix spanning columns [from, to). The result
// aliases m.Data.
func (m Matrix) Slice(from, to int) Matrix {
	return Matrix{Data: m.Data[from*m.Rows : to*m.Rows], Rows: m.Rows, Cols: to - from}
}

// ArgMax returns the row index with the highest log-probability in the
// given column.
func (m Matrix) ArgMax(col int) int {
	vec := m.Col(col)
	best := 0
	for r := 1; r < len(vec); r++ {
		if vec[r] > vec[best] {
			best = r
		}
	}
	return best
}
