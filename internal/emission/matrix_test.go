package emission

import "testing"

func TestMatrixLayout(t *testing.T) {
	// 3 rows x 2 cols, column-major: col0 = [1 2 3], col1 = [4 5 6]
	m := New([]float32{1, 2, 3, 4, 5, 6}, 3, 2)

	if m.At(0, 0) != 1 || m.At(2, 0) != 3 || m.At(0, 1) != 4 || m.At(2, 1) != 6 {
		t.Fatalf("unexpected element layout: %+v", m)
	}

	col := m.Col(1)
	if len(col) != 3 || col[0] != 4 || col[2] != 6 {
		t.Fatalf("unexpected column slice: %v", col)
	}
}

func TestMatrixSliceAliases(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	m := New(data, 2, 3)
	s := m.Slice(1, 3)
	if s.Cols != 2 || s.Rows != 2 {
		t.Fatalf("unexpected slice shape: %dx%d", s.Rows, s.Cols)
	}
	if s.At(0, 0) != 3 {
		t.Fatalf("slice not anchored at column 1: %v", s.At(0, 0))
	}

	data[2] = 99
	if s.At(0, 0) != 99 {
		t.Fatal("slice must alias the parent's storage, not copy it")
	}
}

func TestMatrixArgMax(t *testing.T) {
	m := New([]float32{-3, -1, -2, -0.5, -4, -9}, 3, 2)
	if got := m.ArgMax(0); got != 1 {
		t.Fatalf("expected argmax 1 in column 0, got %d", got)
	}
	if got := m.ArgMax(1); got != 0 {
		t.Fatalf("expected argmax 0 in column 1, got %d", got)
	}
}

func TestNewPanicsOnShapeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for mismatched data length")
		}
	}()
	New([]float32{1, 2, 3}, 2, 2)
}
