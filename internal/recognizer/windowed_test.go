package recognizer

import (
	"testing"

	"github.com/hubenschmidt/trueprompter-go/internal/acoustic"
)

func newTestModel() *acoustic.StubModel {
	m := acoustic.NewStubModel(16000, 320, 4, 0)
	m.Emit = func(frame int, samples []float32) []float32 {
		vec := make([]float32, 4)
		vec[0] = float32(frame)
		return vec
	}
	return m
}

func TestWindowedRecognizerRejectsBadWindow(t *testing.T) {
	model := newTestModel()
	if _, err := New(model, 320, 320, 320); err == nil {
		t.Fatal("expected error when left+right > chunk_len")
	}
	if _, err := New(model, 321, 160, 160); err == nil {
		t.Fatal("expected error for non-multiple-of-stride window")
	}
}

func TestWindowedRecognizerEmptyUntilFullChunk(t *testing.T) {
	model := newTestModel()
	r, err := New(model, 320*10, 320*2, 320*2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mat, err := r.Update(make([]float32, 320*5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mat.Cols != 0 {
		t.Fatalf("expected no frames before a full chunk, got %d", mat.Cols)
	}
}

func TestWindowedRecognizerStability(t *testing.T) {
	chunkLen, left, right := 320*10, 320*2, 320*2
	stride := 320

	total := chunkLen*3 + left // enough for multiple chunk shifts
	samples := make([]float32, total)

	modelA := newTestModel()
	rA, err := New(modelA, chunkLen, left, right)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fullMat, err := rA.Update(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	modelB := newTestModel()
	rB, err := New(modelB, chunkLen, left, right)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	half := total / 2 / stride * stride
	firstMat, err := rB.Update(samples[:half])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	secondMat, err := rB.Update(samples[half:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prefixLen := firstMat.Cols
	if prefixLen == 0 {
		t.Fatal("expected at least one frame from the first half")
	}
	if prefixLen > fullMat.Cols {
		t.Fatalf("split emitted more prefix frames (%d) than the full run (%d)", prefixLen, fullMat.Cols)
	}
	for c := 0; c < prefixLen; c++ {
		if fullMat.At(0, c) != firstMat.At(0, c) {
			t.Fatalf("frame %d differs between full run and split run prefix: %v vs %v", c, fullMat.At(0, c), firstMat.At(0, c))
		}
	}
	if prefixLen+secondMat.Cols != fullMat.Cols {
		t.Fatalf("split frame counts don't sum to full run: %d + %d != %d", prefixLen, secondMat.Cols, fullMat.Cols)
	}
	for c := 0; c < secondMat.Cols; c++ {
		if fullMat.At(0, prefixLen+c) != secondMat.At(0, c) {
			t.Fatalf("frame %d differs between full run and split run suffix", prefixLen+c)
		}
	}
}
