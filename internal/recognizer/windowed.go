// Package recognizer drives an acoustic model over a running stream of
// audio samples, windowing each chunk with left/right context so that
// only frames unaffected by chunk-boundary artifacts are emitted.
package recognizer

import (
	"fmt"

	"github.com/hubenschmidt/trueprompter-go/internal/acoustic"
	"github.com/hubenschmidt/trueprompter-go/internal/emission"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// WindowedRecognizer wraps an acoustic.Model with chunk_len/left_stride/
// right_stride windowing: each chunk is run through the model in full,
// but only the interior frames — the ones whose receptive field never
// touched the chunk boundary — are emitted. It owns the pending sample
// buffer; nothing else may read or write it.
type WindowedRecognizer struct {
	model acoustic.Model

	chunkLen    int
	leftStride  int
	rightStride int

	buf []float32
}

// New builds a WindowedRecognizer. chunkLen, leftStride, and
// rightStride are in samples and must each be a multiple of the
// model's frame stride, with chunkLen >= leftStride+rightStride > 0.
func New(model acoustic.Model, chunkLen, leftStride, rightStride int) (*WindowedRecognizer, error) {
	stride := model.FrameStride()
	if stride <= 0 {
		return nil, trueerr.New(trueerr.Internal, "acoustic model reports non-positive frame stride")
	}
	if leftStride+rightStride <= 0 || chunkLen < leftStride+rightStride {
		return nil, trueerr.New(trueerr.InvalidInput,
			fmt.Sprintf("invalid window: chunk_len=%d left_stride=%d right_stride=%d", chunkLen, leftStride, rightStride))
	}
	if chunkLen%stride != 0 || leftStride%stride != 0 || rightStride%stride != 0 {
		return nil, trueerr.New(trueerr.InvalidInput, "chunk_len/left_stride/right_stride must be multiples of the model's frame stride")
	}
	return &WindowedRecognizer{model: model, chunkLen: chunkLen, leftStride: leftStride, rightStride: rightStride}, nil
}

// Reset discards any buffered samples without resetting the
// underlying model.
func (r *WindowedRecognizer) Reset() {
	r.buf = r.buf[:0]
}

// Update appends samples to the pending buffer and runs the model over
// every full chunk now available, returning the concatenation of the
// interior frames of each chunk run. The returned Matrix owns freshly
// allocated storage — unlike acoustic.Model.Invoke's result, it is not
// borrowed and remains valid after the next Update call.
func (r *WindowedRecognizer) Update(samples []float32) (emission.Matrix, error) {
	r.buf = append(r.buf, samples...)

	stride := r.model.FrameStride()
	innerFrames := (r.chunkLen - r.leftStride - r.rightStride) / stride
	leftFrames := r.leftStride / stride
	vocab := r.model.VocabSize()

	var out []float32
	cols := 0
	for len(r.buf) >= r.chunkLen {
		chunk := r.buf[:r.chunkLen]
		mat, err := r.model.Invoke(chunk)
		if err != nil {
			return emission.Matrix{}, err
		}
		if mat.Rows != vocab {
			return emission.Matrix{}, trueerr.New(trueerr.ModelFailure, "acoustic model emitted unexpected vocabulary size")
		}
		take := innerFrames
		if take > mat.Cols-leftFrames {
			take = mat.Cols - leftFrames
		}
		if take > 0 {
			inner := mat.Slice(leftFrames, leftFrames+take)
			out = append(out, inner.Data...)
			cols += take
		}

		shift := r.chunkLen - r.leftStride - r.rightStride
		r.buf = r.buf[shift:]
	}

	if cols == 0 {
		return emission.Matrix{}, nil
	}
	return emission.New(out, vocab, cols), nil
}
