package acoustic

import (
	"math"

	"github.com/hubenschmidt/trueprompter-go/internal/emission"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// StubModel is a deterministic, ONNX-free Model used in unit tests and
// the "dryrun" CLI model path: it never runs a neural network, it maps each
// output frame's emission vector from a caller-supplied script so
// matcher and prompter tests can exercise realistic trellises without
// a model asset on disk.
type StubModel struct {
	sampleRate  int
	frameStride int
	vocabSize   int
	blankToken  int32

	// Emit, when set, computes the emission vector (length VocabSize)
	// for the frame covering samples[start:start+FrameStride]. When
	// nil, Invoke returns a uniform-probability matrix.
	Emit func(frame int, samples []float32) []float32
}

// NewStubModel builds a StubModel with the given shape parameters.
func NewStubModel(sampleRate, frameStride, vocabSize int, blankToken int32) *StubModel {
	return &StubModel{sampleRate: sampleRate, frameStride: frameStride, vocabSize: vocabSize, blankToken: blankToken}
}

func (m *StubModel) SampleRate() int   { return m.sampleRate }
func (m *StubModel) FrameStride() int  { return m.frameStride }
func (m *StubModel) VocabSize() int    { return m.vocabSize }
func (m *StubModel) BlankToken() int32 { return m.blankToken }

func (m *StubModel) Invoke(samples []float32) (emission.Matrix, error) {
	if len(samples) == 0 {
		return emission.Matrix{}, trueerr.New(trueerr.InvalidInput, "invoke called with zero samples")
	}
	frames := len(samples) / m.frameStride
	if frames == 0 {
		return emission.Matrix{}, trueerr.New(trueerr.InvalidInput, "samples shorter than one frame")
	}

	buf := make([]float32, m.vocabSize*frames)
	uniform := float32(-math.Log(float64(m.vocabSize)))
	for f := 0; f < frames; f++ {
		col := buf[f*m.vocabSize : (f+1)*m.vocabSize]
		if m.Emit != nil {
			start := f * m.frameStride
			end := start + m.frameStride
			if end > len(samples) {
				end = len(samples)
			}
			vec := m.Emit(f, samples[start:end])
			copy(col, vec)
			continue
		}
		for i := range col {
			col[i] = uniform
		}
	}
	return emission.New(buf, m.vocabSize, frames), nil
}
