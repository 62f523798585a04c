package acoustic

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hubenschmidt/trueprompter-go/internal/emission"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// runtimeInit guards the process-wide ONNX Runtime environment, which
// must be initialized exactly once regardless of how many ONNXModels
// are loaded.
var runtimeInit sync.Once
var runtimeInitErr error

func ensureRuntime(libPath string) error {
	runtimeInit.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// ONNXModel is the production Model implementation: a single-input,
// single-output ONNX Runtime session over a dynamic-shape (1, samples)
// waveform, producing a (1, frames, vocab) emission tensor that is
// log-softmaxed over the vocabulary axis before being handed to the
// recognizer. Loaded once per process and shared by reference across
// every session, so the underlying session must tolerate concurrent
// Invoke calls; Invoke serializes them with a mutex since ORT sessions
// are not safe for concurrent Run calls on most execution providers.
type ONNXModel struct {
	mu sync.Mutex

	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	sampleRate  int
	frameStride int
	vocabSize   int
	blankToken  int32

	maxSamples int
	maxFrames  int
}

// ONNXOption configures LoadONNXModel.
type ONNXOption func(*onnxOptions)

type onnxOptions struct {
	libPath    string
	maxSamples int
}

// WithSharedLibraryPath points the runtime at a specific
// libonnxruntime.so instead of relying on its default search path.
func WithSharedLibraryPath(path string) ONNXOption {
	return func(o *onnxOptions) { o.libPath = path }
}

// WithMaxSamples bounds the largest input chunk the session's
// preallocated tensors are sized for; Invoke rejects longer chunks
// with a ResourceExhausted error instead of silently reallocating.
func WithMaxSamples(n int) ONNXOption {
	return func(o *onnxOptions) { o.maxSamples = n }
}

const defaultMaxSamples = 16000 * 30 // 30s at 16kHz, generous upper bound

// LoadONNXModel loads model.onnx and config.json from dir and builds
// an ONNX Runtime session ready for Invoke. The session's input and
// output tensors are preallocated to WithMaxSamples capacity (default
// 30s of 16kHz audio) and reused across calls; Invoke only uses the
// leading sub-slice that corresponds to the actual chunk size.
func LoadONNXModel(dir string, opts ...ONNXOption) (*ONNXModel, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	o := onnxOptions{maxSamples: defaultMaxSamples}
	for _, opt := range opts {
		opt(&o)
	}

	if err := ensureRuntime(o.libPath); err != nil {
		return nil, trueerr.Wrap(trueerr.ModelFailure, "initialize onnx runtime", err)
	}

	modelPath := filepath.Join(dir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, trueerr.Wrap(trueerr.ModelFailure, "locate onnx model file", err)
	}

	vocabSize := len(cfg.Vocab)
	maxFrames := o.maxSamples/cfg.InputsToLogitsRatio + 1

	inputShape := ort.NewShape(1, int64(o.maxSamples))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, trueerr.Wrap(trueerr.ModelFailure, "allocate onnx input tensor", err)
	}

	outputShape := ort.NewShape(1, int64(maxFrames), int64(vocabSize))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, trueerr.Wrap(trueerr.ModelFailure, "allocate onnx output tensor", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, trueerr.Wrap(trueerr.ModelFailure, "create onnx session", err)
	}

	return &ONNXModel{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		sampleRate:   cfg.SamplingRate,
		frameStride:  cfg.InputsToLogitsRatio,
		vocabSize:    vocabSize,
		blankToken:   cfg.BlankTokenID,
		maxSamples:   o.maxSamples,
		maxFrames:    maxFrames,
	}, nil
}

func (m *ONNXModel) SampleRate() int   { return m.sampleRate }
func (m *ONNXModel) FrameStride() int  { return m.frameStride }
func (m *ONNXModel) VocabSize() int    { return m.vocabSize }
func (m *ONNXModel) BlankToken() int32 { return m.blankToken }

// Close releases the session and its tensors. Not part of the Model
// interface since most callers hold a model for the process lifetime.
func (m *ONNXModel) Close() error {
	m.session.Destroy()
	m.inputTensor.Destroy()
	m.outputTensor.Destroy()
	return nil
}

// Invoke z-score normalizes samples, runs the session, and returns the
// log-softmaxed emission matrix for the resulting frames. The returned
// Matrix is a copy of the leading frames of m's output tensor in
// freshly allocated storage, so it stays valid after the next Invoke
// call.
func (m *ONNXModel) Invoke(samples []float32) (emission.Matrix, error) {
	if len(samples) == 0 {
		return emission.Matrix{}, trueerr.New(trueerr.InvalidInput, "invoke called with zero samples")
	}
	if len(samples) > m.maxSamples {
		return emission.Matrix{}, trueerr.New(trueerr.ResourceExhausted,
			fmt.Sprintf("chunk of %d samples exceeds configured max %d", len(samples), m.maxSamples))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	normalize(samples, m.inputTensor.GetData())

	if err := m.session.Run(); err != nil {
		return emission.Matrix{}, trueerr.Wrap(trueerr.ModelFailure, "run acoustic model", err)
	}

	frames := len(samples) / m.frameStride
	if frames == 0 {
		frames = 1
	}
	if frames > m.maxFrames {
		frames = m.maxFrames
	}

	out := m.outputTensor.GetData()
	buf := make([]float32, m.vocabSize*frames)
	copy(buf, out[:m.vocabSize*frames])
	mat := emission.New(buf, m.vocabSize, frames)
	logSoftmaxColumns(mat)
	return mat, nil
}

// normalize z-score normalizes src into the leading len(src) elements
// of dst, leaving the remainder of dst (the unused tail of the
// preallocated tensor) untouched.
func normalize(src, dst []float32) {
	var sum float64
	for _, v := range src {
		sum += float64(v)
	}
	mean := sum / float64(len(src))

	var variance float64
	for _, v := range src {
		d := float64(v) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(src)))
	if std == 0 {
		std = 1
	}

	for i, v := range src {
		dst[i] = float32((float64(v) - mean) / std)
	}
}

// logSoftmaxColumns normalizes each column (frame) of mat over the
// vocabulary axis in place: col -= log(sum(exp(col))).
func logSoftmaxColumns(mat emission.Matrix) {
	for c := 0; c < mat.Cols; c++ {
		col := mat.Col(c)
		max := col[0]
		for _, v := range col {
			if v > max {
				max = v
			}
		}
		var sum float64
		for _, v := range col {
			sum += math.Exp(float64(v - max))
		}
		logSum := max + float32(math.Log(sum))
		for i := range col {
			col[i] -= logSum
		}
	}
}
