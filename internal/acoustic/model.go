// Package acoustic defines the AcousticModel boundary: an opaque,
// frame-emitting black box that turns raw audio samples into a log-
// probability emission matrix. The neural model runtime itself is out
// of scope for this repository; this package only owns the contract,
// the on-disk asset layout, and a concrete ONNX Runtime binding.
package acoustic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hubenschmidt/trueprompter-go/internal/emission"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// Model is the opaque acoustic model boundary. Invoke must be safe for
// concurrent use across sessions, since a single loaded model is shared
// by reference across all client sessions.
type Model interface {
	// Invoke runs the model over exactly len(samples) audio samples and
	// returns the resulting emission matrix, log-softmaxed over the
	// vocabulary axis. The returned Matrix borrows a buffer owned by
	// the Model and is only valid until the next Invoke call.
	Invoke(samples []float32) (emission.Matrix, error)
	// SampleRate is the sample rate, in Hz, the model expects its input
	// to be resampled to.
	SampleRate() int
	// FrameStride is inputs_to_logits_ratio: the number of input
	// samples that correspond to one output frame (column).
	FrameStride() int
	// VocabSize is the number of rows (token ids) in every emission
	// matrix this model produces.
	VocabSize() int
	// BlankToken is the distinguished CTC blank token id.
	BlankToken() int32
}

// Config describes the on-disk model asset directory: an ONNX (or
// ONNX-like) model file, a JSON config carrying the sampling rate and
// frame stride, and a vocabulary mapping token id -> symbol.
type Config struct {
	SamplingRate        int      `json:"sampling_rate"`
	InputsToLogitsRatio int      `json:"inputs_to_logits_ratio"`
	Vocab               []string `json:"vocab"`
	BlankTokenID        int32    `json:"blank_token_id"`
}

// LoadConfig reads config.json from a model asset directory.
func LoadConfig(dir string) (Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return Config{}, trueerr.Wrap(trueerr.ModelFailure, "read model config", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, trueerr.Wrap(trueerr.ModelFailure, "parse model config", err)
	}
	if cfg.SamplingRate <= 0 || cfg.InputsToLogitsRatio <= 0 || len(cfg.Vocab) == 0 {
		return Config{}, trueerr.New(trueerr.ModelFailure, fmt.Sprintf("incomplete model config in %s", dir))
	}
	return cfg, nil
}
