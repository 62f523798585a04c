package main

import (
	"github.com/hubenschmidt/trueprompter-go/internal/env"
	"github.com/hubenschmidt/trueprompter-go/internal/ws"
)

// config holds the windowing/matcher tuning every new session starts
// with, loaded from environment variables with sensible defaults
// tuned for a 16kHz CTC acoustic model at a 20ms frame stride.
type config struct {
	httpAddr string

	window ws.WindowConfig
	match  ws.MatcherConfig

	minChunkTokens  int
	lookAheadTokens int

	lexiconPath string
	onnxLibPath string
	spaceToken  *int32
}

func loadConfig() config {
	var spaceToken *int32
	if v := env.Int("TRUEPROMPTER_SPACE_TOKEN", -1); v >= 0 {
		st := int32(v)
		spaceToken = &st
	}

	return config{
		spaceToken: spaceToken,
		window: ws.WindowConfig{
			ChunkLen:    env.Int("TRUEPROMPTER_CHUNK_LEN", 16000),
			LeftStride:  env.Int("TRUEPROMPTER_LEFT_STRIDE", 1600),
			RightStride: env.Int("TRUEPROMPTER_RIGHT_STRIDE", 1600),
		},
		match: ws.MatcherConfig{
			MatchLength:    env.Int("TRUEPROMPTER_MATCH_LENGTH", 3),
			MinMatchWeight: float32(env.Float("TRUEPROMPTER_MIN_MATCH_WEIGHT", 0.3)),
			CMax:           env.Int("TRUEPROMPTER_CONTEXT_MAX", 400),
			Overlap:        env.Int("TRUEPROMPTER_CONTEXT_OVERLAP", 50),
		},
		minChunkTokens:  env.Int("TRUEPROMPTER_MIN_CHUNK_TOKENS", 5),
		lookAheadTokens: env.Int("TRUEPROMPTER_LOOKAHEAD_TOKENS", 25),
		lexiconPath:     env.Str("TRUEPROMPTER_LEXICON", ""),
		onnxLibPath:     env.Str("TRUEPROMPTER_ONNX_LIB", ""),
	}
}
