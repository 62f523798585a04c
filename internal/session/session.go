// Package session implements one client's sequential request/response
// loop: applying handshake, script, matcher-tuning, and audio messages
// to a single owned Prompter and translating its cursor into wire
// responses.
package session

import (
	"github.com/hubenschmidt/trueprompter-go/internal/acoustic"
	"github.com/hubenschmidt/trueprompter-go/internal/audio"
	"github.com/hubenschmidt/trueprompter-go/internal/metrics"
	"github.com/hubenschmidt/trueprompter-go/internal/prompter"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
	"github.com/hubenschmidt/trueprompter-go/internal/wire"
)

// Tunable exposes the matcher/prompter knobs a matcher_params request
// may override. Session depends on this narrow interface rather than
// concrete *prompter.Prompter so it stays testable.
type Tunable interface {
	SetLookAheadTokens(n int)
	SetMinMatchWeight(w float32)
}

// Session processes exactly one client's messages, strictly in
// arrival order. It is not safe for concurrent use — the caller (the
// transport handler) must serialize calls to Handle.
type Session struct {
	prompter        *prompter.Prompter
	tunable         Tunable
	modelSampleRate int

	handshakeDone bool
	clientName    string
	closed        bool
}

// New builds a Session around an already-constructed Prompter. tunable
// is typically the same Prompter, passed separately so matcher_params
// overrides do not need a concrete dependency on the matcher package.
func New(p *prompter.Prompter, tunable Tunable, model acoustic.Model) *Session {
	return &Session{prompter: p, tunable: tunable, modelSampleRate: model.SampleRate()}
}

// Closed reports whether this session has emitted a terminal error and
// must not be handed further requests.
func (s *Session) Closed() bool { return s.closed }

// Handle applies one decoded request and returns zero or one response.
// A request may combine several fields; they are applied in a fixed
// order (handshake, text, matcher params, audio, user data) so a
// client can replace the script and feed audio in one round trip. A
// non-nil error response sets Closed(); the transport handler must
// send the response and then close the connection.
func (s *Session) Handle(req *wire.Request) *wire.Response {
	if s.closed {
		return errorResponse(trueerr.Internal, "session already closed")
	}

	// Only the first handshake initializes; a repeat one is ignored.
	if !s.handshakeDone {
		if req.Handshake == nil {
			return s.fail(trueerr.InvalidInput, "handshake required as first message")
		}
		s.clientName = *req.Handshake
		s.handshakeDone = true
	}

	if req.TextData != nil {
		if err := s.prompter.SetText(*req.TextData, int(req.TextPos)); err != nil {
			return s.failErr(err)
		}
	}

	if req.MatcherParams != nil {
		if req.MatcherParams.LookAhead != nil {
			s.tunable.SetLookAheadTokens(int(*req.MatcherParams.LookAhead))
		}
		if req.MatcherParams.MinMatchWeight != nil {
			s.tunable.SetMinMatchWeight(*req.MatcherParams.MinMatchWeight)
		}
	}

	if req.AudioData != nil {
		return s.handleAudio(req)
	}

	// Echoed only when no recognition result was produced: a response
	// frame carries a single variant.
	if req.UserData != nil {
		return &wire.Response{UserData: req.UserData}
	}

	return nil
}

func (s *Session) handleAudio(req *wire.Request) *wire.Response {
	codec, err := mapCodec(req.AudioMeta.Codec)
	if err != nil {
		return s.failErr(err)
	}

	samples, sr, err := audio.Decode(req.AudioData, codec, int(req.AudioMeta.SampleRate))
	if err != nil {
		return s.fail(trueerr.InvalidInput, "decode audio_data: "+err.Error())
	}
	samples = audio.Resample(samples, sr, s.modelSampleRate)

	matches, err := s.prompter.Update(samples)
	if err != nil {
		return s.failErr(err)
	}
	metrics.CursorAdvances.Add(float64(len(matches)))

	pos := uint32(s.prompter.Cursor())
	return &wire.Response{RecognitionResult: &pos}
}

func mapCodec(c wire.Codec) (audio.Codec, error) {
	switch c {
	case wire.CodecPCMFloat32LE:
		return audio.CodecPCM, nil
	case wire.CodecG711ULaw:
		return audio.CodecG711Ulaw, nil
	case wire.CodecG711ALaw:
		return audio.CodecG711Alaw, nil
	case wire.CodecWAV:
		return audio.CodecWAV, nil
	default:
		return "", trueerr.New(trueerr.InvalidInput, "unknown audio codec")
	}
}

// fail marks the session closed and builds a terminal error response.
func (s *Session) fail(kind trueerr.Kind, msg string) *wire.Response {
	s.closed = true
	return errorResponse(kind, msg)
}

func (s *Session) failErr(err error) *wire.Response {
	s.closed = true
	return errorResponse(trueerr.KindOf(err), err.Error())
}

func errorResponse(kind trueerr.Kind, msg string) *wire.Response {
	return &wire.Response{IsError: true, ErrorCode: int32(kind), ErrorWhat: msg}
}
