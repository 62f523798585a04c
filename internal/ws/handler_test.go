package ws

import (
	"encoding/binary"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/trueprompter-go/internal/acoustic"
	"github.com/hubenschmidt/trueprompter-go/internal/tokenizer"
	"github.com/hubenschmidt/trueprompter-go/internal/wire"
)

const (
	testVocab       = 28 // blank + 26 letters + space
	testFrameStride = 10
	testSpaceToken  = int32(27)
)

func letterG2P(word string) []int32 {
	toks := make([]int32, 0, len(word))
	for _, r := range word {
		if r >= 'a' && r <= 'z' {
			toks = append(toks, int32(r-'a')+1)
		}
	}
	return toks
}

// newScriptedModel builds a StubModel whose emission for each frame
// strongly favors the token id encoded in that frame's first sample, so
// a test can script the exact emission sequence by synthesizing audio.
func newScriptedModel() *acoustic.StubModel {
	model := acoustic.NewStubModel(16000, testFrameStride, testVocab, 0)
	model.Emit = func(frame int, samples []float32) []float32 {
		favored := int32(samples[0])
		vec := make([]float32, testVocab)
		low := float32(math.Log(0.02 / float64(testVocab-1)))
		for i := range vec {
			vec[i] = low
		}
		vec[favored] = float32(math.Log(0.98))
		return vec
	}
	return model
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	space := testSpaceToken
	h := NewHandler(HandlerConfig{
		Model:        newScriptedModel(),
		Phoneticizer: tokenizer.PhoneticizeFunc(letterG2P),
		SpaceToken:   &space,
		Window: WindowConfig{
			ChunkLen:    12 * testFrameStride,
			LeftStride:  testFrameStride,
			RightStride: testFrameStride,
		},
		Match: MatcherConfig{
			MatchLength:    1,
			MinMatchWeight: 0.3,
			CMax:           400,
			Overlap:        50,
		},
		MinChunkTokens:  2,
		LookAheadTokens: 100,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, req *wire.Request) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, wire.EncodeRequest(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) *wire.Response {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := wire.DecodeResponse(data)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// scriptAudio synthesizes PCM where frame f carries favored[f] as its
// sample value, one token per frame of testFrameStride samples.
func scriptAudio(favored []int32) []byte {
	samples := make([]float32, len(favored)*testFrameStride)
	for f, tok := range favored {
		for i := 0; i < testFrameStride; i++ {
			samples[f*testFrameStride+i] = float32(tok)
		}
	}
	buf := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func TestEndToEndFollowsScript(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	// One blank lead-in frame, then three frames per script token,
	// then silence to flush the windowing right stride.
	favored := []int32{0}
	for _, tok := range []int32{1, 2, 3, 4} {
		favored = append(favored, tok, tok, tok)
	}
	for i := 0; i < 12; i++ {
		favored = append(favored, 0)
	}

	// Handshake, script, and the first audio block all travel in a
	// single combined frame.
	name := "e2e-test"
	text := "ab cd"
	send(t, conn, &wire.Request{
		Handshake: &name,
		TextData:  &text,
		AudioMeta: wire.AudioMeta{SampleRate: 16000, Codec: wire.CodecPCMFloat32LE},
		AudioData: scriptAudio(favored),
	})
	resp := recv(t, conn)
	if resp.IsError {
		t.Fatalf("unexpected error response: %s", resp.ErrorWhat)
	}
	if resp.RecognitionResult == nil {
		t.Fatalf("expected recognition_result, got %+v", resp)
	}
	first := *resp.RecognitionResult
	if first == 0 {
		t.Fatal("expected the cursor to advance on a clean reading")
	}

	// Silence must never move the cursor backward.
	silence := make([]int32, 30)
	send(t, conn, &wire.Request{
		AudioMeta: wire.AudioMeta{SampleRate: 16000, Codec: wire.CodecPCMFloat32LE},
		AudioData: scriptAudio(silence),
	})
	resp = recv(t, conn)
	if resp.RecognitionResult == nil {
		t.Fatalf("expected recognition_result, got %+v", resp)
	}
	if *resp.RecognitionResult < first {
		t.Fatalf("cursor moved backward: %d -> %d", first, *resp.RecognitionResult)
	}

	if *resp.RecognitionResult != uint32(len(text)) {
		t.Fatalf("expected final cursor at end of text (%d), got %d", len(text), *resp.RecognitionResult)
	}
}

func TestEndToEndUserDataEcho(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	name := "echo-test"
	send(t, conn, &wire.Request{Handshake: &name})
	send(t, conn, &wire.Request{UserData: []byte("ping")})

	resp := recv(t, conn)
	if string(resp.UserData) != "ping" {
		t.Fatalf("expected user_data echoed, got %+v", resp)
	}
}

func TestEndToEndMissingHandshakeIsTerminal(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	text := "ab"
	send(t, conn, &wire.Request{TextData: &text})

	resp := recv(t, conn)
	if !resp.IsError {
		t.Fatalf("expected error response before handshake, got %+v", resp)
	}

	// The server closes the connection after a terminal error.
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed after the error response")
	}
}

func TestEndToEndTextResetRewindsCursor(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	name := "reset-test"
	send(t, conn, &wire.Request{Handshake: &name})

	text := "ab cd"
	send(t, conn, &wire.Request{TextData: &text})

	favored := []int32{0}
	for _, tok := range []int32{1, 2, 3, 4} {
		favored = append(favored, tok, tok, tok)
	}
	for i := 0; i < 12; i++ {
		favored = append(favored, 0)
	}
	send(t, conn, &wire.Request{
		AudioMeta: wire.AudioMeta{SampleRate: 16000, Codec: wire.CodecPCMFloat32LE},
		AudioData: scriptAudio(favored),
	})
	resp := recv(t, conn)
	if resp.RecognitionResult == nil || *resp.RecognitionResult == 0 {
		t.Fatalf("expected cursor advance before reset, got %+v", resp)
	}

	// Re-send the script with text_pos 0: the cursor must rewind and
	// stay put on subsequent silence.
	send(t, conn, &wire.Request{TextData: &text, TextPos: 0})
	send(t, conn, &wire.Request{
		AudioMeta: wire.AudioMeta{SampleRate: 16000, Codec: wire.CodecPCMFloat32LE},
		AudioData: scriptAudio(make([]int32, 30)),
	})
	resp = recv(t, conn)
	if resp.RecognitionResult == nil {
		t.Fatalf("expected recognition_result, got %+v", resp)
	}
	if *resp.RecognitionResult != 0 {
		t.Fatalf("expected cursor at 0 after reset and silence, got %d", *resp.RecognitionResult)
	}
}
