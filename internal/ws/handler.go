// Package ws adapts the session/wire layer to a WebSocket transport:
// one binary frame per wire message, one goroutine per connection, no
// state shared across connections beyond the acoustic model and the
// Prometheus collectors.
package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/trueprompter-go/internal/acoustic"
	"github.com/hubenschmidt/trueprompter-go/internal/matcher"
	"github.com/hubenschmidt/trueprompter-go/internal/metrics"
	"github.com/hubenschmidt/trueprompter-go/internal/prompter"
	"github.com/hubenschmidt/trueprompter-go/internal/recognizer"
	"github.com/hubenschmidt/trueprompter-go/internal/session"
	"github.com/hubenschmidt/trueprompter-go/internal/tokenizer"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
	"github.com/hubenschmidt/trueprompter-go/internal/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WindowConfig holds the WindowedRecognizer's fixed sample-domain
// parameters, shared by every session against a given model.
type WindowConfig struct {
	ChunkLen    int
	LeftStride  int
	RightStride int
}

// MatcherConfig holds the Viterbi/Online matcher's fixed parameters.
type MatcherConfig struct {
	MatchLength    int
	MinMatchWeight float32
	CMax           int
	Overlap        int
}

// HandlerConfig holds everything shared across every session: the
// acoustic model (must tolerate concurrent Invoke), the G2P
// collaborator, and the windowing/matcher tuning new sessions start
// with (a matcher_params request may override per-session afterward).
type HandlerConfig struct {
	Model           acoustic.Model
	Phoneticizer    tokenizer.Phoneticizer
	SpaceToken      *int32
	Window          WindowConfig
	Match           MatcherConfig
	MinChunkTokens  int
	LookAheadTokens int
}

// Handler upgrades incoming HTTP connections and runs one teleprompter
// session per connection.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler builds a Handler around the shared backend configuration.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

// ServeHTTP upgrades the connection to a WebSocket and runs the
// session loop until the client disconnects or a terminal error is
// sent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	sessionID := uuid.NewString()
	sess, err := h.newSession()
	if err != nil {
		slog.Error("build session", "session_id", sessionID, "error", err)
		return
	}

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	start := time.Now()
	slog.Info("session started", "session_id", sessionID)
	defer func() {
		slog.Info("session ended", "session_id", sessionID, "duration", time.Since(start))
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", sessionID, "error", err)
			return
		}
		if msgType != websocket.BinaryMessage {
			writeError(conn, trueerr.InvalidInput, "non-binary message")
			metrics.Errors.WithLabelValues(trueerr.InvalidInput.String()).Inc()
			return
		}

		req, err := wire.DecodeRequest(data)
		if err != nil {
			writeError(conn, trueerr.KindOf(err), err.Error())
			metrics.Errors.WithLabelValues(trueerr.KindOf(err).String()).Inc()
			return
		}

		if req.HasAudio() {
			metrics.AudioChunks.Inc()
		}

		stageStart := time.Now()
		resp := sess.Handle(req)
		if req.HasAudio() {
			metrics.StageDuration.WithLabelValues("recognize_and_match").Observe(time.Since(stageStart).Seconds())
		}

		if resp == nil {
			continue
		}
		if resp.IsError {
			metrics.Errors.WithLabelValues(trueerr.Kind(resp.ErrorCode).String()).Inc()
		}
		if err := writeResponse(conn, resp); err != nil {
			slog.Error("write response", "session_id", sessionID, "error", err)
			return
		}
		if sess.Closed() {
			return
		}
	}
}

// newSession builds a fresh Prompter/Session pair with its own
// windowing buffer, emission context, and token vectors — no state is
// shared with any other connection beyond the acoustic model itself.
func (h *Handler) newSession() (*session.Session, error) {
	rec, err := recognizer.New(h.cfg.Model, h.cfg.Window.ChunkLen, h.cfg.Window.LeftStride, h.cfg.Window.RightStride)
	if err != nil {
		return nil, err
	}

	vit := matcher.New(h.cfg.Model.BlankToken(), h.cfg.Match.MatchLength, h.cfg.Match.MinMatchWeight)
	online, err := matcher.NewOnline(vit, h.cfg.Match.CMax, h.cfg.Match.Overlap)
	if err != nil {
		return nil, err
	}

	var tokOpts []tokenizer.Option
	if h.cfg.SpaceToken != nil {
		tokOpts = append(tokOpts, tokenizer.WithSpaceToken(*h.cfg.SpaceToken))
	}
	tok := tokenizer.New(h.cfg.Phoneticizer, int32(h.cfg.Model.VocabSize()), tokOpts...)

	p := prompter.New(rec, tok, online,
		prompter.WithMinChunkTokens(h.cfg.MinChunkTokens),
		prompter.WithLookAheadTokens(h.cfg.LookAheadTokens),
	)

	return session.New(p, p, h.cfg.Model), nil
}

func writeResponse(conn *websocket.Conn, resp *wire.Response) error {
	return conn.WriteMessage(websocket.BinaryMessage, wire.EncodeResponse(resp))
}

func writeError(conn *websocket.Conn, kind trueerr.Kind, msg string) {
	resp := &wire.Response{IsError: true, ErrorCode: int32(kind), ErrorWhat: msg}
	if err := writeResponse(conn, resp); err != nil {
		slog.Error("write error response", "error", err)
	}
}
