// Command trueprompter runs the teleprompter-follower server: one
// WebSocket endpoint driving a forced-alignment session per connected
// client, backed by a shared acoustic model.
//
// Usage: trueprompter <port> <model_path> [<info_log> [<debug_log>]]
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/trueprompter-go/internal/acoustic"
	"github.com/hubenschmidt/trueprompter-go/internal/registry"
	"github.com/hubenschmidt/trueprompter-go/internal/tokenizer"
	"github.com/hubenschmidt/trueprompter-go/internal/ws"
)

const (
	// dryRunModelPath is the sentinel model_path that selects the
	// in-memory StubModel instead of loading an ONNX asset directory —
	// useful for smoke-testing the server without a real model on disk.
	dryRunModelPath = "dryrun"

	shutdownGrace = 5 * time.Second
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: trueprompter <port> <model_path> [<info_log> [<debug_log>]]")
		os.Exit(1)
	}
	port := os.Args[1]
	modelPath := os.Args[2]

	var infoLog, debugLog string
	if len(os.Args) > 3 {
		infoLog = os.Args[3]
	}
	if len(os.Args) > 4 {
		debugLog = os.Args[4]
	}

	logger, err := buildLogger(infoLog, debugLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configure logging:", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	cfg := loadConfig()
	cfg.httpAddr = ":" + port

	model, err := loadModel(modelPath, cfg)
	if err != nil {
		slog.Error("load acoustic model", "error", err)
		os.Exit(1)
	}
	if closer, ok := model.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	phon, err := loadPhoneticizer(cfg)
	if err != nil {
		slog.Error("load phoneticizer", "error", err)
		os.Exit(1)
	}

	handler := ws.NewHandler(ws.HandlerConfig{
		Model:           model,
		Phoneticizer:    phon,
		SpaceToken:      cfg.spaceToken,
		Window:          cfg.window,
		Match:           cfg.match,
		MinChunkTokens:  cfg.minChunkTokens,
		LookAheadTokens: cfg.lookAheadTokens,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, handler)

	srv := &http.Server{Addr: cfg.httpAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("trueprompter listening", "addr", cfg.httpAddr, "model_path", modelPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// loadModel builds the acoustic.Model backend selected by modelPath,
// dispatching through a registry so the dry-run stub and the real ONNX
// binding are selected the same way.
func loadModel(modelPath string, cfg config) (acoustic.Model, error) {
	backends := map[string]func() (acoustic.Model, error){
		dryRunModelPath: func() (acoustic.Model, error) {
			return acoustic.NewStubModel(16000, 320, 32, 0), nil
		},
		"onnx": func() (acoustic.Model, error) {
			opts := []acoustic.ONNXOption{}
			if cfg.onnxLibPath != "" {
				opts = append(opts, acoustic.WithSharedLibraryPath(cfg.onnxLibPath))
			}
			return acoustic.LoadONNXModel(modelPath, opts...)
		},
	}
	reg := registry.New(backends, "onnx")

	name := "onnx"
	if modelPath == dryRunModelPath {
		name = dryRunModelPath
	}
	ctor, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	return ctor()
}

func loadPhoneticizer(cfg config) (tokenizer.Phoneticizer, error) {
	if cfg.lexiconPath == "" {
		return tokenizer.NewStaticPhoneticizer(map[string][]int32{}), nil
	}
	return tokenizer.LoadLexicon(cfg.lexiconPath)
}

// buildLogger configures slog with a JSON handler writing to stdout
// plus, when given, the info log file and the debug log file (the two
// optional CLI log destinations). All destinations share one level:
// debug when a debug log path is given, info otherwise, so the info
// file and stdout also receive debug records in that case.
func buildLogger(infoLogPath, debugLogPath string) (*slog.Logger, error) {
	writers := []io.Writer{os.Stdout}
	level := slog.LevelInfo

	if infoLogPath != "" {
		f, err := os.OpenFile(infoLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open info log: %w", err)
		}
		writers = append(writers, f)
	}
	if debugLogPath != "" {
		f, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		writers = append(writers, f)
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
