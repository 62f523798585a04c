package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/trueprompter-go/internal/ws"
)

// registerRoutes wires the WebSocket session endpoint plus the
// ambient health/metrics endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, handler *ws.Handler) {
	mux.Handle("/ws/prompter", handler)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
