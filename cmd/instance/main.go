// Instance is a minimal backend for exercising the balancer locally.
// It serves /health for the health checker and /process for dispatched work.
//
// Usage:
//
//	go run ./cmd/instance -port 5001
//
// Every /process response carries a fresh request id.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
)

type processResponse struct {
	Message   string `json:"message"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Instance string `json:"instance"`
}

func main() {
	port := flag.Int("port", 5001, "port to listen on")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	name := net.JoinHostPort(hostname, strconv.Itoa(*port))

	mux := newMux(name, log)

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting instance", slog.String("addr", addr), slog.String("instance", name))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func newMux(name string, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, healthResponse{Status: "ok", Instance: name})
	})
	mux.HandleFunc("/process", func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		log.Info("processing request",
			slog.String("method", r.Method),
			slog.String("from", r.RemoteAddr),
			slog.String("request_id", requestID),
		)
		writeJSON(w, log, processResponse{
			Message:   "Processed by instance",
			Instance:  name,
			RequestID: requestID,
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response", slog.Any("err", err))
	}
}
