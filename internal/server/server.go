// Package server wires the HTTP surface: the play websocket, the runner
// control plane, state endpoints, and metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahump20/Sandlot-Sluggers/internal/config"
	"github.com/ahump20/Sandlot-Sluggers/internal/dispatch"
	"github.com/ahump20/Sandlot-Sluggers/internal/runner"
	"github.com/ahump20/Sandlot-Sluggers/internal/serverstate"
	"github.com/ahump20/Sandlot-Sluggers/internal/stream"
)

// StateSnapshot is the payload of GET /api/state.
type StateSnapshot struct {
	Status   string `json:"status"`
	Draining bool   `json:"draining"`
	Runners  int    `json:"runners"`
	Sessions int    `json:"sessions"`
}

// New constructs the HTTP handler for the server.
func New(cfg config.ServerConfig, runners *runner.Registry, sessions *dispatch.Registry, seed stream.SeedProvider) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	snapshot := func() StateSnapshot {
		st := serverstate.Snapshot()
		return StateSnapshot{
			Status:   st.Status,
			Draining: st.Draining,
			Runners:  runners.Count(),
			Sessions: sessions.Count(),
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(snapshot())
		})
		ar.Get("/state/stream", stateStream(snapshot))
		ar.With(clientAuth(cfg.ClientKey)).Get("/play", stream.Handler(sessions, seed))
		ar.Get("/runners/connect", runner.WSHandler(runners, cfg.RunnerKey))
	})

	if cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// stateStream publishes state snapshots as Server-Sent Events.
func stateStream(snapshot func() StateSnapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				b, _ := json.Marshal(snapshot())
				_, _ = w.Write([]byte("data: "))
				_, _ = w.Write(b)
				_, _ = w.Write([]byte("\n\n"))
				flusher.Flush()
			}
		}
	}
}

// clientAuth gates player connections on a shared key, accepted either as a
// bearer token or a key query parameter (browser websocket clients cannot
// set headers).
func clientAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got == "" || got == r.Header.Get("Authorization") {
				got = r.URL.Query().Get("key")
			}
			if got != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
