// Package api exposes the engine's debug/status HTTP surface: a health
// check, a run lookup, and an SSE stream of the event bus for a run in
// progress. Grounded on the teacher's internal/api.NewRouter (chi + cors
// wiring, one route tree) and internal/mcpgw.Gateway's channel-based SSE
// subscribe/unsubscribe/broadcast pattern.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/aptcat/engine/internal/eventbus"
	"github.com/aptcat/engine/internal/sink"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the debug/status HTTP surface backed by results and
// the live event bus of the run currently in progress, if any.
func NewRouter(results *sink.Memory, bus *eventbus.Bus) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/{evaluationID}", getRunHandler(results))
		r.Get("/{evaluationID}/events", getRunEventsHandler(bus))
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "aptcat-engine",
	})
}

func getRunHandler(results *sink.Memory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "evaluationID")
		run, ok := results.Evaluation(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "evaluation not found"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}
