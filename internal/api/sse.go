package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aptcat/engine/internal/eventbus"
	"github.com/go-chi/chi/v5"
)

// getRunEventsHandler streams every event published on bus as it happens,
// in the standard SSE format, until the client disconnects. Grounded on
// mcpgw.Gateway's Subscribe/Unsubscribe/Broadcast triple, collapsed to one
// handler since the debug surface has a single global stream rather than
// per-kitchen ones.
func getRunEventsHandler(bus *eventbus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// evaluationID is accepted for URL symmetry with GET /runs/{id};
		// the bus is process-global and has only one run in flight at a
		// time, so every subscriber sees the same stream regardless of id.
		_ = chi.URLParam(r, "evaluationID")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		events := make(chan eventbus.Event, 32)
		unsubscribe := bus.SubscribeAll(func(ev eventbus.Event) {
			select {
			case events <- ev:
			default:
				// drop if the client can't keep up
			}
		})
		defer unsubscribe()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				data, err := json.Marshal(ev.Payload)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\n", ev.Type)
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
