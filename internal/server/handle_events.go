package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mallhunt/treasurehunt/internal/telemetry"
)

// handleEvents streams the player's progression events over SSE. Browsers
// cannot set headers on EventSource, so the token may come as ?token=.
func handleEvents(broker *Broker, metrics *telemetry.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		ch := broker.Subscribe(playerID)
		defer broker.Unsubscribe(playerID, ch)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		metrics.ClientConnected()
		defer metrics.ClientDisconnected()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
