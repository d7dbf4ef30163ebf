package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/mallhunt/treasurehunt/internal/telemetry"
)

// handleWSEvents mirrors the SSE stream over a WebSocket for clients
// behind proxies that buffer event streams. Client messages are ignored.
func handleWSEvents(logger *slog.Logger, broker *Broker, metrics *telemetry.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)

		ch := broker.Subscribe(playerID)
		defer broker.Unsubscribe(playerID, ch)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Hour)
		defer cancel()
		ctx = conn.CloseRead(ctx)

		metrics.ClientConnected()
		defer metrics.ClientDisconnected()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("websocket closed", "player_id", playerID, "error", ctx.Err())
				return
			case data := <-ch:
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			case <-ping.C:
				if err := conn.Ping(ctx); err != nil {
					logger.Debug("websocket ping failed", "error", err)
					return
				}
			}
		}
	}
}
