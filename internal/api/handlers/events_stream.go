package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/automakerhq/automaker/internal/events"
)

// pingInterval is how often keep-alive messages are sent on idle streams.
const pingInterval = 15 * time.Second

// EventStreamHandler streams deployment events to clients over SSE or
// WebSocket.
type EventStreamHandler struct {
	broker   *events.Broker
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventStreamHandler creates a new event stream handler.
func NewEventStreamHandler(broker *events.Broker, logger *slog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The server is a local control plane; the UI connects from
			// arbitrary origins (Electron shell, dev servers).
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream handles GET /v1/deployment/events - streams deployment events in
// real time via Server-Sent Events. An optional deployment_id query
// parameter restricts the stream to one deployment.
func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternalError(w, "Streaming not supported")
		return
	}

	deploymentID := r.URL.Query().Get("deployment_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	sub := h.broker.Subscribe(deploymentID)
	defer h.broker.Unsubscribe(sub)

	h.logger.Info("event stream started", "deployment_id", deploymentID)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event stream closed by client", "deployment_id", deploymentID)
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-sub.Ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// StreamWS handles GET /v1/deployment/events/ws - streams deployment events
// over a WebSocket connection.
func (h *EventStreamHandler) StreamWS(w http.ResponseWriter, r *http.Request) {
	deploymentID := r.URL.Query().Get("deployment_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.broker.Subscribe(deploymentID)
	defer h.broker.Unsubscribe(sub)

	h.logger.Info("websocket event stream started", "deployment_id", deploymentID)

	// Drain client frames so close handshakes are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, open := <-sub.Ch:
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
