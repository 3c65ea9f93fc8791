package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verydemure/meditation-gateway/internal/meditation"
)

const writeTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	// Browser clients are served from a separate origin
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

// StreamEvent is a JSON message sent over the meditation stream
type StreamEvent struct {
	Event string           `json:"event"` // stage, done or error
	Stage meditation.Stage `json:"stage,omitempty"`
	ID    string           `json:"id,omitempty"`
	Path  string           `json:"path,omitempty"`
	Error string           `json:"error,omitempty"`
}

// handleStream runs one job per connection. The client sends a
// MeditationRequest; the server answers with stage events, one binary
// message holding the audio, and a final done or error event.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodyBytes)

	var mr MeditationRequest
	if err := conn.ReadJSON(&mr); err != nil {
		h.writeEvent(conn, StreamEvent{Event: "error", Error: "invalid request: " + err.Error()})
		return
	}

	req, err := h.toRequest(mr)
	if err != nil {
		h.writeEvent(conn, StreamEvent{Event: "error", Error: err.Error()})
		return
	}

	// Cancel the job if the client goes away
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	res, err := h.generator.Generate(ctx, req, func(stage meditation.Stage) {
		h.writeEvent(conn, StreamEvent{Event: "stage", Stage: stage})
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("Streamed meditation failed")
		h.writeEvent(conn, StreamEvent{Event: "error", Error: err.Error()})
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, res.Audio.Data); err != nil {
		h.logger.Warn().Err(err).Str("correlation_id", res.ID).Msg("Failed to send audio")
		return
	}
	h.writeEvent(conn, StreamEvent{Event: "done", ID: res.ID, Path: string(res.Path)})

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Handler) writeEvent(conn *websocket.Conn, ev StreamEvent) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug().Err(err).Str("event", ev.Event).Msg("Failed to write stream event")
	}
}
