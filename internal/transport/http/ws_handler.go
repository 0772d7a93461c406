package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-publisher/internal/domain"
)

const writeWait = 10 * time.Second

type WSHandler struct {
	events   EventSource
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(events EventSource, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		events: events,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string          `json:"type"`
	Payload domain.RunEvent `json:"payload"`
}

// ServeWS streams run events to the client until it disconnects. An optional
// topic query parameter restricts the stream to that topic.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.events.Subscribe()
	defer cancel()

	// Inbound messages are ignored; reading surfaces the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if topic != "" && ev.Topic != topic {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage{Type: "run", Payload: ev}); err != nil {
				h.logger.Debug("ws write error", "err", err)
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
