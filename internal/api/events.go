package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anveshkr/stockscout/internal/pipeline/executor"
	"github.com/anveshkr/stockscout/pkg/logger"
)

const (
	eventBuffer  = 64
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// EventHub fans pipeline progress events out to WebSocket subscribers. A
// slow subscriber drops events instead of backpressuring the pipeline.
type EventHub struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan executor.Event]bool
}

// NewEventHub creates an event hub.
func NewEventHub(log *logger.Logger) *EventHub {
	return &EventHub{
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[chan executor.Event]bool),
	}
}

// Publish implements executor.EventFunc. Safe to call from stage goroutines.
func (h *EventHub) Publish(ev executor.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block the run.
		}
	}
}

// HandleWS upgrades the connection and streams events until the client
// disconnects.
// GET /ws/events
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	ch := make(chan executor.Event, eventBuffer)
	h.mu.Lock()
	h.clients[ch] = true
	h.mu.Unlock()

	h.logger.WithField("remote", r.RemoteAddr).Debug("Event subscriber connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		conn.Close()
	}()

	// Drain the read side so close and pong frames are processed.
	done := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
