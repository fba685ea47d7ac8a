package controller

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"raiseflow/worker"
)

const progressWriteTimeout = 5 * time.Second

type progressMessage struct {
	Type   string              `json:"type"`
	Result *worker.BatchResult `json:"result"`
}

// ProgressHub fans scheduler pass summaries out to websocket subscribers.
type ProgressHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     *logrus.Entry
}

func NewProgressHub(log *logrus.Entry) *ProgressHub {
	return &ProgressHub{
		clients: make(map[*websocket.Conn]struct{}),
		log:     log.WithField("component", "progress_hub"),
	}
}

// Publish sends a pass summary to every subscriber, dropping the ones that
// cannot keep up.
func (h *ProgressHub) Publish(result *worker.BatchResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := progressMessage{Type: "pass", Result: result}
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			h.log.WithError(err).Debug("Dropping progress subscriber")
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *ProgressHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Upgrade rejects plain HTTP requests to the progress endpoint.
func (h *ProgressHub) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle keeps a subscriber registered until it disconnects.
func (h *ProgressHub) Handle(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		_ = c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
