package hub

import (
	"sync"

	"go.uber.org/zap"
)

type ClientInterface interface {
	ID() string
	// SendBytes queues b for delivery and reports whether it was queued.
	SendBytes(b []byte) bool
	Close()
}

// Hub is the fan-out set of open connections.
type Hub struct {
	clients map[ClientInterface]struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[ClientInterface]struct{}),
		logger:  logger,
	}
}

// Register queues initial (if any) and adds the client in one step, so any
// Broadcast that sees the client is delivered after initial.
func (h *Hub) Register(client ClientInterface, initial []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if initial != nil {
		client.SendBytes(initial)
	}
	h.clients[client] = struct{}{}

	h.logger.Info("Client registered", zap.String("client", client.ID()), zap.Int("clients", len(h.clients)))
}

// Unregister removes and closes the client. Safe to call more than once.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	remaining := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	client.Close()
	h.logger.Info("Client unregistered", zap.String("client", client.ID()), zap.Int("clients", remaining))
}

// Broadcast sends payload to every client registered when the call starts
// and returns how many clients it was sent to. Sends happen outside the lock.
func (h *Hub) Broadcast(payload []byte) int {
	targets := h.snapshot()

	dropped := 0
	for _, c := range targets {
		if !c.SendBytes(payload) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("Dropped broadcast for slow clients", zap.Int("dropped", dropped), zap.Int("clients", len(targets)))
	}
	return len(targets)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	targets := make([]ClientInterface, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[ClientInterface]struct{})
	h.mu.Unlock()

	for _, c := range targets {
		c.Close()
	}
}

func (h *Hub) snapshot() []ClientInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ClientInterface, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}
