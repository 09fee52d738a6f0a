package hub

import (
	"context"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/client"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/sirupsen/logrus"
)

// VisibilityListener is told when a game gains its first visible viewer or
// loses its last one
type VisibilityListener interface {
	SetGameForeground(gameID string, foreground bool)
}

// ViewerMetrics receives the connected viewer count
type ViewerMetrics interface {
	SetViewers(n int)
}

// Hub maintains the set of active viewers, fans scorecard messages out to the
// viewers of each game and aggregates their visibility per game
type Hub struct {
	// Registered clients
	clients   map[*client.Client]bool
	clientsMu sync.RWMutex

	// Outbound scorecard messages
	broadcast chan models.ServerMessage

	// Register requests from clients
	register chan *client.Client

	// Unregister requests from clients
	unregister chan *client.Client

	// Subscription or visibility changes reported by clients
	viewChanged chan *client.Client

	// Games with at least one visible viewer, owned by Run
	foreground map[string]bool

	listener VisibilityListener
	metrics  ViewerMetrics
	log      logrus.FieldLogger
	done     chan struct{}

	// Metrics
	totalConnections int64
	totalMessages    int64
	metricsMu        sync.Mutex
}

// NewHub creates a new Hub instance
func NewHub(listener VisibilityListener, metrics ViewerMetrics, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients:     make(map[*client.Client]bool),
		broadcast:   make(chan models.ServerMessage, 1000),
		register:    make(chan *client.Client),
		unregister:  make(chan *client.Client),
		viewChanged: make(chan *client.Client, 64),
		foreground:  make(map[string]bool),
		listener:    listener,
		metrics:     metrics,
		log:         log.WithField("component", "hub"),
		done:        make(chan struct{}),
	}
}

// SetListener replaces the visibility listener. Call before Run.
func (h *Hub) SetListener(listener VisibilityListener) {
	h.listener = listener
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Hub started")
	defer close(h.done)

	// Start metrics reporter
	go h.reportMetrics(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case <-h.viewChanged:
			h.recomputeVisibility()

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(c *client.Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *client.Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ViewChanged is called by a client after its game or visibility changed
func (h *Hub) ViewChanged(c *client.Client) {
	select {
	case h.viewChanged <- c:
	case <-h.done:
	}
}

// Broadcast queues a message for the viewers of msg.GameID
func (h *Hub) Broadcast(msg models.ServerMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Broadcast buffer full - drop message
		h.log.WithField("game_id", msg.GameID).Warn("Broadcast buffer full, dropping message")
	}
}

// SnapshotApplied sends an applied snapshot to the game's viewers
func (h *Hub) SnapshotApplied(_ context.Context, gameID string, snapshot *models.GameSnapshot) error {
	h.Broadcast(models.ServerMessage{
		Type:      models.MessageTypeScorecardUpdate,
		GameID:    gameID,
		Payload:   snapshot,
		Timestamp: time.Now(),
	})
	return nil
}

// SessionError sends a non-blocking error indicator to the game's viewers
func (h *Hub) SessionError(_ context.Context, gameID string, message string) error {
	h.Broadcast(models.ServerMessage{
		Type:      models.MessageTypeScorecardError,
		GameID:    gameID,
		Payload:   models.ScorecardError{Message: message},
		Timestamp: time.Now(),
	})
	return nil
}

// registerClient adds a client to the active clients map
func (h *Hub) registerClient(c *client.Client) {
	h.clientsMu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.incrementTotalConnections()
	h.reportViewers(total)
	h.log.WithFields(logrus.Fields{"client_id": c.ID, "total": total}).Info("Client connected")

	h.recomputeVisibility()
}

// unregisterClient removes a client from the active clients map
func (h *Hub) unregisterClient(c *client.Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.Send)
	}
	total := len(h.clients)
	h.clientsMu.Unlock()

	if !ok {
		return
	}
	h.reportViewers(total)
	h.log.WithFields(logrus.Fields{"client_id": c.ID, "total": total}).Info("Client disconnected")

	h.recomputeVisibility()
}

// recomputeVisibility derives the foreground set from every registered
// client and notifies the listener of each game that flipped
func (h *Hub) recomputeVisibility() {
	h.clientsMu.RLock()
	next := make(map[string]bool)
	for c := range h.clients {
		if gameID, visible := c.View(); gameID != "" && visible {
			next[gameID] = true
		}
	}
	h.clientsMu.RUnlock()

	prev := h.foreground
	h.foreground = next

	if h.listener == nil {
		return
	}
	for gameID := range prev {
		if !next[gameID] {
			h.listener.SetGameForeground(gameID, false)
		}
	}
	for gameID := range next {
		if !prev[gameID] {
			h.listener.SetGameForeground(gameID, true)
		}
	}
}

// broadcastMessage sends a message to every client watching its game
func (h *Hub) broadcastMessage(msg models.ServerMessage) {
	h.clientsMu.RLock()
	clients := make([]*client.Client, 0, len(h.clients))
	for c := range h.clients {
		if c.Watching(msg.GameID) {
			clients = append(clients, c)
		}
	}
	h.clientsMu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.TrySend(msg) {
			sent++
			continue
		}
		// Client buffer full - they're too slow, disconnect them
		h.log.WithField("client_id", c.ID).Warn("Client buffer full, disconnecting")
		go h.Unregister(c)
	}

	if sent > 0 {
		h.incrementTotalMessages()
	}
}

// GetMetrics returns hub metrics
func (h *Hub) GetMetrics() map[string]interface{} {
	h.clientsMu.RLock()
	activeClients := len(h.clients)
	h.clientsMu.RUnlock()

	h.metricsMu.Lock()
	totalConnections := h.totalConnections
	totalMessages := h.totalMessages
	h.metricsMu.Unlock()

	return map[string]interface{}{
		"active_clients":     activeClients,
		"total_connections":  totalConnections,
		"total_messages":     totalMessages,
		"broadcast_capacity": cap(h.broadcast),
		"broadcast_usage":    len(h.broadcast),
	}
}

// GetClientCount returns the number of active clients
func (h *Hub) GetClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// shutdown closes all client connections
func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.log.WithField("active_clients", len(h.clients)).Info("Shutting down hub")

	for c := range h.clients {
		close(c.Send)
		delete(h.clients, c)
	}
}

// reportMetrics periodically logs hub metrics
func (h *Hub) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.log.WithFields(logrus.Fields(h.GetMetrics())).Info("Hub metrics")
		}
	}
}

func (h *Hub) reportViewers(n int) {
	if h.metrics != nil {
		h.metrics.SetViewers(n)
	}
}

// incrementTotalConnections safely increments the total connections counter
func (h *Hub) incrementTotalConnections() {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalConnections++
}

// incrementTotalMessages safely increments the total messages counter
func (h *Hub) incrementTotalMessages() {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalMessages++
}
