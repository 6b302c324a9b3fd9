package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/satriahrh/fluent/internal/orchestrator"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HubConfig tunes every session the hub creates
type HubConfig struct {
	Session         orchestrator.Config
	CaptureTimeout  time.Duration
	PlaybackTimeout time.Duration
	MaxCaptureBytes int
	// ControlRate limits conversation commands per connection.
	ControlRate  rate.Limit
	ControlBurst int
	Clock        clock.Clock
}

func (c *HubConfig) setDefaults() {
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 10 * time.Second
	}
	if c.PlaybackTimeout <= 0 {
		c.PlaybackTimeout = 2 * time.Minute
	}
	if c.MaxCaptureBytes <= 0 {
		c.MaxCaptureBytes = 10 * 1024 * 1024
	}
	if c.ControlRate <= 0 {
		c.ControlRate = 5
	}
	if c.ControlBurst <= 0 {
		c.ControlBurst = 10
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Hub maintains the set of active sessions
type Hub struct {
	// Registered clients by session id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	pipeline  orchestrator.TurnRunner
	config    HubConfig
	validator *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. Every session runs its turns through pipeline.
func NewHub(pipeline orchestrator.TurnRunner, config HubConfig, logger *zap.Logger) *Hub {
	config.setDefaults()
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		pipeline:   pipeline,
		config:     config,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop. Every session is closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client.sessionID)
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))

		case <-ctx.Done():
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[string]*Client)
			h.mu.Unlock()

			for _, client := range clients {
				client.Close()
			}
			h.logger.Info("Hub stopped", zap.Int("closedSessions", len(clients)))
			return
		}
	}
}

// Count is the number of connected sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client returns the session with id
func (h *Hub) Client(sessionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sessionID]
	return c, ok
}

// idleClients returns sessions without traffic since before cutoff that are
// not in the middle of a turn.
func (h *Hub) idleClients(cutoff time.Time) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var idle []*Client
	for _, c := range h.clients {
		if c.lastSeen().Before(cutoff) && c.idle() {
			idle = append(idle, c)
		}
	}
	return idle
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleWebSocket upgrades the request and starts a new session on it
func HandleWebSocket(hub *Hub, c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client, err := newClient(hub, conn)
	if err != nil {
		hub.logger.Error("Failed to create session", zap.Error(err))
		conn.Close()
		return nil
	}

	if !hub.add(client) {
		client.Close()
		conn.Close()
		return nil
	}

	client.greet()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.commandLoop()
	go client.readPump()

	return nil
}
