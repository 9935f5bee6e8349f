package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/poller"
)

const pingInterval = 30 * time.Second

// Client represents a WebSocket subscriber of one generation
type Client struct {
	GenerationID string
	Conn         *websocket.Conn
	Send         chan []byte

	quit     chan struct{}
	quitOnce sync.Once
}

// NewClient creates a subscriber with a buffered send queue
func NewClient(generationID string, conn *websocket.Conn) *Client {
	return &Client{
		GenerationID: generationID,
		Conn:         conn,
		Send:         make(chan []byte, 256),
		quit:         make(chan struct{}),
	}
}

// Done is closed once the hub has dropped the client
func (c *Client) Done() <-chan struct{} {
	return c.quit
}

func (c *Client) close() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by generation ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to generation subscribers
	broadcast chan *BroadcastMessage

	// Closed when Run returns
	done     chan struct{}
	doneOnce sync.Once

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	GenerationID string
	Message      []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// Once it has returned, Register and Unregister close the client and
// broadcasts are dropped.
func (h *Hub) Run(ctx context.Context) {
	defer h.doneOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.clients {
				for client := range clients {
					client.close()
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.GenerationID] == nil {
				h.clients[client.GenerationID] = make(map[*Client]bool)
			}
			h.clients[client.GenerationID][client] = true
			h.mu.Unlock()
			log.Printf("[WS] Client subscribed to generation %s", client.GenerationID)

		case client := <-h.unregister:
			h.remove(client)
			log.Printf("[WS] Client unsubscribed from generation %s", client.GenerationID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.GenerationID] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					client.close()
					delete(h.clients[msg.GenerationID], client)
				}
			}
			if len(h.clients[msg.GenerationID]) == 0 {
				delete(h.clients, msg.GenerationID)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.GenerationID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.GenerationID)
		}
	}
	client.close()
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// Subscribers returns how many clients watch generationID
func (h *Hub) Subscribers(generationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[generationID])
}

// BroadcastProgress sends the latest poll snapshot to all generation subscribers
func (h *Hub) BroadcastProgress(generationID string, progress int, status model.GenerationStatus, clips []poller.StatusRecord) {
	h.send(generationID, model.WSProgressMessage{
		Type:         model.WSMessageTypeProgress,
		GenerationID: generationID,
		Progress:     progress,
		Status:       status,
		Clips:        clips,
	})
}

// BroadcastComplete sends a completion message to all generation subscribers
func (h *Hub) BroadcastComplete(generationID string, result interface{}) {
	h.send(generationID, model.WSCompleteMessage{
		Type:         model.WSMessageTypeComplete,
		GenerationID: generationID,
		Result:       result,
	})
}

// BroadcastError sends an error message to all generation subscribers
func (h *Hub) BroadcastError(generationID string, code, message string) {
	h.send(generationID, model.WSErrorMessage{
		Type:         model.WSMessageTypeError,
		GenerationID: generationID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) send(generationID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Failed to marshal message: %v", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{GenerationID: generationID, Message: data}:
	case <-h.done:
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, generationID string) {
	client := NewClient(generationID, c)

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-client.Done():
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			case message := <-client.Send:
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			case <-client.Done():
			}
		}
	}
}
