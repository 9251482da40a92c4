package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is one message pushed to /events subscribers.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventBroadcaster fans events out to connected websocket clients. A
// client that cannot keep up is dropped rather than allowed to block
// the rest. Each connection carries its own write lock: concurrent
// dispatches may publish at once, and gorilla/websocket permits only
// one concurrent writer per connection.
type EventBroadcaster struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
	logger  zerolog.Logger
}

// NewEventBroadcaster creates an event broadcaster.
func NewEventBroadcaster(logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		logger:  logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Add registers a client connection.
func (b *EventBroadcaster) Add(conn *websocket.Conn) {
	b.mu.Lock()
	b.clients[conn] = &sync.Mutex{}
	count := len(b.clients)
	b.mu.Unlock()
	b.logger.Debug().Int("clients", count).Msg("Event subscriber connected")
}

// Remove unregisters a client connection.
func (b *EventBroadcaster) Remove(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	conn.Close()
}

// Publish sends an event to all subscribers.
func (b *EventBroadcaster) Publish(eventType string, data interface{}) {
	event := Event{Type: eventType, Timestamp: time.Now(), Data: data}

	b.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(b.clients))
	for conn, wmu := range b.clients {
		conns[conn] = wmu
	}
	b.mu.Unlock()

	for conn, wmu := range conns {
		wmu.Lock()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := conn.WriteJSON(event)
		wmu.Unlock()
		if err != nil {
			b.logger.Debug().Err(err).Msg("Dropping slow event subscriber")
			b.Remove(conn)
		}
	}
}

// Count returns the number of connected subscribers.
func (b *EventBroadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// CloseAll disconnects every subscriber.
func (b *EventBroadcaster) CloseAll() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.clients = make(map[*websocket.Conn]*sync.Mutex)
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
