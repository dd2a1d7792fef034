package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is a change notification pushed to connected viewers, typically
// after an ingest job updates a venue's data.
type Event struct {
	Type    string          `json:"type"`
	VenueID string          `json:"venue_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	EventVenueUpdated    = "venue_updated"
	EventBuildingUpdated = "building_updated"
	EventNetworkUpdated  = "network_updated"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected websocket client. Slow clients
// are dropped rather than blocking the broadcast.
type Hub struct {
	log        zerolog.Logger
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish broadcasts an event to all connected clients. Never blocks.
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("event marshal failed")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn().Str("type", ev.Type).Msg("event dropped, broadcast queue full")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 128),
	}
	h.hub.register <- c
	h.log.Debug().Str("client_id", c.id).Msg("events client connected")

	go c.writer()
	c.reader(h.hub)
}

func (c *client) reader(hub *Hub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		// Inbound messages are ignored; the read loop exists to detect
		// disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writer() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
