package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-engine/internal/models"
)

// EventRealTime carries every fresh decision
const EventRealTime = "real-time-stream"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fraud_stream_clients",
		Help: "Connected live stream subscribers.",
	})
	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraud_stream_dropped_messages_total",
		Help: "Messages dropped for slow subscribers or a full broadcast queue.",
	})
)

// Envelope is the frame sent to subscribers
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans decisions out to websocket subscribers. Slow subscribers lose messages
// rather than holding up the broadcaster.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int32
	upgrader   websocket.Upgrader
}

// NewHub creates a hub; call Run to start it
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is done, then disconnects everyone
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			log.Debug().Str("client_id", c.id).Msg("Stream subscriber connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.setCount()
				log.Debug().Str("client_id", c.id).Msg("Stream subscriber disconnected")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					droppedMessages.Inc()
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount()
			return
		}
	}
}

func (h *Hub) setCount() {
	h.count.Store(int32(len(h.clients)))
	connectedClients.Set(float64(len(h.clients)))
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// ServeWS upgrades the request and registers the connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// Broadcast queues one event for every subscriber without blocking
func (h *Hub) Broadcast(event string, data interface{}) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	select {
	case h.broadcast <- payload:
	default:
		droppedMessages.Inc()
	}
	return nil
}

// HandleDecision broadcasts the enriched decision; it has the pipeline sink signature
func (h *Hub) HandleDecision(_ context.Context, tx *models.Transaction, d *models.Decision) {
	if err := h.Broadcast(EventRealTime, models.NewDetectionResponse(tx, d)); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("Decision not broadcast")
	}
}

// readPump only services control frames; subscribers do not send data
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
