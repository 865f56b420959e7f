package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"scrapmetal_backend/models"
)

const (
	MaxStreamClients      = 200
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
)

// Stream message types
const (
	MessageSnapshot = "snapshot" // cached prices sent on connect
	MessagePrices   = "prices"   // a refresh cycle completed
)

// StreamMessage is the envelope written to every client
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// PriceStream pushes completed price batches to connected app clients
type PriceStream struct {
	clients    map[*streamClient]bool
	broadcast  chan StreamMessage
	register   chan *streamClient
	unregister chan *streamClient
	shutdown   chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	current    func() []models.PriceRecord
}

// NewPriceStream starts the hub; current supplies the snapshot sent on connect
func NewPriceStream(current func() []models.PriceRecord) *PriceStream {
	s := &PriceStream{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan StreamMessage, 64),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		current: current,
	}

	go s.run()
	return s
}

// PublishCycle implements the scheduler's publisher hook
func (s *PriceStream) PublishCycle(result models.CycleResult) {
	s.Broadcast(MessagePrices, result)
}

// Broadcast queues a message for every client; it never blocks a refresh cycle
func (s *PriceStream) Broadcast(msgType string, data interface{}) {
	msg := StreamMessage{
		Type: msgType,
		Data: data,
		Time: time.Now().Format(time.RFC3339),
	}
	select {
	case s.broadcast <- msg:
	case <-s.shutdown:
	default:
		log.WithField("type", msgType).Warn("Price stream backlog full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (s *PriceStream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes every client connection and stops the hub
func (s *PriceStream) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.shutdown)

		s.mu.Lock()
		for client := range s.clients {
			close(client.send)
			client.conn.Close()
		}
		s.clients = make(map[*streamClient]bool)
		s.mu.Unlock()

		log.Info("Price stream shutdown complete")
	})
}

func (s *PriceStream) run() {
	for {
		select {
		case <-s.shutdown:
			return

		case client := <-s.register:
			s.mu.Lock()
			if len(s.clients) >= MaxStreamClients {
				s.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				log.WithField("max", MaxStreamClients).Warn("Price stream client rejected: at capacity")
				continue
			}
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			log.WithField("clients", count).Debug("Price stream client connected")

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			count := len(s.clients)
			s.mu.Unlock()
			log.WithField("clients", count).Debug("Price stream client disconnected")

		case message := <-s.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				log.WithError(err).Error("Failed to marshal price stream message")
				continue
			}

			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- data:
				default:
					// slow consumer
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the request and registers the client
func (s *PriceStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ClientCount() >= MaxStreamClients {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Price stream upgrade failed")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, 16),
	}

	if s.current != nil {
		snapshot, err := json.Marshal(StreamMessage{
			Type: MessageSnapshot,
			Data: s.current(),
			Time: time.Now().Format(time.RFC3339),
		})
		if err == nil {
			client.send <- snapshot
		}
	}

	select {
	case s.register <- client:
	case <-s.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s)
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames; the stream is server-push
func (c *streamClient) readPump(s *PriceStream) {
	defer func() {
		select {
		case s.unregister <- c:
		case <-s.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("Price stream read error")
			}
			return
		}
	}
}
