package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"shieldpool/internal/metrics"
	"shieldpool/internal/pool"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Connection is one websocket client
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// PushMessage is the frame sent to clients
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	Data      interface{} `json:"data"`
}

// ClientMessage is a frame received from clients
type ClientMessage struct {
	Action string           `json:"action"` // subscribe | unsubscribe | ping
	Kinds  []pool.EventKind `json:"kinds"`
}

// WebSocketPushService fans committed pool events out to websocket
// clients. A client whose send buffer is full is disconnected rather
// than allowed to stall delivery.
type WebSocketPushService struct {
	upgrader      websocket.Upgrader
	subscriptions *WebSocketSubscriptionManager
	logger        logrus.FieldLogger

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewWebSocketPushService creates the push service. allowedOrigins empty
// accepts every origin.
func NewWebSocketPushService(logger logrus.FieldLogger, allowedOrigins []string) *WebSocketPushService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketPushService{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 || origins["*"] {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
		subscriptions: NewWebSocketSubscriptionManager(),
		logger:        logger.WithField("component", "websocket"),
		connections:   make(map[string]*Connection),
	}
}

// Name identifies the sink in metrics and logs.
func (s *WebSocketPushService) Name() string {
	return "websocket"
}

// Publish broadcasts ev to every subscribed client. It never fails on a
// slow client; live push carries no delivery guarantee.
func (s *WebSocketPushService) Publish(_ context.Context, ev pool.Event) error {
	data, err := json.Marshal(PushMessage{
		Type:      "pool_event",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: ev.ID,
		Data:      ev,
	})
	if err != nil {
		return err
	}

	var slow []*Connection
	s.mu.RLock()
	for _, conn := range s.connections {
		if !s.subscriptions.Wants(conn.ID, ev.Kind) {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range slow {
		s.logger.WithField("conn_id", conn.ID).Warn("Dropping slow websocket client")
		s.unregister(conn)
	}
	return nil
}

// ActiveConnections returns the number of connected clients
func (s *WebSocketPushService) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// HandleWebSocket upgrades the request and serves the connection until
// the client goes away.
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	conn := &Connection{
		ID:   uuid.NewString(),
		Conn: ws,
		Send: make(chan []byte, sendBuffer),
	}
	s.register(conn)
	s.reply(conn, "connection_established", map[string]interface{}{"connection_id": conn.ID})

	go s.writeLoop(conn)
	s.readLoop(conn)
}

func (s *WebSocketPushService) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn.ID] = conn
	n := len(s.connections)
	s.mu.Unlock()
	s.subscriptions.RegisterClient(conn.ID)
	metrics.WebSocketClients.Set(float64(n))
	s.logger.WithField("conn_id", conn.ID).Debug("WebSocket connection registered")
}

// unregister is idempotent; only the first call closes Send.
func (s *WebSocketPushService) unregister(conn *Connection) {
	s.mu.Lock()
	_, ok := s.connections[conn.ID]
	delete(s.connections, conn.ID)
	n := len(s.connections)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.subscriptions.UnregisterClient(conn.ID)
	close(conn.Send)
	metrics.WebSocketClients.Set(float64(n))
	s.logger.WithField("conn_id", conn.ID).Debug("WebSocket connection unregistered")
}

func (s *WebSocketPushService) reply(conn *Connection, msgType string, data interface{}) {
	payload, err := json.Marshal(PushMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: uuid.NewString(),
		Data:      data,
	})
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.connections[conn.ID]; !ok {
		return
	}
	select {
	case conn.Send <- payload:
	default:
	}
}

func (s *WebSocketPushService) writeLoop(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.WithError(err).WithField("conn_id", conn.ID).Debug("Write message failed")
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) readLoop(conn *Connection) {
	defer func() {
		s.unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(4096)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.WithError(err).WithField("conn_id", conn.ID).Debug("WebSocket read error")
			}
			return
		}
		s.handleClientMessage(conn, &msg)
	}
}

func (s *WebSocketPushService) handleClientMessage(conn *Connection, msg *ClientMessage) {
	var err error
	switch msg.Action {
	case "subscribe":
		err = s.subscriptions.Subscribe(conn.ID, msg.Kinds...)
	case "unsubscribe":
		err = s.subscriptions.Unsubscribe(conn.ID, msg.Kinds...)
	case "ping":
		s.reply(conn, "pong", nil)
		return
	default:
		err = NewError("unknown action " + msg.Action)
	}
	if err != nil {
		s.reply(conn, "error", map[string]string{"error": err.Error()})
		return
	}
	s.reply(conn, msg.Action+"d", map[string]interface{}{"kinds": msg.Kinds})
}
