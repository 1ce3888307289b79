package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"homeconnect/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8192
	sendBufferSize = 256
)

// Client is one WebSocket connection bound to an authenticated user. A
// user with several tabs open holds several clients in the same room.
//
// Send is never closed; shutdown is signalled through done so that
// concurrent senders can never hit a closed channel. Only the manager's
// removeClient closes done, under the manager mutex.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	done chan struct{}
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Manager keeps the per-user rooms: user id to the set of that user's
// open connections. The room is the only addressing unit; pushes target
// a user, never an individual connection.
type Manager struct {
	rooms      map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex

	// done closes when the registration loop stops, releasing anyone
	// blocked on Register/Unregister during shutdown.
	done chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Start runs the registration loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if m.rooms[client.UserID] == nil {
					m.rooms[client.UserID] = make(map[*Client]bool)
				}
				m.rooms[client.UserID][client] = true
				m.mutex.Unlock()
				logger.Info("WebSocket: client joined room %s", client.UserID)

			case client := <-m.Unregister:
				m.removeClient(client)
				logger.Info("WebSocket: client left room %s", client.UserID)

			case <-ctx.Done():
				close(m.done)
				return
			}
		}
	}()
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, ok := m.rooms[client.UserID]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.done)
	if len(room) == 0 {
		delete(m.rooms, client.UserID)
	}
}

// SendToUser delivers a payload to every open connection in the user's
// room. A missing room is a silent drop; the durable store covers
// recovery. Slow consumers are disconnected rather than blocking the
// fan-out.
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.mutex.RLock()
	room := m.rooms[userID]
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	m.mutex.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
			logger.Warn("WebSocket: send buffer full for room %s, dropping connection", userID)
			m.removeClient(client)
		}
	}
}

// RoomSize reports how many connections a user currently holds open.
func (m *Manager) RoomSize(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[userID])
}

// ReadPump reads frames from the connection and hands them to the
// protocol router. Runs until the connection drops.
func (c *Client) ReadPump(m *Manager, r *Router) {
	defer func() {
		select {
		case m.Unregister <- c:
		case <-m.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket: read error for room %s: %v", c.UserID, err)
			}
			break
		}
		r.HandleFrame(c, frame)
	}
}

// WritePump drains the send channel onto the connection and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("WebSocket: write error for room %s: %v", c.UserID, err)
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
