package homeconnect

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Live-channel event names, matching the server protocol.
const (
	EventReceiveMessage = "receiveMessage"
	EventMessageSent    = "messageSent"
	EventMessageError   = "messageError"
	EventUserTyping     = "userTyping"

	// EventReconnected is synthesized locally after the socket
	// re-establishes. Pushes may have been missed while offline, so the
	// consumer should refetch history; the REST fetch is authoritative.
	EventReconnected = "reconnected"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// Event is one frame received from (or synthesized by) the socket.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Socket is the client side of the live delivery channel. It maintains
// one connection, reconnecting with exponential backoff when it drops.
type Socket struct {
	dialURL string
	dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// DialSocket opens the live channel. Identity is carried by the token in
// the handshake; no join call is needed.
func (c *Client) DialSocket(ctx context.Context) (*Socket, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1)
	dialURL := wsURL + "/ws?token=" + url.QueryEscape(c.Token)

	s := &Socket{
		dialURL: dialURL,
		dialer:  websocket.DefaultDialer,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}

	conn, _, err := s.dialer.DialContext(ctx, s.dialURL, nil)
	if err != nil {
		return nil, err
	}
	s.conn = conn

	go s.readLoop(ctx)
	return s, nil
}

// Events delivers server pushes and local reconnect notices. The channel
// closes when the socket is closed for good.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// SendMessage submits a message over the channel. tempID is echoed back
// in the messageSent/messageError ack for optimistic-echo reconciliation.
func (s *Socket) SendMessage(receiverID, body, listingID, tempID string) error {
	return s.writeFrame("sendMessage", map[string]string{
		"receiverId": receiverID,
		"message":    body,
		"listingId":  listingID,
		"tempId":     tempID,
	})
}

// Typing relays an ephemeral typing signal. Best effort.
func (s *Socket) Typing(receiverID string, isTyping bool) error {
	return s.writeFrame("typing", map[string]interface{}{
		"receiverId": receiverID,
		"isTyping":   isTyping,
	})
}

func (s *Socket) writeFrame(event string, data interface{}) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(Event{Event: event, Data: encoded})
}

// Close tears down the connection and stops reconnecting.
func (s *Socket) Close() error {
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *Socket) readLoop(ctx context.Context) {
	defer close(s.events)

	for {
		var ev Event
		err := s.conn.ReadJSON(&ev)
		if err == nil {
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
			continue
		}

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !s.reconnect(ctx) {
			return
		}
		select {
		case s.events <- Event{Event: EventReconnected}:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconnect retries the dial with exponential backoff until it succeeds
// or the socket is closed.
func (s *Socket) reconnect(ctx context.Context) bool {
	for attempt := 0; ; attempt++ {
		select {
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(nextBackoff(attempt)):
		}

		conn, _, err := s.dialer.DialContext(ctx, s.dialURL, nil)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		return true
	}
}

// nextBackoff doubles from backoffBase up to backoffCap, with up to 25%
// jitter so reconnecting clients spread out.
func nextBackoff(attempt int) time.Duration {
	d := backoffBase << uint(attempt)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}
