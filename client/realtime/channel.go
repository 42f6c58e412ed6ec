// Package realtime maintains the socket connection to the chat server and
// exposes emit/subscribe primitives over named JSON events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// ErrClosed is returned by Emit after the channel has been torn down.
var ErrClosed = errors.New("channel is closed")

// Handler consumes the raw payload of one inbound event. Handlers run
// serially on the channel's read loop; they must not block.
type Handler = func(data json.RawMessage)

// Envelope is the wire frame: an event name and its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Channel is a live connection to the chat server. It exists only while a
// valid session exists; the owner tears it down when the session changes.
type Channel struct {
	conn   *websocket.Conn
	logger *log.Logger

	mu       sync.Mutex
	handlers map[string][]Handler

	send chan []byte
	done chan struct{}
	once sync.Once
}

// Dial connects to the server's socket endpoint, authenticating with the
// given token. The caller owns the returned channel and must Close it.
func Dial(ctx context.Context, rawURL, token string, logger *log.Logger) (*Channel, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", rawURL, err)
	}
	ch := &Channel{
		conn:     conn,
		logger:   logger,
		handlers: make(map[string][]Handler),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	go ch.readLoop()
	go ch.writeLoop()
	return ch, nil
}

// Subscribe registers a handler for the named event. All handlers are
// dropped on Close; there is no individual unsubscribe.
func (c *Channel) Subscribe(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Emit queues an outbound intent. Delivery is fire-and-forget.
func (c *Channel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", event, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Done is closed when the channel becomes unusable, whether by Close or by
// a transport failure. Dependents must stop treating the channel as live.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close tears the channel down: the connection is closed and every
// subscription is dropped. Safe to call more than once.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		if err := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
			c.logger.Printf("sending close frame: %v", err)
		}
		c.conn.Close()
		c.mu.Lock()
		c.handlers = make(map[string][]Handler)
		c.mu.Unlock()
	})
}

func (c *Channel) readLoop() {
	defer c.Close()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Printf("connection lost: %v", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.logger.Printf("dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers[env.Event]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(env.Data)
	}
}

func (c *Channel) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Printf("writing frame: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
