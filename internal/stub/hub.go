package stub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatclient/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufSize    = 64
)

// Hub relays every frame it receives to all connected clients, including
// the sender. That mirrors the production relay's observed behavior: clients
// are responsible for filtering and for dropping their own echoes.
type Hub struct {
	mu      sync.Mutex
	clients map[*relayClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*relayClient]struct{})}
}

type relayClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// close signals the pumps and drops the connection. The send channel is
// never closed: broadcasters may still hold a reference to this client, so
// they select on done instead.
func (c *relayClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Dev harness: any origin may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and joins the relay.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("stub ws upgrade: %v", err)
		return
	}
	c := &relayClient{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *relayClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close drops every connected client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*relayClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*relayClient]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) broadcast(raw []byte) {
	h.mu.Lock()
	targets := make([]*relayClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.send <- raw:
		case <-c.done:
			// Already dropped by another broadcaster.
		default:
			// Slow client: drop it rather than stall the relay.
			h.remove(c)
		}
	}
}

func (h *Hub) readPump(c *relayClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("stub ws read: %v", err)
			}
			return
		}
		h.broadcast(raw)
	}
}

func (h *Hub) writePump(c *relayClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case raw := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
