// Package transport owns the long-lived event channel connection: a single
// websocket per adapter, automatic reconnection with backoff, fire-and-forget
// publish, and ordered per-event subscriptions released via handles.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatclient/internal/logger"
)

const sendBufSize = 256

// Options tune the adapter. Zero values fall back to the defaults below.
type Options struct {
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	MaxMessageSize    int64
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
}

func (o *Options) fill() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
	if o.ReconnectMinDelay <= 0 {
		o.ReconnectMinDelay = 500 * time.Millisecond
	}
	if o.ReconnectMaxDelay <= 0 {
		o.ReconnectMaxDelay = 15 * time.Second
	}
}

type subscription struct {
	id      int
	handler Handler
}

// Subscription is the handle returned by On. Cancel deregisters the handler;
// it is safe to call more than once.
type Subscription struct {
	a     *Adapter
	event string
	id    int
}

func (s *Subscription) Cancel() {
	if s == nil || s.a == nil {
		return
	}
	s.a.off(s.event, s.id)
	s.a = nil
}

// Adapter is one event channel connection. The composition root constructs
// exactly one per process and injects it everywhere a channel is needed;
// consumers must not assume frame ordering survives a reconnect.
type Adapter struct {
	url      string
	originID string
	opts     Options
	dialer   *websocket.Dialer

	send chan Frame

	mu        sync.Mutex
	running   bool
	connected bool
	readyCh   chan struct{} // closed once the current connect handshake completes
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	subMu   sync.RWMutex
	subs    map[string][]subscription
	nextSub int
}

func NewAdapter(url string, opts Options) *Adapter {
	opts.fill()
	return &Adapter{
		url:      url,
		originID: uuid.New().String(),
		opts:     opts,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		send:     make(chan Frame, sendBufSize),
		readyCh:  make(chan struct{}),
		subs:     make(map[string][]subscription),
	}
}

// OriginID identifies frames published by this adapter. Consumers compare it
// against Frame.Origin to ignore their own broadcast echoes.
func (a *Adapter) OriginID() string { return a.originID }

// Connect starts the connection loop. Idempotent: a second call while the
// loop is running is a no-op.
func (a *Adapter) Connect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.running = true
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx)
	}()
}

// Disconnect tears the channel down and waits for the loop to exit.
// Idempotent. The adapter can be connected again afterwards.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	cancel()
	a.wg.Wait()
}

// Connected reports whether the handshake of the current connection has
// completed.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// WaitUntilConnected blocks until the next successful connect handshake, or
// returns immediately if already connected.
func (a *Adapter) WaitUntilConnected(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	ready := a.readyCh
	a.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
		return nil
	}
}

// Emit publishes an event. Fire-and-forget: no delivery acknowledgement is
// modeled, and when the send buffer is full the frame is dropped with a log
// line rather than blocking the caller.
func (a *Adapter) Emit(event string, args ...any) error {
	raw := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		buf, err := json.Marshal(arg)
		if err != nil {
			return err
		}
		raw = append(raw, buf)
	}
	frame := Frame{Origin: a.originID, Event: event, Args: raw}
	select {
	case a.send <- frame:
	default:
		logger.Errorf("transport: send buffer full, dropping %s", event)
	}
	return nil
}

// On registers a handler for an event name. Multiple handlers per event are
// invoked in registration order. The returned handle releases the handler.
func (a *Adapter) On(event string, h Handler) *Subscription {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.nextSub++
	id := a.nextSub
	a.subs[event] = append(a.subs[event], subscription{id: id, handler: h})
	return &Subscription{a: a, event: event, id: id}
}

func (a *Adapter) off(event string, id int) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	subs := a.subs[event]
	for i, s := range subs {
		if s.id == id {
			a.subs[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (a *Adapter) dispatch(frame Frame) {
	a.subMu.RLock()
	subs := make([]subscription, len(a.subs[frame.Event]))
	copy(subs, a.subs[frame.Event])
	a.subMu.RUnlock()

	for _, s := range subs {
		s.handler(frame.Origin, frame.Args)
	}
}

func (a *Adapter) run(ctx context.Context) {
	delay := a.opts.ReconnectMinDelay
	for {
		if ctx.Err() != nil {
			return
		}
		conn, resp, err := a.dialer.DialContext(ctx, a.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("transport dial %s: %v", a.url, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > a.opts.ReconnectMaxDelay {
				delay = a.opts.ReconnectMaxDelay
			}
			continue
		}
		delay = a.opts.ReconnectMinDelay

		a.markConnected()
		a.serve(ctx, conn)
		a.markDisconnected()

		if ctx.Err() != nil {
			return
		}
		logger.Info("transport: connection lost, reconnecting")
	}
}

func (a *Adapter) markConnected() {
	a.mu.Lock()
	a.connected = true
	close(a.readyCh)
	a.mu.Unlock()
}

func (a *Adapter) markDisconnected() {
	a.mu.Lock()
	a.connected = false
	a.readyCh = make(chan struct{})
	a.mu.Unlock()
}

// serve runs the read and write pumps for one connection and returns when
// either exits.
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		a.readPump(conn)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		a.writePump(connCtx, conn)
	}()
	<-connCtx.Done()
	conn.Close()
	wg.Wait()
}

func (a *Adapter) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(a.opts.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(a.opts.PongTimeout)); err != nil {
		logger.Errorf("transport set read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.opts.PongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("transport read: %v", err)
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Errorf("transport unmarshal: %v", err)
			continue
		}
		a.dispatch(frame)
	}
}

func (a *Adapter) writePump(ctx context.Context, conn *websocket.Conn) {
	pingPeriod := (a.opts.PongTimeout * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-a.send:
			if err := conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				logger.Errorf("transport write %s: %v", frame.Event, err)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
