package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mumble.info/grumble/pkg/errs"
)

// Handler answers one incoming RPC method call.
type Handler func(ctx context.Context, params []byte) (result interface{}, err error)

// NotificationHandler reacts to one incoming notification; it has no
// response to send back.
type NotificationHandler func(params []byte)

// Conn is one control-plane connection, Edge-side or Hub-side: a
// single read task draining the socket and a single bounded writer
// queue, matching §5's per-connection concurrency model.
type Conn struct {
	log  zerolog.Logger
	conn net.Conn

	writeQueue chan Frame

	mu       sync.Mutex
	handlers map[string]Handler
	notifs   map[string]NotificationHandler
	pending  map[uint64]chan *Envelope
	nextID   uint64

	pingInterval time.Duration
	pingTimeout  time.Duration
	lastActivity int64 // unix nanos, atomic

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps conn with the RPC framing, starting its read loop and
// writer loop. pingInterval/pingTimeout default to 30s/90s (§4.14).
func NewConn(log zerolog.Logger, conn net.Conn) *Conn {
	c := &Conn{
		log:          log,
		conn:         conn,
		writeQueue:   make(chan Frame, 256),
		handlers:     make(map[string]Handler),
		notifs:       make(map[string]NotificationHandler),
		pending:      make(map[uint64]chan *Envelope),
		pingInterval: 30 * time.Second,
		pingTimeout:  90 * time.Second,
		closed:       make(chan struct{}),
	}
	c.touch()
	go c.writeLoop()
	go c.readLoop()
	go c.pingLoop()
	return c
}

// Handle registers the handler for an incoming request method, Hub or
// Edge side depending on which methods that node answers.
func (c *Conn) Handle(method string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = h
}

// HandleNotification registers a handler for an incoming notification.
func (c *Conn) HandleNotification(method string, h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifs[method] = h
}

// Call sends a request and blocks for its response, bounded by ctx
// (§5 "RPC call timeout 30s (configurable)").
func (c *Conn) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	id := atomic.AddUint64(&c.nextID, 1)

	rawParams, err := EncodeParams(params)
	if err != nil {
		return fmt.Errorf("rpc: encode params for %s: %w", method, err)
	}

	ch := make(chan *Envelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload, err := EncodeEnvelope(&Envelope{ID: id, Method: method, Params: rawParams})
	if err != nil {
		return err
	}
	if err := c.send(KindRequest, payload); err != nil {
		return err
	}

	select {
	case env := <-ch:
		if env.Error != nil {
			return errs.New(env.Error.Kind, fmt.Sprintf("rpc: %s: %s", method, env.Error.Message))
		}
		if result == nil {
			return nil
		}
		return DecodeParams(env.Result, result)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return fmt.Errorf("rpc: connection closed")
	}
}

// Notify sends a one-way notification with no response expected.
func (c *Conn) Notify(method string, params interface{}) error {
	rawParams, err := EncodeParams(params)
	if err != nil {
		return err
	}
	payload, err := EncodeEnvelope(&Envelope{Method: method, Params: rawParams})
	if err != nil {
		return err
	}
	return c.send(KindNotification, payload)
}

// Close shuts the connection down.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

// IsAlive reports whether activity has been seen within the ping
// timeout window.
func (c *Conn) IsAlive() bool {
	last := time.Unix(0, atomic.LoadInt64(&c.lastActivity))
	return time.Since(last) < c.pingTimeout
}

func (c *Conn) touch() {
	atomic.StoreInt64(&c.lastActivity, time.Now().UnixNano())
}

func (c *Conn) send(kind FrameKind, payload []byte) error {
	select {
	case c.writeQueue <- Frame{Kind: kind, Payload: payload}:
		return nil
	case <-c.closed:
		return fmt.Errorf("rpc: connection closed")
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case f := <-c.writeQueue:
			if err := WriteFrame(c.conn, f.Kind, f.Payload); err != nil {
				c.log.Warn().Err(err).Msg("rpc: write failed, closing connection")
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		frame, err := ReadFrame(c.conn)
		if err != nil {
			c.log.Debug().Err(err).Msg("rpc: read loop ending")
			return
		}
		c.touch()

		switch frame.Kind {
		case KindPing:
			_ = c.send(KindPong, frame.Payload)
		case KindPong:
			// activity timestamp already updated above.
		case KindRequest:
			go c.dispatchRequest(frame.Payload)
		case KindNotification:
			go c.dispatchNotification(frame.Payload)
		case KindResponse:
			c.dispatchResponse(frame.Payload)
		}
	}
}

func (c *Conn) dispatchRequest(payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("rpc: malformed request envelope")
		return
	}

	c.mu.Lock()
	h, ok := c.handlers[env.Method]
	c.mu.Unlock()
	if !ok {
		c.respondError(env.ID, errs.ProtocolViolation, "unknown method "+env.Method)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := h(ctx, env.Params)
	if err != nil {
		c.respondError(env.ID, errs.KindOf(err), err.Error())
		return
	}
	c.respondResult(env.ID, result)
}

func (c *Conn) dispatchNotification(payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("rpc: malformed notification envelope")
		return
	}
	c.mu.Lock()
	h, ok := c.notifs[env.Method]
	c.mu.Unlock()
	if ok {
		h(env.Params)
	}
}

func (c *Conn) dispatchResponse(payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("rpc: malformed response envelope")
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	c.mu.Unlock()
	if ok {
		ch <- env
	}
}

func (c *Conn) respondResult(id uint64, result interface{}) {
	raw, err := EncodeParams(result)
	if err != nil {
		c.respondError(id, errs.Internal, err.Error())
		return
	}
	payload, err := EncodeEnvelope(&Envelope{ID: id, Result: raw})
	if err != nil {
		return
	}
	_ = c.send(KindResponse, payload)
}

func (c *Conn) respondError(id uint64, kind errs.Kind, message string) {
	payload, err := EncodeEnvelope(&Envelope{ID: id, Error: &errs.WireError{Kind: kind, Message: message}})
	if err != nil {
		return
	}
	_ = c.send(KindResponse, payload)
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.send(KindPing, nil)
			if !c.IsAlive() {
				c.log.Warn().Msg("rpc: peer exceeded ping timeout, closing")
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
