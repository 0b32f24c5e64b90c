package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout time.Duration
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id         uuid.UUID
	conn       *websocket.Conn
	config     ConnectionConfig
	remoteAddr string
	send       chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	// readOnly flips the read pump into discard mode: inbound frames are
	// drained off the wire and dropped before they can reach any merge
	// path. Set once a connection's document abilities forbid updates.
	readOnly  atomic.Bool
	onDiscard func()

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	closeStatus websocket.StatusCode
	closeReason string

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, remoteAddr string, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	return &Connection{
		id:          id,
		conn:        conn,
		config:      config,
		remoteAddr:  remoteAddr,
		logger:      connLogger,
		send:        make(chan []byte, 256), // Buffered channel
		done:        make(chan struct{}),
		ctx:         connCtx,
		cancel:      cancel,
		wg:          wg,
		closeStatus: websocket.StatusNormalClosure,
	}
}

func (c *Connection) Run() {
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()

	c.logger.Debug("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		// CRDT frames may arrive as binary or text; everything else is
		// control traffic the library already handled.
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.readOnly.Load() {
			// Drained but never delivered. The socket stays healthy so the
			// peer keeps receiving broadcasts.
			c.logger.Debug("dropping inbound frame from read-only connection")
			if c.onDiscard != nil {
				c.onDiscard()
			}
			continue
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// The send channel was closed, signal clean closure.
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a message for the client. It is safe for concurrent use and
// never blocks a broadcasting room: a peer whose send buffer is full has
// stalled and gets disconnected instead.
func (c *Connection) Send(message []byte) {
	select {
	case c.send <- message:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("send buffer full, closing slow connection")
		go c.CloseWithStatus(websocket.StatusPolicyViolation, "client too slow")
	}
}

// SetReadOnly arms or disarms transport-level discarding of inbound frames.
func (c *Connection) SetReadOnly(readOnly bool) {
	c.readOnly.Store(readOnly)
}

func (c *Connection) ReadOnly() bool {
	return c.readOnly.Load()
}

// CloseWithStatus closes the underlying socket with an explicit close code
// and reason, then tears the connection down.
func (c *Connection) CloseWithStatus(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeStatus = status
		c.closeReason = reason
		c.shutdown(nil)
	})
}

// Close gracefully shuts down the connection and its resources.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.shutdown(err)
	})
}

func (c *Connection) shutdown(err error) {
	c.logger.Debug("transport connection closing",
		slog.Any("reason", err),
		slog.String("status", c.closeStatus.String()),
	)

	c.cancel() // Signal goroutines to stop.
	c.conn.Close(c.closeStatus, c.closeReason)
	if c.onClose != nil {
		c.onClose(c.id, err)
	}
	c.wg.Done()
	close(c.done)
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// RemoteAddr returns the peer's network address as seen at upgrade time.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}

// SetOnDiscardHandler registers a hook invoked for every frame dropped in
// read-only mode, so callers can count rejected writes.
func (c *Connection) SetOnDiscardHandler(handler func()) {
	c.onDiscard = handler
}
