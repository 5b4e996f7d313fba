// internal/handlers/client.go
package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/protocol"
	"github.com/sirupsen/logrus"
)

var (
	ErrClientClosed  = errors.New("client is closed")
	ErrSendQueueFull = errors.New("client send queue is full")
)

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 10 * time.Second
)

// Client is the outbound side of one connection. Send only queues; a dedicated write pump does
// the blocking network writes so that the game lock is never held across I/O. A client that
// lets its queue fill up is dropped.
type Client struct {
	id           string
	transport    Transport
	writeTimeout time.Duration
	log          logrus.FieldLogger

	mu     sync.Mutex
	out    chan []byte
	closed bool
	done   chan struct{}
}

// NewClient wraps transport. queueSize and writeTimeout fall back to defaults when zero.
func NewClient(id string, transport Transport, queueSize int, writeTimeout time.Duration, logger logrus.FieldLogger) *Client {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Client{
		id:           id,
		transport:    transport,
		writeTimeout: writeTimeout,
		log:          logger,
		out:          make(chan []byte, queueSize),
		done:         make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) RemoteAddr() string { return c.transport.RemoteAddr() }

// Send encodes msg and queues it without blocking.
func (c *Client) Send(msg protocol.ServerMessage) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.out <- data:
		return nil
	default:
		c.log.Warn("send queue full, dropping client")
		c.shutdownLocked()
		go c.transport.Close()
		return ErrSendQueueFull
	}
}

// Close stops accepting messages. Whatever is already queued is still written before the
// transport is closed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdownLocked()
}

func (c *Client) shutdownLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

// Done is closed once the write pump has exited and the transport is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump writes queued messages until the queue is closed or a write fails.
func (c *Client) WritePump(ctx context.Context) {
	defer close(c.done)
	defer c.transport.Close()

	for data := range c.out {
		wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
		err := c.transport.Write(wctx, data)
		cancel()
		if err != nil {
			c.log.Debugf("write failed: %v", err)
			c.Close()
			return
		}
	}
}
