// internal/handlers/transport.go
package handlers

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/coder/websocket"
)

// Transport is the byte stream underneath a session. Read returns raw chunks that may hold
// partial or multiple protocol lines. Close must be safe to call more than once and must unblock
// a pending Read.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, p []byte) error
	Close() error
	RemoteAddr() string
}

// connTransport carries newline-delimited JSON over a plain stream socket.
type connTransport struct {
	conn net.Conn
	buf  []byte
}

func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn, buf: make([]byte, 4096)}
}

func (t *connTransport) Read(ctx context.Context) ([]byte, error) {
	n, err := t.conn.Read(t.buf)
	if n > 0 {
		return t.buf[:n], nil
	}
	return nil, err
}

func (t *connTransport) Write(ctx context.Context, p []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	_, err := t.conn.Write(p)
	return err
}

func (t *connTransport) Close() error { return t.conn.Close() }

func (t *connTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// wsTransport carries the same protocol over WebSocket text frames. A frame may contain one or
// more lines; a missing trailing newline is implied.
type wsTransport struct {
	conn   *websocket.Conn
	remote string
}

func NewWebSocketTransport(conn *websocket.Conn, remoteAddr string) Transport {
	return &wsTransport{conn: conn, remote: remoteAddr}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		if !bytes.HasSuffix(data, []byte("\n")) {
			data = append(data, '\n')
		}
		return data, nil
	}
}

func (t *wsTransport) Write(ctx context.Context, p []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, bytes.TrimSuffix(p, []byte("\n")))
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "session ended")
}

func (t *wsTransport) RemoteAddr() string { return t.remote }
