// internal/server/tcp.go
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/jason-s-yu/hideandseek/internal/game"
	"github.com/jason-s-yu/hideandseek/internal/handlers"
	"github.com/sirupsen/logrus"
)

// TCPListener accepts plain newline-delimited JSON clients.
type TCPListener struct {
	addr    string
	state   *game.State
	session handlers.SessionConfig
	log     logrus.FieldLogger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func NewTCPListener(addr string, st *game.State, session handlers.SessionConfig, logger logrus.FieldLogger) *TCPListener {
	return &TCPListener{
		addr:    addr,
		state:   st,
		session: session,
		log:     logger.WithField("listener", "tcp"),
		ready:   make(chan struct{}),
	}
}

// Addr returns the bound address once Start is listening, nil before.
func (l *TCPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Ready is closed once the socket is bound.
func (l *TCPListener) Ready() <-chan struct{} {
	return l.ready
}

// Start serves until ctx is cancelled, then closes every open connection and waits for the
// sessions to finish their cleanup.
func (l *TCPListener) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()
	close(l.ready)

	l.log.Infof("listening on %s", listener.Addr())

	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				cancelConns()
				wg.Wait()
				return nil
			default:
			}
			l.log.WithError(err).Error("accepting connection")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			// errors are logged by the session
			_ = handlers.ServeConn(connCtx, handlers.NewConnTransport(conn), l.state, l.session, l.log)
		}()
	}
}
