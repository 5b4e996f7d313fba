// internal/server/http.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/hideandseek/internal/game"
	"github.com/jason-s-yu/hideandseek/internal/handlers"
	"github.com/jason-s-yu/hideandseek/internal/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// Gateway exposes the same protocol to browsers over WebSocket, plus a health check and a QR
// code pointing at the public join URL.
type Gateway struct {
	addr      string
	publicURL string
	state     *game.State
	session   handlers.SessionConfig
	log       logrus.FieldLogger
}

func NewGateway(addr, publicURL string, st *game.State, session handlers.SessionConfig, logger logrus.FieldLogger) *Gateway {
	return &Gateway{
		addr:      addr,
		publicURL: publicURL,
		state:     st,
		session:   session,
		log:       logger.WithField("listener", "http"),
	}
}

// Handler builds the router. ctx bounds the lifetime of upgraded sessions.
func (g *Gateway) Handler(ctx context.Context) http.Handler {
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		g.log.Errorf("panic serving %s: %v", r.URL.Path, v)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	mux.GET("/healthz", g.healthHandler)
	mux.GET("/qr.png", g.qrHandler)
	mux.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		g.wsHandler(ctx, w, r)
	})

	return middleware.LogMiddleware(g.log)(mux)
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.addr,
		Handler:           g.Handler(ctx),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Infof("listening on %s", g.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (g *Gateway) healthHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	total, online := g.state.PlayerCount()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"round_status":   g.state.Status(),
		"players":        total,
		"players_online": online,
	})
}

func (g *Gateway) qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	url := g.publicURL
	if url == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		url = scheme + "://" + r.Host + "/"
	}

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (g *Gateway) wsHandler(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.log.WithError(err).Warn("websocket accept failed")
		return
	}
	if g.session.MaxLineBytes > 0 {
		conn.SetReadLimit(int64(g.session.MaxLineBytes) + 1)
	}

	middleware.LogWebSocketConnect(g.log, r.RemoteAddr, r.URL.Path)
	err = handlers.ServeConn(ctx, handlers.NewWebSocketTransport(conn, r.RemoteAddr), g.state, g.session, g.log)
	middleware.LogWebSocketDisconnect(g.log, r.RemoteAddr, r.URL.Path, err)
}
