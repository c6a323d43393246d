package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Token auth happens inside the protocol; origin is not trusted.
		return true
	},
}

// Server exposes the WebSocket endpoint over HTTP.
type Server struct {
	mgr  *Manager
	http *http.Server
	log  *zap.Logger
}

func NewServer(addr string, mgr *Manager, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mgr: mgr,
		log: log,
	}
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.mgr.HandleConn(sock)
}

// ListenAndServe blocks serving the endpoint.
func (s *Server) ListenAndServe() error {
	s.log.Info("websocket endpoint listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
