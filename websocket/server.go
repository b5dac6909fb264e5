package websocket

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tokenroom-relay/domain"
)

// Server upgrades HTTP requests and keeps track of live connections so
// they can be closed on shutdown.
type Server struct {
	upgrader websocket.Upgrader
	handler  domain.MessageHandler
	opts     Options

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewServer(h domain.MessageHandler, readBuf, writeBuf int, opts Options) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		handler: h,
		opts:    opts,
		conns:   make(map[*Conn]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade error", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConn(uuid.New().String(), ws, s.handler, s.opts)
	s.track(conn)
	slog.Debug("websocket accepted", "clientId", conn.ID(), "remoteAddr", r.RemoteAddr)
	conn.Start()
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-c.Done()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
}

// Len returns the number of live connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll sends a going-away close frame to every live connection and
// closes it. Each read pump then runs the disconnect transition.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.Close()
	}
	slog.Info("closed websocket connections", "count", len(conns))
}
