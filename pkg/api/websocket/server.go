package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/internal/constants"
)

// Server upgrades HTTP requests into session-bound websocket clients
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a server and starts its hub. checkOrigin may be nil to
// accept every origin.
func NewServer(logger *zap.Logger, checkOrigin func(r *http.Request) bool) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	hub := NewHub(logger)
	go hub.Run()

	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.DefaultWSReadBufferSize,
			WriteBufferSize: constants.DefaultWSWriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeSession upgrades the request and attaches the client to session
func (s *Server) ServeSession(w http.ResponseWriter, r *http.Request, session string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(s.hub, conn, session, s.logger)
	if !s.hub.add(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	s.logger.Debug("new websocket connection",
		zap.String("session", session),
		zap.String("remote_addr", r.RemoteAddr))
}

// Hub returns the underlying hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stop stops the hub and disconnects every client
func (s *Server) Stop() {
	s.hub.Stop()
}
