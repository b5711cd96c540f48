package websocket

import (
	"net/http"

	"taskable/application/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StateSource is the synchronizer surface the server pushes from
type StateSource interface {
	Snapshot() services.State
	OnChange(fn func(services.State)) func()
}

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
}

// Server upgrades presentation connections and keeps them current
type Server struct {
	hub      *Hub
	source   StateSource
	upgrader websocket.Upgrader
	logger   *zap.Logger
	stop     func()
}

// NewServer creates a server and subscribes it to source. Close releases
// the subscription.
func NewServer(hub *Hub, source StateSource, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	s := &Server{
		hub:    hub,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: logger,
	}
	s.stop = source.OnChange(func(state services.State) {
		s.publish(TypeState, state)
	})
	return s
}

// PublishPreferences pushes a preference set to every client
func (s *Server) PublishPreferences(values map[string]bool) {
	s.publish(TypePreferences, values)
}

func (s *Server) publish(msgType string, data interface{}) {
	msg, err := Encode(msgType, data)
	if err != nil {
		s.logger.Error("Failed to encode websocket frame", zap.String("type", msgType), zap.Error(err))
		return
	}
	s.hub.Broadcast(msg)
}

// HandleWebSocket handles GET /ws
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := newClient(s.hub, conn, s.logger)
	hello, err := Encode(TypeConnected, map[string]string{"connectionId": client.id})
	if err != nil {
		conn.Close()
		return
	}
	state, err := Encode(TypeState, s.source.Snapshot())
	if err != nil {
		conn.Close()
		return
	}

	if !client.start(hello, state) {
		s.logger.Debug("Hub stopped, rejecting websocket connection")
		return
	}
	s.logger.Info("WebSocket connection established",
		zap.String("connectionID", client.id),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// Close stops pushing state changes
func (s *Server) Close() {
	if s.stop != nil {
		s.stop()
	}
}
