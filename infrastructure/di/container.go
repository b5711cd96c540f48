package di

import (
	"taskable/application/services"
	"taskable/infrastructure/config"
	"taskable/infrastructure/preferences"
	"taskable/interfaces/http/rest"
	"taskable/interfaces/websocket"
	"taskable/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Collector
	Synchronizer *services.Synchronizer
	Session      *services.Session
	Preferences  *preferences.FileStore
	Hub          *websocket.Hub
	WebSocket    *websocket.Server
	Router       *rest.Router
}
