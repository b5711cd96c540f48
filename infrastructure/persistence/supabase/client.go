// Package supabase binds the list store and change feed to a Supabase
// project: PostgREST for rows, Realtime for change notifications.
package supabase

import (
	"context"

	"taskable/application/ports"
	"taskable/infrastructure/realtime"
	apperrors "taskable/pkg/errors"

	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// FactoryConfig holds the project settings shared by every client
type FactoryConfig struct {
	URL     string
	AnonKey string
	Table   string
}

// ClientFactory builds per-token Supabase clients
type ClientFactory struct {
	cfg    FactoryConfig
	logger *zap.Logger
}

// NewClientFactory creates a factory for one project
func NewClientFactory(cfg FactoryConfig, logger *zap.Logger) *ClientFactory {
	if cfg.Table == "" {
		cfg.Table = "lists"
	}
	return &ClientFactory{cfg: cfg, logger: logger}
}

// NewClient returns a client whose requests carry token as the bearer
// credential, so row-level security scopes them to the token's user
func (f *ClientFactory) NewClient(ctx context.Context, token string) (ports.RemoteClient, error) {
	if token == "" {
		return nil, apperrors.ErrNoCredential
	}

	client, err := supa.NewClient(f.cfg.URL, f.cfg.AnonKey, &supa.ClientOptions{
		Headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		return nil, apperrors.NewConfigError("invalid supabase settings").WithCause(err)
	}

	socketURL, err := realtime.SocketURL(f.cfg.URL, f.cfg.AnonKey)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid supabase url").WithCause(err)
	}

	f.logger.Debug("Created supabase client", zap.String("table", f.cfg.Table))
	return &Client{
		ListStore: NewListStore(client, f.cfg.Table, f.logger),
		Feed: realtime.NewFeed(realtime.Config{
			URL:         socketURL,
			AccessToken: token,
			Table:       f.cfg.Table,
		}, f.logger),
	}, nil
}

// Client is a RemoteClient bound to one bearer token
type Client struct {
	*ListStore
	*realtime.Feed
}

// Close is a no-op; subscriptions are closed by their owner and the REST
// client holds no connections of its own
func (c *Client) Close() error {
	return nil
}
