package dynamodb

import (
	"context"
	"sync"
	"time"

	"taskable/application/ports"
	"taskable/pkg/auth"
	apperrors "taskable/pkg/errors"

	"go.uber.org/zap"
)

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// ClientAPI is the DynamoDB client surface used by the factory
type ClientAPI interface {
	API
	TableAPI
}

// FactoryConfig holds the settings shared by every client
type FactoryConfig struct {
	TableName    string
	PollInterval time.Duration
}

// ClientFactory builds clients scoped to the partition of the token's subject
type ClientFactory struct {
	db       ClientAPI
	streams  StreamsAPI
	verifier TokenVerifier
	cfg      FactoryConfig
	logger   *zap.Logger
}

// NewClientFactory creates a factory over shared AWS clients
func NewClientFactory(db ClientAPI, streams StreamsAPI, verifier TokenVerifier, cfg FactoryConfig, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{
		db:       db,
		streams:  streams,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// NewClient verifies token and returns a client bound to its subject
func (f *ClientFactory) NewClient(ctx context.Context, token string) (ports.RemoteClient, error) {
	if token == "" {
		return nil, apperrors.ErrNoCredential
	}
	claims, err := f.verifier.ValidateToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid bearer token").WithCause(err)
	}

	f.logger.Debug("Created dynamodb client",
		zap.String("ownerID", claims.UserID),
		zap.String("table", f.cfg.TableName),
	)
	return &Client{
		ListStore: NewListStore(f.db, f.cfg.TableName, claims.UserID, f.logger),
		feed:      NewStreamFeed(f.db, f.streams, f.cfg.TableName, f.cfg.PollInterval, f.logger),
		ownerID:   claims.UserID,
	}, nil
}

// Client is a RemoteClient for one owner's partition
type Client struct {
	*ListStore
	feed    *StreamFeed
	ownerID string

	mu   sync.Mutex
	subs []ports.Subscription
}

// Subscribe watches the owner's partition; other owners are refused
func (c *Client) Subscribe(ctx context.Context, ownerID string, onChange func()) (ports.Subscription, error) {
	if ownerID != c.ownerID {
		return nil, apperrors.NewUnauthorizedError("owner does not match bearer token")
	}
	sub, err := c.feed.Subscribe(ctx, ownerID, onChange)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// Close stops every stream poller started through this client
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}
