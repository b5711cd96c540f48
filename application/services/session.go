package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskable/application/ports"
	apperrors "taskable/pkg/errors"

	"go.uber.org/zap"
)

// Mode is the binding the synchronizer was last initialized for
type Mode string

const (
	ModeNone      Mode = ""
	ModeAnonymous Mode = "anonymous"
	ModeDegraded  Mode = "degraded"
	ModeRemote    Mode = "remote"
)

// Session keeps the remote client in step with the credential provider.
// A client is rebuilt whenever the token or identity changes, and the
// synchronizer is re-initialized exactly once per authentication-state
// transition.
type Session struct {
	provider   ports.CredentialProvider
	factory    ports.ClientFactory
	sync       *Synchronizer
	subscriber *ChangeFeedSubscriber
	audience   string
	logger     *zap.Logger

	mu     sync.Mutex
	client ports.RemoteClient
	token  string
	userID string
	mode   Mode
}

// NewSession wires a provider and client factory to a synchronizer
func NewSession(
	provider ports.CredentialProvider,
	factory ports.ClientFactory,
	synchronizer *Synchronizer,
	subscriber *ChangeFeedSubscriber,
	audience string,
	logger *zap.Logger,
) *Session {
	return &Session{
		provider:   provider,
		factory:    factory,
		sync:       synchronizer,
		subscriber: subscriber,
		audience:   audience,
		logger:     logger,
	}
}

// Refresh re-reads the credential provider and rebinds the synchronizer
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, signedIn := s.provider.CurrentUser()
	if !signedIn || s.factory == nil {
		s.teardown()
		if s.mode != ModeAnonymous {
			s.userID = ""
			s.mode = ModeAnonymous
			s.sync.Detach()
			s.sync.Initialize(ctx)
			s.logger.Info("Session is anonymous, using local lists only")
		}
		return nil
	}

	token, err := s.provider.Token(ctx, s.audience)
	if err != nil {
		s.logger.Warn("Failed to obtain remote credential", zap.String("userID", identity.UserID), zap.Error(err))
		token = ""
	}

	identityChanged := identity.UserID != s.userID
	if identityChanged || token != s.token || s.client == nil {
		s.teardown()
		s.token = token
		if token != "" {
			if err := s.connect(ctx, token, identity.UserID); err != nil {
				s.logger.Warn("Remote store unavailable, continuing local-only",
					zap.String("userID", identity.UserID),
					zap.Error(err),
				)
			}
		}
	}

	next := ModeDegraded
	if s.client != nil {
		next = ModeRemote
	} else {
		s.sync.Attach(nil, identity.UserID)
	}

	if identityChanged || next != s.mode {
		s.userID = identity.UserID
		s.mode = next
		s.sync.Initialize(ctx)
		s.logger.Info("Session initialized", zap.String("userID", identity.UserID), zap.String("mode", string(next)))
	}
	return nil
}

// Run refreshes the session every interval until ctx is done, picking up
// token rotation and late-arriving credentials
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("Session refresh failed", zap.Error(err))
			}
		}
	}
}

// Mode reports the current binding
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Close releases the remote client and its subscription
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
	s.sync.Detach()
}

func (s *Session) connect(ctx context.Context, token, userID string) error {
	client, err := s.factory.NewClient(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoCredential) {
			return err
		}
		return apperrors.Wrap(err, "failed to create remote client")
	}

	s.client = client
	s.sync.Attach(client, userID)

	if err := s.subscriber.Start(ctx, client, userID); err != nil {
		// lists still sync; only live updates from other sessions are lost
		s.logger.Warn("Change feed unavailable", zap.String("userID", userID), zap.Error(err))
	}
	return nil
}

func (s *Session) teardown() {
	s.subscriber.Stop()
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("Failed to close remote client", zap.Error(err))
		}
		s.client = nil
	}
	s.token = ""
}
