package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"taskable/application/ports"
	apperrors "taskable/pkg/errors"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"
)

// SupabaseProvider signs users in against Supabase Auth (GoTrue) with
// email and password. The access token is used as the bearer credential
// for every audience and is refreshed shortly before it expires.
type SupabaseProvider struct {
	client gotrue.Client
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	session *types.Session
}

// NewSupabaseProvider creates a provider for the project at supabaseURL
func NewSupabaseProvider(supabaseURL, anonKey string, logger *zap.Logger) *SupabaseProvider {
	authURL := strings.TrimRight(supabaseURL, "/") + "/auth/v1"
	return &SupabaseProvider{
		client: gotrue.New("", anonKey).WithCustomGoTrueURL(authURL),
		logger: logger,
		now:    time.Now,
	}
}

func (p *SupabaseProvider) SignIn(ctx context.Context, creds ports.Credentials) (ports.Identity, error) {
	if creds.Email == "" || creds.Password == "" {
		return ports.Identity{}, apperrors.NewValidationError("email and password are required")
	}

	resp, err := p.client.SignInWithEmailPassword(creds.Email, creds.Password)
	if err != nil {
		p.logger.Warn("Supabase sign-in failed", zap.String("email", creds.Email), zap.Error(err))
		return ports.Identity{}, apperrors.NewUnauthorizedError("sign-in failed").WithCause(err)
	}

	session := resp.Session
	p.mu.Lock()
	p.session = &session
	p.mu.Unlock()

	id := identityOf(&session)
	p.logger.Info("User signed in", zap.String("userID", id.UserID))
	return id, nil
}

// SignOut revokes the refresh token remotely and forgets the session
// locally. The local session is dropped even when revocation fails.
func (p *SupabaseProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := p.client.WithToken(session.AccessToken).Logout(); err != nil {
		p.logger.Warn("Supabase sign-out failed", zap.Error(err))
		return apperrors.NewExternalError("supabase-auth", err)
	}
	return nil
}

func (p *SupabaseProvider) CurrentUser() (ports.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ports.Identity{}, false
	}
	return identityOf(p.session), true
}

func (p *SupabaseProvider) IsAuthenticated() bool {
	_, ok := p.CurrentUser()
	return ok
}

// Token returns the session access token, refreshing it first when it
// expires within a minute. The audience is fixed by the project.
func (p *SupabaseProvider) Token(ctx context.Context, audience string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return "", apperrors.ErrNoCredential
	}

	expiresAt := time.Unix(p.session.ExpiresAt, 0)
	if p.session.ExpiresAt == 0 || p.now().Add(renewBefore).Before(expiresAt) {
		return p.session.AccessToken, nil
	}

	resp, err := p.client.RefreshToken(p.session.RefreshToken)
	if err != nil {
		p.logger.Warn("Supabase token refresh failed", zap.Error(err))
		return "", apperrors.NewExternalError("supabase-auth", err)
	}
	session := resp.Session
	p.session = &session
	p.logger.Debug("Refreshed Supabase access token", zap.Int64("expiresAt", session.ExpiresAt))
	return session.AccessToken, nil
}

func identityOf(s *types.Session) ports.Identity {
	return ports.Identity{UserID: s.User.ID.String(), Email: s.User.Email}
}
