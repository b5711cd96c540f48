package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"taskable/application/ports"
	"taskable/pkg/auth"
	apperrors "taskable/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// tokens are reissued this long before they expire
const renewBefore = time.Minute

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// LocalProvider signs users in without an external identity service and
// issues HS256/RS256 tokens per audience with the local JWT generator.
type LocalProvider struct {
	generator *auth.JWTGenerator
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	identity *ports.Identity
	tokens   map[string]cachedToken
}

// NewLocalProvider creates a signed-out provider
func NewLocalProvider(generator *auth.JWTGenerator, logger *zap.Logger) *LocalProvider {
	return &LocalProvider{
		generator: generator,
		logger:    logger,
		now:       time.Now,
		tokens:    make(map[string]cachedToken),
	}
}

// SignIn signs in as creds.UserID, or as a stable id derived from
// creds.Email when no user id is given
func (p *LocalProvider) SignIn(ctx context.Context, creds ports.Credentials) (ports.Identity, error) {
	userID := creds.UserID
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if userID == "" {
		if email == "" {
			return ports.Identity{}, apperrors.NewValidationError("userId or email is required")
		}
		userID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
	}

	id := ports.Identity{UserID: userID, Email: email}
	p.mu.Lock()
	p.identity = &id
	p.tokens = make(map[string]cachedToken)
	p.mu.Unlock()

	p.logger.Info("User signed in", zap.String("userID", userID))
	return id, nil
}

// SignOut forgets the identity and every issued token
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.identity = nil
	p.tokens = make(map[string]cachedToken)
	p.mu.Unlock()

	p.logger.Info("User signed out")
	return nil
}

func (p *LocalProvider) CurrentUser() (ports.Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.identity == nil {
		return ports.Identity{}, false
	}
	return *p.identity, true
}

func (p *LocalProvider) IsAuthenticated() bool {
	_, ok := p.CurrentUser()
	return ok
}

// Token returns a cached token for audience, issuing a new one when none
// exists or the cached one is about to expire
func (p *LocalProvider) Token(ctx context.Context, audience string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.identity == nil {
		return "", apperrors.ErrNoCredential
	}
	if cached, ok := p.tokens[audience]; ok && p.now().Add(renewBefore).Before(cached.expiresAt) {
		return cached.value, nil
	}

	token, expiresAt, err := p.generator.GenerateToken(p.identity.UserID, p.identity.Email, audience)
	if err != nil {
		return "", apperrors.NewInternalError("failed to issue token").WithCause(err)
	}
	p.tokens[audience] = cachedToken{value: token, expiresAt: expiresAt}
	return token, nil
}
