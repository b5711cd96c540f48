package di

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"taskable/application/ports"
	"taskable/application/services"
	"taskable/infrastructure/config"
	"taskable/infrastructure/persistence/resilient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		ServerAddress:          ":0",
		Environment:            "test",
		RemoteBackend:          backend,
		TokenAudience:          "supabase",
		RemoteTimeout:          time.Second,
		JWTIssuer:              "taskable",
		JWTExpiry:              time.Hour,
		SessionRefreshInterval: time.Minute,
		PreferencesFile:        filepath.Join(t.TempDir(), "preferences.yaml"),
		LogLevel:               "error",
		BreakerMaxFailures:     3,
		BreakerTimeout:         time.Second,
		EnableMetrics:          true,
		EnableCORS:             true,
		AllowedOrigins:         []string{"http://localhost:3000"},
	}
}

func TestProvideLogger_InvalidLevel(t *testing.T) {
	cfg := testConfig(t, config.BackendNone)
	cfg.LogLevel = "loud"

	_, err := ProvideLogger(cfg)
	assert.Error(t, err)
}

func TestProvideJWTConfig_EphemeralSecret(t *testing.T) {
	cfg := testConfig(t, config.BackendNone)

	first := ProvideJWTConfig(cfg)
	second := ProvideJWTConfig(cfg)
	assert.NotEmpty(t, first.SecretKey)
	assert.NotEqual(t, first.SecretKey, second.SecretKey)

	cfg.JWTSecret = "fixed"
	assert.Equal(t, "fixed", ProvideJWTConfig(cfg).SecretKey)
	assert.Equal(t, []string{"supabase"}, ProvideJWTConfig(cfg).Audience)
}

func TestProvideJWT_RS256FromConfig(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	cfg := testConfig(t, config.BackendMemory)
	cfg.JWTSigningMethod = "RS256"
	cfg.JWTPrivateKey = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	cfg.JWTPublicKey = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))

	jwtCfg := ProvideJWTConfig(cfg)
	assert.Empty(t, jwtCfg.SecretKey)

	generator, err := ProvideJWTGenerator(jwtCfg)
	require.NoError(t, err)
	validator, err := ProvideJWTValidator(jwtCfg)
	require.NoError(t, err)

	token, _, err := generator.GenerateToken("user-1", "", cfg.TokenAudience)
	require.NoError(t, err)
	claims, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestProvideClientFactory_None(t *testing.T) {
	cfg := testConfig(t, config.BackendNone)

	factory, err := ProvideClientFactory(context.Background(), cfg, nil, ProvideMetrics(), ProvideTracer(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, factory)
}

func TestProvideClientFactory_Unknown(t *testing.T) {
	cfg := testConfig(t, "cassette")

	_, err := ProvideClientFactory(context.Background(), cfg, nil, ProvideMetrics(), ProvideTracer(), zap.NewNop())
	assert.Error(t, err)
}

func TestProvideClientFactory_MemoryIsGuarded(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.JWTSecret = "secret"
	validator, err := ProvideJWTValidator(ProvideJWTConfig(cfg))
	require.NoError(t, err)

	factory, err := ProvideClientFactory(context.Background(), cfg, validator, ProvideMetrics(), ProvideTracer(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &resilient.Factory{}, factory)
}

// A session built from the providers reaches remote mode against the
// in-process backend once the local issuer signs a user in.
func TestProviders_MemorySessionGoesRemote(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	cfg := testConfig(t, config.BackendMemory)
	cfg.JWTSecret = "secret"

	jwtCfg := ProvideJWTConfig(cfg)
	generator, err := ProvideJWTGenerator(jwtCfg)
	require.NoError(t, err)
	validator, err := ProvideJWTValidator(jwtCfg)
	require.NoError(t, err)

	metrics := ProvideMetrics()
	provider := ProvideSessionProvider(cfg, generator, logger)
	factory, err := ProvideClientFactory(ctx, cfg, validator, metrics, ProvideTracer(), logger)
	require.NoError(t, err)

	sync := ProvideSynchronizer(cfg, metrics, logger)
	session := ProvideSession(cfg, provider, factory, sync, ProvideChangeFeedSubscriber(sync, metrics, logger), logger)
	defer session.Close()

	require.NoError(t, session.Refresh(ctx))
	assert.Equal(t, services.ModeAnonymous, session.Mode())

	_, err = provider.SignIn(ctx, ports.Credentials{UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, session.Refresh(ctx))
	sync.Wait()

	assert.Equal(t, services.ModeRemote, session.Mode())
	assert.True(t, sync.Snapshot().Authenticated)
}

func TestInitializeContainer(t *testing.T) {
	cfg := testConfig(t, config.BackendNone)

	container, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, container.Router)
	defer container.Session.Close()

	require.NoError(t, container.Session.Refresh(context.Background()))

	rec := httptest.NewRecorder()
	container.Router.Setup().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"anonymous"`)
}

func TestAllowOrigins(t *testing.T) {
	check := allowOrigins([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, check(req))

	assert.True(t, allowOrigins([]string{"*"})(req))
}
