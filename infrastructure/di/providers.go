package di

import (
	"context"
	"fmt"
	"net/http"

	"taskable/application/ports"
	"taskable/application/services"
	"taskable/infrastructure/config"
	"taskable/infrastructure/identity"
	"taskable/infrastructure/persistence/dynamodb"
	"taskable/infrastructure/persistence/memory"
	"taskable/infrastructure/persistence/resilient"
	"taskable/infrastructure/persistence/supabase"
	"taskable/infrastructure/preferences"
	"taskable/interfaces/http/rest"
	"taskable/interfaces/websocket"
	"taskable/pkg/auth"
	"taskable/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsstreams "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "taskable"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector(serviceName)
}

// ProvideTracer creates a tracer bound to the global provider
func ProvideTracer() *observability.Tracer {
	return observability.NewTracer(serviceName)
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	jwtCfg := auth.JWTConfig{
		SigningMethod: cfg.JWTSigningMethod,
		SecretKey:     cfg.JWTSecret,
		PrivateKey:    cfg.JWTPrivateKey,
		PublicKey:     cfg.JWTPublicKey,
		Issuer:        cfg.JWTIssuer,
		Audience:      []string{cfg.TokenAudience},
		ExpiryTime:    cfg.JWTExpiry,
	}
	if jwtCfg.SigningMethod == "" {
		jwtCfg.SigningMethod = "HS256"
	}
	if jwtCfg.SigningMethod == "HS256" && jwtCfg.SecretKey == "" {
		// local-only mode still signs users in; tokens never leave the process
		jwtCfg.SecretKey = uuid.NewString()
	}
	return jwtCfg
}

// ProvideJWTConfig derives the local issuer settings. The generator and the
// validator must share one secret, so it is resolved once here.
func ProvideJWTConfig(cfg *config.Config) auth.JWTConfig {
	return jwtConfig(cfg)
}

// ProvideJWTGenerator creates the local token issuer
func ProvideJWTGenerator(jwtCfg auth.JWTConfig) (*auth.JWTGenerator, error) {
	return auth.NewJWTGenerator(jwtCfg)
}

// ProvideJWTValidator creates the verifier used by self-hosted backends
func ProvideJWTValidator(jwtCfg auth.JWTConfig) (*auth.JWTValidator, error) {
	return auth.NewJWTValidator(jwtCfg)
}

// ProvideSessionProvider picks GoTrue for Supabase and the local issuer otherwise
func ProvideSessionProvider(cfg *config.Config, generator *auth.JWTGenerator, logger *zap.Logger) ports.SessionProvider {
	if cfg.RemoteBackend == config.BackendSupabase {
		return identity.NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseAnonKey, logger)
	}
	return identity.NewLocalProvider(generator, logger)
}

// ProvideClientFactory builds the remote client factory for the configured
// backend, wrapped with the circuit breaker. It returns a nil factory for
// the "none" backend, which keeps every session local-only.
func ProvideClientFactory(
	ctx context.Context,
	cfg *config.Config,
	validator *auth.JWTValidator,
	metrics *observability.Collector,
	tracer *observability.Tracer,
	logger *zap.Logger,
) (ports.ClientFactory, error) {
	var next ports.ClientFactory
	switch cfg.RemoteBackend {
	case config.BackendSupabase:
		next = supabase.NewClientFactory(supabase.FactoryConfig{
			URL:     cfg.SupabaseURL,
			AnonKey: cfg.SupabaseAnonKey,
			Table:   cfg.SupabaseTable,
		}, logger)

	case config.BackendDynamoDB:
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		next = dynamodb.NewClientFactory(
			ProvideDynamoDBClient(awsCfg, cfg),
			ProvideStreamsClient(awsCfg, cfg),
			validator,
			dynamodb.FactoryConfig{TableName: cfg.DynamoDBTable, PollInterval: cfg.StreamPollInterval},
			logger,
		)

	case config.BackendMemory:
		next = memory.NewClientFactory(memory.NewStore(), validator, logger)

	case config.BackendNone:
		logger.Info("No remote backend configured, lists stay local")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}

	return resilient.NewFactory(next, resilient.Config{
		Backend:     cfg.RemoteBackend,
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
	}, metrics, tracer, logger), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client. DYNAMODB_ENDPOINT points
// it at DynamoDB Local.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideStreamsClient creates a DynamoDB Streams client
func ProvideStreamsClient(awsCfg aws.Config, cfg *config.Config) *awsstreams.Client {
	return awsstreams.NewFromConfig(awsCfg, func(o *awsstreams.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideSynchronizer creates the list synchronizer
func ProvideSynchronizer(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) *services.Synchronizer {
	return services.NewSynchronizer(logger,
		services.WithMetrics(metrics),
		services.WithRemoteTimeout(cfg.RemoteTimeout),
	)
}

// ProvideChangeFeedSubscriber creates the subscriber that refetches on change
func ProvideChangeFeedSubscriber(sync *services.Synchronizer, metrics *observability.Collector, logger *zap.Logger) *services.ChangeFeedSubscriber {
	return services.NewChangeFeedSubscriber(sync, metrics, logger)
}

// ProvideSession binds the credential provider and factory to the synchronizer
func ProvideSession(
	cfg *config.Config,
	provider ports.SessionProvider,
	factory ports.ClientFactory,
	sync *services.Synchronizer,
	subscriber *services.ChangeFeedSubscriber,
	logger *zap.Logger,
) *services.Session {
	return services.NewSession(provider, factory, sync, subscriber, cfg.TokenAudience, logger)
}

// ProvidePreferenceStore opens the preference file
func ProvidePreferenceStore(cfg *config.Config, logger *zap.Logger) (*preferences.FileStore, error) {
	return preferences.NewFileStore(cfg.PreferencesFile, logger)
}

// ProvideHub creates the websocket hub
func ProvideHub(logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(logger)
}

// ProvideWebSocketServer creates the state push server
func ProvideWebSocketServer(cfg *config.Config, hub *websocket.Hub, sync *services.Synchronizer, logger *zap.Logger) *websocket.Server {
	wsCfg := websocket.DefaultServerConfig()
	if cfg.EnableCORS {
		wsCfg.CheckOrigin = allowOrigins(cfg.AllowedOrigins)
	}
	return websocket.NewServer(hub, sync, wsCfg, logger)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	sync *services.Synchronizer,
	provider ports.SessionProvider,
	session *services.Session,
	prefs *preferences.FileStore,
	ws *websocket.Server,
	metrics *observability.Collector,
	logger *zap.Logger,
) *rest.Router {
	routerCfg := rest.RouterConfig{
		EnableCORS:     cfg.EnableCORS,
		AllowedOrigins: cfg.AllowedOrigins,
		WebSocket:      ws.HandleWebSocket,
	}
	if cfg.EnableMetrics {
		routerCfg.Metrics = metrics
	}
	return rest.NewRouter(sync, provider, session, prefs, routerCfg, logger)
}

// allowOrigins mirrors the CORS allow-list for websocket upgrades. A
// request without an Origin header is not a browser and is let through.
func allowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
