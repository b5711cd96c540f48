package rest

import (
	"net/http"

	"taskable/application/ports"
	"taskable/application/services"
	"taskable/interfaces/http/rest/handlers"
	"taskable/interfaces/http/rest/middleware"
	"taskable/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig holds the optional parts of the router
type RouterConfig struct {
	EnableCORS     bool
	AllowedOrigins []string
	Metrics        *observability.Collector // nil disables /metrics
	WebSocket      http.HandlerFunc         // nil disables /ws
}

// Router creates and configures the HTTP router
type Router struct {
	sync        *services.Synchronizer
	provider    ports.SessionProvider
	session     handlers.SessionRefresher
	preferences ports.PreferenceStore
	cfg         RouterConfig
	logger      *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	sync *services.Synchronizer,
	provider ports.SessionProvider,
	session handlers.SessionRefresher,
	preferences ports.PreferenceStore,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		sync:        sync,
		provider:    provider,
		session:     session,
		preferences: preferences,
		cfg:         cfg,
		logger:      logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.cfg.Metrics != nil {
		router.Use(middleware.Metrics(rt.cfg.Metrics))
	}

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	if rt.cfg.Metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(rt.cfg.Metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}
	if rt.cfg.WebSocket != nil {
		router.Get("/ws", rt.cfg.WebSocket)
	}

	listHandler := handlers.NewListHandler(rt.sync, rt.logger)
	todoHandler := handlers.NewTodoHandler(rt.sync, rt.logger)
	sessionHandler := handlers.NewSessionHandler(rt.provider, rt.session, rt.logger)
	preferenceHandler := handlers.NewPreferenceHandler(rt.preferences, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", listHandler.GetState)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Post("/", sessionHandler.SignIn)
			r.Delete("/", sessionHandler.SignOut)
		})

		r.Route("/lists", func(r chi.Router) {
			r.Post("/", listHandler.CreateList)
			r.Put("/active", listHandler.SelectList)
			r.Patch("/active", listHandler.RenameList)
			r.Delete("/{listID}", listHandler.DeleteList)

			r.Route("/active/todos", func(r chi.Router) {
				r.Post("/", todoHandler.CreateTodo)
				r.Patch("/{todoID}", todoHandler.UpdateTodo)
				r.Delete("/{todoID}", todoHandler.DeleteTodo)
				r.Post("/{todoID}/duplicate", todoHandler.DuplicateTodo)
				r.Post("/{todoID}/move", todoHandler.MoveTodo)
				r.Post("/{todoID}/keys", todoHandler.KeyIntent)
			})
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", preferenceHandler.ListPreferences)
			r.Get("/{name}", preferenceHandler.GetPreference)
			r.Put("/{name}", preferenceHandler.SetPreference)
		})
	})

	return router
}

// healthCheck reports liveness and the current session mode
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","mode":"` + string(rt.session.Mode()) + `"}`))
}
