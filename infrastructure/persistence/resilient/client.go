// Package resilient decorates a remote client factory with a circuit
// breaker, per-call metrics and tracing spans.
package resilient

import (
	"context"
	"errors"
	"time"

	"taskable/application/ports"
	apperrors "taskable/pkg/errors"
	"taskable/pkg/observability"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Config controls the breaker shared by every client of one factory
type Config struct {
	Backend     string
	MaxFailures uint32        // consecutive failures before the breaker opens
	Timeout     time.Duration // how long the breaker stays open
	Interval    time.Duration // closed-state counter reset period; 0 never resets
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig(backend string) Config {
	return Config{
		Backend:     backend,
		MaxFailures: 5,
		Timeout:     30 * time.Second,
	}
}

// Factory wraps another factory; clients it returns share one breaker
type Factory struct {
	next    ports.ClientFactory
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Collector
	tracer  *observability.Tracer
	logger  *zap.Logger
}

// NewFactory creates the decorator. metrics may be nil.
func NewFactory(next ports.ClientFactory, cfg Config, metrics *observability.Collector, tracer *observability.Tracer, logger *zap.Logger) *Factory {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultConfig(cfg.Backend).MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig(cfg.Backend).Timeout
	}

	f := &Factory{
		next:    next,
		cfg:     cfg,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger,
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Backend,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if metrics != nil {
				metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
		IsSuccessful: isSuccessful,
	})
	if metrics != nil {
		metrics.BreakerState.WithLabelValues(cfg.Backend).Set(float64(gobreaker.StateClosed))
	}
	return f
}

// isSuccessful keeps caller errors from tripping the breaker; only
// failures of the backend itself count
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch {
	case apperrors.IsValidation(err), apperrors.IsNotFound(err), apperrors.IsUnauthorized(err):
		return true
	}
	return false
}

// State returns the breaker state
func (f *Factory) State() gobreaker.State {
	return f.breaker.State()
}

// NewClient builds the inner client and wraps it
func (f *Factory) NewClient(ctx context.Context, token string) (ports.RemoteClient, error) {
	inner, err := f.next.NewClient(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Client{next: inner, factory: f}, nil
}

// Client routes every call through the factory's breaker
type Client struct {
	next    ports.RemoteClient
	factory *Factory
}

func (c *Client) ListLists(ctx context.Context, ownerID string) ([]ports.ListRecord, error) {
	var records []ports.ListRecord
	err := c.call(ctx, "list_lists", func(ctx context.Context) error {
		var err error
		records, err = c.next.ListLists(ctx, ownerID)
		return err
	}, attribute.String("owner.id", ownerID))
	return records, err
}

func (c *Client) InsertList(ctx context.Context, record ports.ListRecord) error {
	return c.call(ctx, "insert_list", func(ctx context.Context) error {
		return c.next.InsertList(ctx, record)
	}, attribute.String("list.id", record.ID))
}

func (c *Client) UpdateList(ctx context.Context, id string, update ports.ListUpdate) error {
	return c.call(ctx, "update_list", func(ctx context.Context) error {
		return c.next.UpdateList(ctx, id, update)
	}, attribute.String("list.id", id))
}

func (c *Client) DeleteList(ctx context.Context, id string) error {
	return c.call(ctx, "delete_list", func(ctx context.Context) error {
		return c.next.DeleteList(ctx, id)
	}, attribute.String("list.id", id))
}

// Subscribe is traced and counted but bypasses the breaker; the feed
// manages its own reconnects
func (c *Client) Subscribe(ctx context.Context, ownerID string, onChange func()) (ports.Subscription, error) {
	f := c.factory
	var sub ports.Subscription
	start := time.Now()
	err := f.tracer.TraceFunction(ctx, "subscribe", func(ctx context.Context) error {
		var err error
		sub, err = c.next.Subscribe(ctx, ownerID, onChange)
		return err
	}, attribute.String("backend", f.cfg.Backend), attribute.String("owner.id", ownerID))
	if f.metrics != nil {
		f.metrics.RecordRemote("subscribe", f.cfg.Backend, time.Since(start), err)
	}
	return sub, err
}

func (c *Client) Close() error {
	return c.next.Close()
}

func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	f := c.factory
	start := time.Now()

	attrs = append(attrs, attribute.String("backend", f.cfg.Backend))
	err := f.tracer.TraceFunction(ctx, op, func(ctx context.Context) error {
		_, err := f.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperrors.NewUnavailableError(f.cfg.Backend).WithCause(err)
		}
		return err
	}, attrs...)

	if f.metrics != nil {
		f.metrics.RecordRemote(op, f.cfg.Backend, time.Since(start), err)
	}
	if err != nil {
		f.logger.Debug("Remote call failed",
			zap.String("operation", op),
			zap.String("backend", f.cfg.Backend),
			zap.Error(err),
		)
	}
	return err
}
