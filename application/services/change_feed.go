package services

import (
	"context"
	"sync"

	"taskable/application/ports"
	"taskable/pkg/observability"

	"go.uber.org/zap"
)

// Refetcher reloads the list collection from the remote store
type Refetcher interface {
	FetchLists(ctx context.Context)
}

// ChangeFeedSubscriber turns change notifications for an owner's lists into
// full refetches. Notifications that arrive while a refetch is running are
// coalesced into one follow-up refetch.
type ChangeFeedSubscriber struct {
	refetcher Refetcher
	metrics   *observability.Collector
	logger    *zap.Logger

	mu     sync.Mutex
	sub    ports.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChangeFeedSubscriber creates an idle subscriber
func NewChangeFeedSubscriber(refetcher Refetcher, metrics *observability.Collector, logger *zap.Logger) *ChangeFeedSubscriber {
	return &ChangeFeedSubscriber{
		refetcher: refetcher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start subscribes to feed for ownerID, replacing any active subscription.
// The subscription outlives ctx's cancellation; call Stop to end it.
func (c *ChangeFeedSubscriber) Start(ctx context.Context, feed ports.ChangeFeed, ownerID string) error {
	c.Stop()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	kick := make(chan struct{}, 1)

	sub, err := feed.Subscribe(runCtx, ownerID, func() {
		if c.metrics != nil {
			c.metrics.FeedEvents.Inc()
		}
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		c.logger.Error("Failed to subscribe to change feed", zap.String("ownerID", ownerID), zap.Error(err))
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-kick:
				c.refetcher.FetchLists(runCtx)
			}
		}
	}()

	c.mu.Lock()
	c.sub = sub
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.FeedSubscriptions.Inc()
	}
	c.logger.Info("Subscribed to change feed", zap.String("ownerID", ownerID))
	return nil
}

// Stop closes the active subscription, if any, and waits for the refetch
// loop to exit
func (c *ChangeFeedSubscriber) Stop() {
	c.mu.Lock()
	sub, cancel, done := c.sub, c.cancel, c.done
	c.sub, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if sub == nil {
		return
	}

	if err := sub.Close(); err != nil {
		c.logger.Warn("Failed to close change feed subscription", zap.Error(err))
	}
	cancel()
	<-done

	if c.metrics != nil {
		c.metrics.FeedSubscriptions.Dec()
	}
	c.logger.Debug("Change feed subscription closed")
}

// Active reports whether a subscription is open
func (c *ChangeFeedSubscriber) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub != nil
}
