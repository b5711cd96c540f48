package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"taskable/application/ports"
	apperrors "taskable/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the server
	writeWait = 10 * time.Second

	// Maximum message size allowed from the server
	maxMessageSize = 1024 * 1024
)

// Config describes one Realtime endpoint and the table to watch
type Config struct {
	URL               string // websocket URL, see SocketURL
	AccessToken       string // user JWT; row-level security applies to events
	Schema            string
	Table             string
	OwnerColumn       string
	HeartbeatInterval time.Duration
	JoinTimeout       time.Duration
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
}

func (c *Config) applyDefaults() {
	if c.Schema == "" {
		c.Schema = "public"
	}
	if c.OwnerColumn == "" {
		c.OwnerColumn = "user_id"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
}

// Feed implements ports.ChangeFeed over Supabase Realtime
type Feed struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewFeed creates a feed; nothing is dialed until Subscribe
func NewFeed(cfg Config, logger *zap.Logger) *Feed {
	cfg.applyDefaults()
	return &Feed{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// Subscribe dials the socket and joins a channel for ownerID's rows. It
// returns once the join is acknowledged. The connection is re-established
// with backoff if it drops; onChange fires after every rejoin because
// events may have been missed.
func (f *Feed) Subscribe(ctx context.Context, ownerID string, onChange func()) (ports.Subscription, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch := &channel{
		feed:     f,
		topic:    fmt.Sprintf("realtime:%s:%s:%s", f.cfg.Schema, f.cfg.Table, ownerID),
		ownerID:  ownerID,
		onChange: onChange,
		ctx:      runCtx,
		cancel:   cancel,
		logger:   f.logger.With(zap.String("ownerID", ownerID), zap.String("table", f.cfg.Table)),
	}

	conn, err := ch.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	ch.wg.Add(1)
	go ch.run(conn)

	ch.logger.Info("Joined realtime channel", zap.String("topic", ch.topic))
	return ch, nil
}

type channel struct {
	feed     *Feed
	topic    string
	ownerID  string
	onChange func()
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	ref atomic.Uint64

	mu      sync.Mutex // serializes writes; guards conn and joinRef
	conn    *websocket.Conn
	joinRef string
}

// Close leaves the channel and closes the socket
func (c *channel) Close() error {
	c.once.Do(func() {
		c.cancel()

		c.mu.Lock()
		if c.conn != nil {
			leave := Message{Topic: c.topic, Event: eventLeave, Payload: json.RawMessage(`{}`), Ref: c.nextRef(), JoinRef: c.joinRef}
			_ = c.writeLocked(leave)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
		c.mu.Unlock()

		c.wg.Wait()
		c.logger.Debug("Left realtime channel", zap.String("topic", c.topic))
	})
	return nil
}

func (c *channel) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

// connect dials, sends phx_join and waits for its reply
func (c *channel) connect(ctx context.Context) (*websocket.Conn, error) {
	cfg := c.feed.cfg
	conn, _, err := c.feed.dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to dial realtime socket", err)
	}
	conn.SetReadLimit(maxMessageSize)

	joinRef := c.nextRef()
	join, err := newJoin(c.topic, joinRef, cfg.Schema, cfg.Table, cfg.OwnerColumn, c.ownerID, cfg.AccessToken)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.joinRef = joinRef
	err = c.writeLocked(join)
	c.mu.Unlock()
	if err != nil {
		conn.Close()
		return nil, apperrors.NewNetworkError("failed to send join", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.JoinTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return nil, apperrors.NewNetworkError("no reply to channel join", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Event != eventReply || msg.Ref != joinRef {
			continue
		}

		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			conn.Close()
			return nil, apperrors.NewExternalError("supabase-realtime", err)
		}
		if reply.Status != "ok" {
			conn.Close()
			return nil, apperrors.NewExternalError("supabase-realtime",
				fmt.Errorf("join rejected: %s %s", reply.Status, string(reply.Response)))
		}
		break
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * cfg.HeartbeatInterval))
	return conn, nil
}

// run serves conn and reconnects until the channel is closed
func (c *channel) run(conn *websocket.Conn) {
	defer c.wg.Done()

	cfg := c.feed.cfg
	for {
		err := c.serve(conn)
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("Realtime connection lost, reconnecting", zap.Error(err))

		delay := cfg.ReconnectMin
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}

			conn, err = c.connect(c.ctx)
			if err == nil {
				break
			}
			c.logger.Warn("Realtime reconnect failed", zap.Duration("retryIn", delay), zap.Error(err))
			delay *= 2
			if delay > cfg.ReconnectMax {
				delay = cfg.ReconnectMax
			}
		}

		if c.ctx.Err() != nil {
			conn.Close()
			return
		}
		c.logger.Info("Rejoined realtime channel", zap.String("topic", c.topic))
		c.onChange()
	}
}

// serve pumps heartbeats and incoming frames until conn fails
func (c *channel) serve(conn *websocket.Conn) error {
	stop := make(chan struct{})
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		c.heartbeat(conn, stop)
	}()
	defer func() {
		close(stop)
		hb.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * c.feed.cfg.HeartbeatInterval))

		if err := c.handle(data); err != nil {
			conn.Close()
			return err
		}
	}
}

func (c *channel) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.feed.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			msg := Message{Topic: topicPhoenix, Event: eventHeartbeat, Payload: json.RawMessage(`{}`), Ref: c.nextRef()}
			c.mu.Lock()
			err := c.writeLocked(msg)
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("Failed to send heartbeat", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

func (c *channel) handle(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("Ignoring malformed realtime frame", zap.Error(err))
		return nil
	}
	if msg.Topic != c.topic {
		return nil
	}

	switch msg.Event {
	case eventChanges:
		c.onChange()
	case eventError, eventClose:
		return fmt.Errorf("channel %s: %s", msg.Event, string(msg.Payload))
	default:
		c.logger.Debug("Realtime event", zap.String("event", msg.Event))
	}
	return nil
}

func (c *channel) writeLocked(msg Message) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
