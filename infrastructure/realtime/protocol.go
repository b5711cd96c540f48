// Package realtime is a minimal Supabase Realtime client: one Phoenix
// channel per subscription, joined for postgres_changes on a single table
// and filtered to one owner.
package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Phoenix channel events
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"

	topicPhoenix = "phoenix"
	protocolVsn  = "1.0.0"
)

// Message is a Phoenix v1 JSON frame
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinConfig struct {
	Broadcast struct {
		Ack  bool `json:"ack"`
		Self bool `json:"self"`
	} `json:"broadcast"`
	Presence struct {
		Key string `json:"key"`
	} `json:"presence"`
	PostgresChanges []changeFilter `json:"postgres_changes"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

// SocketURL turns a Supabase project URL into its Realtime websocket URL
func SocketURL(projectURL, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimRight(projectURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid project url: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/websocket") {
		u.Path += "/realtime/v1/websocket"
	}

	q := u.Query()
	q.Set("apikey", apiKey)
	q.Set("vsn", protocolVsn)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newJoin(topic, ref, schema, table, ownerColumn, ownerID, accessToken string) (Message, error) {
	var cfg joinConfig
	cfg.PostgresChanges = []changeFilter{{
		Event:  "*",
		Schema: schema,
		Table:  table,
		Filter: fmt.Sprintf("%s=eq.%s", ownerColumn, ownerID),
	}}

	payload, err := json.Marshal(joinPayload{Config: cfg, AccessToken: accessToken})
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Event: eventJoin, Payload: payload, Ref: ref, JoinRef: ref}, nil
}
