// Package broker connects the hub to a NATS message broker. Outbound state
// topics are published as regular subjects and, for retained delivery to
// late subscribers, mirrored into a JetStream key-value bucket. Inbound
// command subjects are consumed and dispatched to the command service.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/snapzone/snapzone/internal/config"
)

const (
	connectTimeout = 5 * time.Second
	reconnectWait  = 2 * time.Second
	retainBucket   = "snapzone_retained"
)

// Client wraps a NATS connection for state publishing.
type Client struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	retain bool
}

// Connect establishes the NATS connection and prepares the retained-value
// bucket. The connection reconnects indefinitely on broker restarts.
func Connect(ctx context.Context, cfg config.BrokerConfig) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("snapzone"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("broker: disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("broker: reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("broker: connect %s: %w", cfg.URL, err)
	}

	c := &Client{conn: conn}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      retainBucket,
		Description: "retained state topics",
		History:     1,
	})
	if err != nil {
		// JetStream may be disabled on the server. Publishing still
		// works, only late-subscriber retention is lost.
		slog.Warn("broker: retained bucket unavailable, retention disabled", "err", err)
	} else {
		c.kv = kv
		c.retain = true
	}
	return c, nil
}

// subjectFor maps a slash-separated topic to a NATS subject.
func subjectFor(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// keyFor maps a topic to a KV key. KV keys share subject syntax.
func keyFor(topic string) string {
	return subjectFor(topic)
}

// Publish sends the payload on the topic's subject. When retain is set and
// the retained bucket is available, the value is also stored so late
// subscribers can read the latest state.
func (c *Client) Publish(ctx context.Context, topic, payload string, retain bool) error {
	if err := c.conn.Publish(subjectFor(topic), []byte(payload)); err != nil {
		return fmt.Errorf("broker: publish %s: %w", topic, err)
	}
	if retain && c.retain {
		if _, err := c.kv.Put(ctx, keyFor(topic), []byte(payload)); err != nil {
			return fmt.Errorf("broker: retain %s: %w", topic, err)
		}
	}
	return nil
}

// Retained reads the retained payload for a topic, if any.
func (c *Client) Retained(ctx context.Context, topic string) (string, bool, error) {
	if !c.retain {
		return "", false, nil
	}
	entry, err := c.kv.Get(ctx, keyFor(topic))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(entry.Value()), true, nil
}

// Close drains the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("broker: drain", "err", err)
	}
}
