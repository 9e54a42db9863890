package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/snapzone/snapzone/internal/command"
	"github.com/snapzone/snapzone/internal/metric"
	"github.com/snapzone/snapzone/internal/models"
)

// commandReply is the response sent when a command subject carries a reply
// inbox.
type commandReply struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Consumer subscribes to command subjects and dispatches them.
type Consumer struct {
	conn    *nats.Conn
	svc     *command.Service
	prefix  string
	metrics *metric.Metrics
	sub     *nats.Subscription
}

// NewConsumer creates a consumer for subjects under prefix (for example
// "snapzone.command"). metrics may be nil.
func NewConsumer(c *Client, svc *command.Service, prefix string, metrics *metric.Metrics) *Consumer {
	return &Consumer{conn: c.conn, svc: svc, prefix: prefix, metrics: metrics}
}

// Start subscribes to "<prefix>.>". Messages are handled on the NATS
// delivery goroutine; command handlers are expected to be fast since real
// work happens against the external server.
func (c *Consumer) Start(ctx context.Context) error {
	subject := c.prefix + ".>"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", subject, err)
	}
	c.sub = sub
	slog.Info("broker: command consumer started", "subject", subject)
	return nil
}

// Stop unsubscribes the consumer.
func (c *Consumer) Stop() {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			slog.Warn("broker: unsubscribe", "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	op := command.Operation(strings.TrimPrefix(msg.Subject, c.prefix+"."))

	var req command.Request
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Warn("broker: malformed command payload", "subject", msg.Subject, "err", err)
			c.reply(msg, commandReply{Status: models.CommandStatusError, Code: models.CodeValidation, Message: "malformed payload"})
			c.count(op, models.CommandStatusError)
			return
		}
	}

	if appErr := c.svc.Dispatch(ctx, op, req); appErr != nil {
		slog.Warn("broker: command failed", "operation", op, "code", appErr.Code, "err", appErr.Message)
		c.reply(msg, commandReply{Status: models.CommandStatusError, Code: appErr.Code, Message: appErr.Message})
		c.count(op, models.CommandStatusError)
		return
	}

	slog.Debug("broker: command ok", "operation", op)
	c.reply(msg, commandReply{Status: models.CommandStatusOK})
	c.count(op, models.CommandStatusOK)
}

func (c *Consumer) reply(msg *nats.Msg, r commandReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Debug("broker: reply failed", "err", err)
	}
}

func (c *Consumer) count(op command.Operation, status string) {
	if c.metrics == nil {
		return
	}
	label := string(op)
	if !command.Known(op) {
		label = "unknown"
	}
	c.metrics.CommandsTotal.WithLabelValues(label, status).Inc()
}
