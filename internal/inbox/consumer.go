// Package inbox consumes raw job-board messages from an AMQP queue and feeds
// them to the pipeline in batches.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/amishk599/jobsieve/internal/model"
)

// Processor ingests a batch of messages for one user.
type Processor interface {
	ProcessMessages(ctx context.Context, userID string, msgs []model.RawMessage) (model.BatchSummary, error)
}

// Config controls queue consumption.
type Config struct {
	Queue         string
	Prefetch      int
	BatchSize     int
	FlushInterval time.Duration
	// UserID receives messages whose envelope names no user.
	UserID string
}

// envelope is the JSON body of one delivery.
type envelope struct {
	UserID     string    `json:"user_id"`
	Source     string    `json:"source"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Consumer batches queue deliveries into ProcessMessages calls. A batch is
// acked once processed; a batch hit by a store failure is requeued, which is
// safe because ingestion is idempotent. Undecodable deliveries are rejected
// without requeue.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	cfg    Config
	proc   Processor
	logger *slog.Logger
	now    func() time.Time
}

// Dial connects to the broker, declares the durable queue and applies the
// prefetch limit.
func Dial(url string, cfg Config, proc Processor, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: 10 * time.Second, Locale: "en_US"})
	if err != nil {
		return nil, fmt.Errorf("connecting to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", cfg.Queue, err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setting qos: %w", err)
	}

	c := newConsumer(cfg, proc, logger)
	c.conn, c.ch = conn, ch
	return c, nil
}

func newConsumer(cfg Config, proc Processor, logger *slog.Logger) *Consumer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Consumer{cfg: cfg, proc: proc, logger: logger, now: time.Now}
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(
		c.cfg.Queue,
		"jobsieve-inbox", // consumer tag
		false,            // auto-ack
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", c.cfg.Queue, err)
	}
	c.logger.Info("inbox consumer started", "queue", c.cfg.Queue, "prefetch", c.cfg.Prefetch, "batch_size", c.cfg.BatchSize)
	return c.consume(ctx, deliveries)
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

type pending struct {
	delivery amqp.Delivery
	userID   string
	msg      model.RawMessage
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []pending
	for {
		select {
		case <-ctx.Done():
			c.requeue(batch)
			c.logger.Info("inbox consumer stopped")
			return nil

		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(ctx, batch)
				batch = nil
			}

		case d, ok := <-deliveries:
			if !ok {
				if len(batch) > 0 {
					c.flush(ctx, batch)
				}
				return errors.New("amqp delivery channel closed")
			}
			p, err := c.decode(d)
			if err != nil {
				c.logger.Error("rejecting malformed delivery", "delivery_tag", d.DeliveryTag, "error", err)
				if nackErr := d.Nack(false, false); nackErr != nil {
					c.logger.Error("nack failed", "delivery_tag", d.DeliveryTag, "error", nackErr)
				}
				continue
			}
			batch = append(batch, p)
			if len(batch) >= c.cfg.BatchSize {
				c.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (c *Consumer) decode(d amqp.Delivery) (pending, error) {
	var env envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return pending{}, fmt.Errorf("decoding body: %w", err)
	}
	src, ok := model.ParseSourceKind(env.Source)
	if !ok {
		return pending{}, fmt.Errorf("unknown source %q", env.Source)
	}
	if env.Body == "" {
		return pending{}, errors.New("empty message body")
	}

	received := env.ReceivedAt
	if received.IsZero() {
		received = d.Timestamp
	}
	if received.IsZero() {
		received = c.now()
	}
	user := env.UserID
	if user == "" {
		user = c.cfg.UserID
	}
	return pending{
		delivery: d,
		userID:   user,
		msg:      model.RawMessage{Source: src, Body: env.Body, ReceivedAt: received.UTC()},
	}, nil
}

// flush processes the batch grouped by user, preserving delivery order
// within each user.
func (c *Consumer) flush(ctx context.Context, batch []pending) {
	var users []string
	groups := make(map[string][]pending)
	for _, p := range batch {
		if _, ok := groups[p.userID]; !ok {
			users = append(users, p.userID)
		}
		groups[p.userID] = append(groups[p.userID], p)
	}

	for _, user := range users {
		group := groups[user]
		msgs := make([]model.RawMessage, len(group))
		for i, p := range group {
			msgs[i] = p.msg
		}

		sum, err := c.proc.ProcessMessages(ctx, user, msgs)
		if err != nil && (errors.Is(err, model.ErrRepository) || ctx.Err() != nil) {
			c.logger.Warn("inbox batch failed, requeueing", "user", user, "messages", len(group), "error", err)
			c.requeue(group)
			continue
		}
		if err != nil {
			c.logger.Error("inbox batch failed", "user", user, "messages", len(group), "error", err)
		}
		for _, p := range group {
			if ackErr := p.delivery.Ack(false); ackErr != nil {
				c.logger.Error("ack failed", "delivery_tag", p.delivery.DeliveryTag, "error", ackErr)
			}
		}
		c.logger.Info("inbox batch processed", "user", user, "messages", len(group), "found", sum.Found, "added", sum.Added)
	}
}

func (c *Consumer) requeue(batch []pending) {
	for _, p := range batch {
		if err := p.delivery.Nack(false, true); err != nil {
			c.logger.Error("nack failed", "delivery_tag", p.delivery.DeliveryTag, "error", err)
		}
	}
}
