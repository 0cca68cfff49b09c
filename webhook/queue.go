package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueConfig holds the broker settings for queued webhook delivery.
type QueueConfig struct {
	URL        string        `yaml:"url"`
	Exchange   string        `yaml:"exchange"`
	Queue      string        `yaml:"queue"`
	RoutingKey string        `yaml:"routing_key"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	Prefetch   int           `yaml:"prefetch"`
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Exchange == "" {
		c.Exchange = "humanpages.webhooks"
	}
	if c.Queue == "" {
		c.Queue = "humanpages.webhooks.deliveries"
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "webhook.delivery"
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 10 * time.Second
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 16
	}
	return c
}

// publisher is the subset of *amqp.Channel QueueNotifier needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Broker owns one AMQP connection and channel with the webhook topology declared.
type Broker struct {
	cfg     QueueConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// DialBroker connects and declares exchange, queue and binding.
func DialBroker(cfg QueueConfig, logger *slog.Logger) (*Broker, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Heartbeat: cfg.Heartbeat, Locale: "en_US"})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}
	logger.Info("RabbitMQ webhook broker initialized", slog.String("exchange", cfg.Exchange), slog.String("queue", cfg.Queue))
	return &Broker{cfg: cfg, conn: conn, channel: ch, logger: logger}, nil
}

// Notifier returns a Notifier that publishes to this broker.
func (b *Broker) Notifier() *QueueNotifier {
	return NewQueueNotifier(b.channel, b.cfg, b.logger)
}

// Consumer returns a consumer that drains this broker's queue into d.
func (b *Broker) Consumer(d *HTTPDispatcher) *QueueConsumer {
	return &QueueConsumer{broker: b, dispatcher: d, logger: b.logger.With("component", "webhook-consumer")}
}

func (b *Broker) Close() error {
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			b.logger.Error("Failed to close RabbitMQ channel", slog.Any("error", err))
		}
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// QueueNotifier publishes deliveries as persistent JSON messages so a
// separate consumer process can send them.
type QueueNotifier struct {
	pub    publisher
	cfg    QueueConfig
	logger *slog.Logger
}

func NewQueueNotifier(pub publisher, cfg QueueConfig, logger *slog.Logger) *QueueNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueNotifier{pub: pub, cfg: cfg.withDefaults(), logger: logger}
}

func (n *QueueNotifier) Notify(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	err = n.pub.PublishWithContext(ctx, n.cfg.Exchange, n.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.Event.ID,
		Type:         d.Event.Type,
		Timestamp:    time.Now(),
	})
	if err != nil {
		n.logger.Error("Failed to publish webhook delivery", slog.Any("error", err), slog.String("delivery", d.Event.ID))
		return fmt.Errorf("failed to publish webhook delivery: %w", err)
	}
	return nil
}

// deliverer is satisfied by *HTTPDispatcher.
type deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// QueueConsumer delivers queued webhooks over HTTP.
type QueueConsumer struct {
	broker     *Broker
	dispatcher deliverer
	logger     *slog.Logger
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *QueueConsumer) Run(ctx context.Context) error {
	if err := c.broker.channel.Qos(c.broker.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	msgs, err := c.broker.channel.Consume(c.broker.cfg.Queue, "humanpages-webhooks", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume messages: %w", err)
	}
	c.logger.Info("Started consuming webhook deliveries", slog.String("queue", c.broker.cfg.Queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// handle acks on success and on undecodable messages; failed sends are
// nacked without requeue because the dispatcher already retried.
func (c *QueueConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	var d Delivery
	if err := json.Unmarshal(msg.Body, &d); err != nil {
		c.logger.Error("Discarding malformed webhook message", slog.Any("error", err))
		_ = msg.Ack(false)
		return
	}
	if err := c.dispatcher.Deliver(ctx, d); err != nil {
		c.logger.Warn("Webhook delivery failed", slog.String("delivery", d.Event.ID), slog.Any("error", err))
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}
