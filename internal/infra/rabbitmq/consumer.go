package rabbitmq

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type MessageHandler func(ctx context.Context, body []byte) error

const (
	ExtractionRoutingKey = "frames.extraction"
	StatusRoutingKey     = "frames.status"

	maxBackoff = time.Minute
)

type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	exchange    string
	workerCount int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

// NewConsumer dials the broker, declares the extraction topology and
// limits unacknowledged deliveries to the configured prefetch.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	c := &Consumer{
		conn:        conn,
		queue:       cfg.Queue,
		exchange:    cfg.Exchange,
		workerCount: max(cfg.WorkerCount, 1),
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger.With(zap.String("queue", cfg.Queue)),
	}
	if c.channel, err = conn.Channel(); err != nil {
		c.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(c.channel, cfg); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.channel.Qos(cfg.Prefetch, 0, false); err != nil {
		c.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return c, nil
}

// declareTopology sets up the exchange, the extraction, status and dead
// letter queues and their bindings. Declarations are idempotent.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		_, err = ch.QueueDeclare(q, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(cfg.Queue, ExtractionRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind extraction queue: %w", err)
	}
	if err := ch.QueueBind(cfg.StatusQueue, StatusRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}

// Start runs workerCount goroutines over one delivery stream and blocks
// until ctx is done or the broker closes the channel. In-flight
// deliveries finish before it returns.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	closed := c.channel.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("starting worker pool", zap.Int("workers", c.workerCount))
	for id := range c.workerCount {
		c.wg.Add(1)
		go c.worker(ctx, c.logger.With(zap.Int("worker_id", id)), deliveries)
	}

	var cause error
	select {
	case <-ctx.Done():
	case amqpErr := <-closed:
		cause = amqp.ErrClosed
		if amqpErr != nil {
			cause = fmt.Errorf("channel closed: %w", amqpErr)
		}
	}
	c.logger.Info("waiting for in-flight deliveries")
	c.wg.Wait()
	return cause
}

func (c *Consumer) worker(ctx context.Context, log *zap.Logger, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Debug("delivery stream ended")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	msgCtx, span := otel.Tracer("rabbitmq").Start(extractTrace(ctx, d.Headers), "Consumer.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", c.queue),
			attribute.Bool("messaging.rabbitmq.redelivered", d.Redelivered),
		),
	)
	defer span.End()

	err := c.handler(msgCtx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("ack failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(ackErr))
		}
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attempt := attemptOf(d)
	delay := c.calculateBackoff(attempt)
	log.Warn("message processing failed, requeueing after backoff",
		zap.Error(err),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	// On shutdown the message goes straight back for the next worker.
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
	if nackErr := d.Nack(false, true); nackErr != nil {
		log.Error("nack failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(nackErr))
	}
}

// attemptOf estimates how many times a delivery has been tried: dead
// letter history when present, otherwise 2 for a plain redelivery.
func attemptOf(d amqp.Delivery) int {
	if deaths, ok := d.Headers["x-death"].([]interface{}); ok && len(deaths) > 0 {
		return len(deaths) + 1
	}
	if d.Redelivered {
		return 2
	}
	return 1
}

// calculateBackoff doubles the base delay per attempt, capped at maxBackoff.
func (c *Consumer) calculateBackoff(attempt int) time.Duration {
	return min(c.baseDelay*time.Duration(math.Pow(2, float64(attempt-1))), maxBackoff)
}

// Close tears down the channel and then the connection.
func (c *Consumer) Close() error {
	if c.channel != nil && !c.channel.IsClosed() {
		_ = c.channel.Close()
	}
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
