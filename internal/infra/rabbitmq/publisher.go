package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	amqp "github.com/rabbitmq/amqp091-go"
)

const dlqReasonHeader = "x-dlq-reason"

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

type StatusPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub, routingKey: StatusRoutingKey}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.publish(ctx, sp.routingKey, msg)
}

// RequestPublisher enqueues extraction requests for the worker.
type RequestPublisher struct {
	pub *Publisher
}

func NewRequestPublisher(pub *Publisher) *RequestPublisher {
	return &RequestPublisher{pub: pub}
}

func (rp *RequestPublisher) PublishRequest(ctx context.Context, msg []byte) error {
	return rp.pub.publish(ctx, ExtractionRoutingKey, msg)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg []byte) error {
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, persistent(ctx, msg))
}

// persistent wraps a JSON body as a durable message carrying the caller's
// trace context.
func persistent(ctx context.Context, body []byte) amqp.Publishing {
	return amqp.Publishing{
		Headers:      injectTrace(ctx),
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}
}

// Close releases the publisher's channel. The connection stays open.
func (p *Publisher) Close() error {
	return p.channel.Close()
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

// PublishToDLQ sends msg straight to the dead letter queue through the
// default exchange, recording why it was rejected.
func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	m := persistent(ctx, msg)
	m.Headers[dlqReasonHeader] = reason
	return dp.pub.channel.PublishWithContext(ctx, "", dp.queue, false, false, m)
}

var (
	_ port.RequestPublisher = (*RequestPublisher)(nil)
	_ port.StatusPublisher  = (*StatusPublisher)(nil)
	_ port.DLQPublisher     = (*DLQPublisher)(nil)
)
