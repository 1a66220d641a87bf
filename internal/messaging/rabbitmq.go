package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/config"
)

const keyHeader = "x-message-key"

// rabbitClient publishes to a topic exchange with the messaging topic as
// routing key and consumes from a durable queue bound to it. The connection
// is opened on first use and reopened after it drops.
type rabbitClient struct {
	url      string
	exchange string
	queue    string
	topic    string
	prefetch int
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	pub  *amqp.Channel
}

func newRabbitClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *rabbitClient {
	r := &rabbitClient{
		url:      cfg.Messaging.RabbitMQ.URL,
		exchange: cfg.Messaging.RabbitMQ.Exchange,
		queue:    cfg.Messaging.RabbitMQ.Queue,
		topic:    cfg.Messaging.Topic,
		prefetch: cfg.Messaging.RabbitMQ.Prefetch,
		logger:   logger,
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing rabbitmq client")
			return r.close()
		},
	})
	return r
}

func (r *rabbitClient) Topic() string { return r.topic }

func (r *rabbitClient) Publish(ctx context.Context, key []byte, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLocked(); err != nil {
		return err
	}
	if r.pub == nil || r.pub.IsClosed() {
		ch, err := r.conn.Channel()
		if err != nil {
			return fmt.Errorf("open publish channel: %w", err)
		}
		r.pub = ch
	}

	return r.pub.PublishWithContext(ctx, r.exchange, r.topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{keyHeader: string(key)},
		Body:         value,
	})
}

func (r *rabbitClient) Consume(ctx context.Context, handler Handler) error {
	ch, err := r.consumeChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.ConsumeWithContext(ctx, r.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, fromDelivery(d, r.topic)); err != nil {
				r.logger.Error("message handler failed", zap.Error(err), zap.Uint64("delivery_tag", d.DeliveryTag))
				// Requeue once; a redelivered failure is dropped.
				if nackErr := d.Nack(false, !d.Redelivered); nackErr != nil {
					r.logger.Warn("nack failed", zap.Error(nackErr))
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				r.logger.Warn("ack failed", zap.Error(err))
			}
		}
	}
}

func (r *rabbitClient) consumeChannel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLocked(); err != nil {
		return nil, err
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(r.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", r.queue, err)
	}
	if err := ch.QueueBind(r.queue, r.topic, r.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue %s: %w", r.queue, err)
	}
	return ch, nil
}

func (r *rabbitClient) ensureLocked() error {
	if r.conn != nil && !r.conn.IsClosed() {
		return nil
	}
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(r.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}
	r.conn = conn
	r.pub = ch
	r.logger.Info("rabbitmq connected", zap.String("exchange", r.exchange))
	return nil
}

func (r *rabbitClient) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pub != nil {
		_ = r.pub.Close()
		r.pub = nil
	}
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

func fromDelivery(d amqp.Delivery, topic string) Message {
	msg := Message{
		Topic: d.RoutingKey,
		Value: append([]byte(nil), d.Body...),
		Time:  d.Timestamp,
	}
	if msg.Topic == "" {
		msg.Topic = topic
	}
	if len(d.Headers) > 0 {
		msg.Headers = make(map[string]string, len(d.Headers))
		for k, v := range d.Headers {
			msg.Headers[k] = fmt.Sprint(v)
		}
		if key, ok := d.Headers[keyHeader].(string); ok {
			msg.Key = []byte(key)
		}
	}
	return msg
}
