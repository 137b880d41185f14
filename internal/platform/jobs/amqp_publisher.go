package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hanko-field/orderflow/internal/services"
)

const defaultAMQPExchange = "notifications_fanout"

// AMQPConnection is the subset of a RabbitMQ connection the publisher needs.
type AMQPConnection interface {
	Channel() (AMQPChannel, error)
	Close() error
	IsClosed() bool
}

// AMQPChannel is the subset of a RabbitMQ channel the publisher needs.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConnection struct {
	conn   *amqp.Connection
	mu     sync.RWMutex
	closed bool
}

type amqpChannel struct {
	ch *amqp.Channel
}

// DialAMQP connects to the broker at url.
func DialAMQP(url string) (AMQPConnection, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("amqp: url is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: connect: %w", err)
	}
	return &amqpConnection{conn: conn}, nil
}

func (c *amqpConnection) Channel() (AMQPChannel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, errors.New("amqp: connection is closed")
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}

func (c *amqpConnection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed || c.conn.IsClosed()
}

func (ch *amqpChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return ch.ch.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (ch *amqpChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return ch.ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func (ch *amqpChannel) Close() error {
	return ch.ch.Close()
}

// AMQPNotificationPublisher publishes notifications to a fanout exchange. The routing key is the
// notification kind so topic-bound consumers can filter if the exchange type changes.
type AMQPNotificationPublisher struct {
	conn     AMQPConnection
	exchange string
	marshal  func(any) ([]byte, error)
}

var _ services.NotificationPublisher = (*AMQPNotificationPublisher)(nil)

// NewAMQPNotificationPublisher constructs a RabbitMQ backed notification publisher.
func NewAMQPNotificationPublisher(conn AMQPConnection, exchange string) (*AMQPNotificationPublisher, error) {
	if conn == nil {
		return nil, errors.New("amqp notification publisher: connection is required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = defaultAMQPExchange
	}
	return &AMQPNotificationPublisher{conn: conn, exchange: exchange, marshal: json.Marshal}, nil
}

// PublishNotification publishes a persistent JSON message and returns the notification id.
func (p *AMQPNotificationPublisher) PublishNotification(ctx context.Context, message services.NotificationMessage) (string, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return "", err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("amqp: declare exchange %s: %w", p.exchange, err)
	}

	body, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	headers := amqp.Table{}
	for key, value := range notificationAttributes(message) {
		headers[key] = value
	}

	err = ch.PublishWithContext(ctx, p.exchange, string(message.Kind), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    message.ID,
		Timestamp:    message.OccurredAt,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("amqp: publish notification: %w", err)
	}
	return message.ID, nil
}
