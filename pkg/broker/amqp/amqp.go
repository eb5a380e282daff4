// Package amqp implements broker.Publisher and broker.Subscriber over
// RabbitMQ, carrying the clone/claim envelopes over a topic exchange with
// routing-key-bound queues.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vamp-labs/control-plane/pkg/broker"
)

// Config names the exchange and per-route queue bindings.
type Config struct {
	URL        string
	Exchange   string
	CloneQueue string
	ClaimQueue string
}

// Client is a single AMQP connection/channel pair shared by Publish and
// Subscribe. It is not safe for concurrent Subscribe calls on different
// routing keys from the same Client value; callers needing both routes
// running concurrently dial one Client per route.
type Client struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queues   map[broker.RoutingKey]string
	logger   *log.Logger
}

// Dial connects, opens a channel and declares the topic exchange.
func Dial(cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[Broker] ", log.LstdFlags)
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", cfg.Exchange, err)
	}

	c := &Client{conn: conn, ch: ch, exchange: cfg.Exchange, queues: map[broker.RoutingKey]string{}, logger: logger}

	for _, binding := range []struct {
		queue string
		key   broker.RoutingKey
	}{
		{cfg.CloneQueue, broker.RoutingKeyClone},
		{cfg.ClaimQueue, broker.RoutingKeyClaim},
	} {
		if binding.queue == "" {
			continue
		}
		if err := c.declareAndBind(binding.queue, binding.key); err != nil {
			c.Close()
			return nil, err
		}
		c.queues[binding.key] = binding.queue
	}

	return c, nil
}

func (c *Client) declareAndBind(queue string, key broker.RoutingKey) error {
	if _, err := c.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp: declare queue %s: %w", queue, err)
	}
	if err := c.ch.QueueBind(queue, string(key), c.exchange, false, nil); err != nil {
		return fmt.Errorf("amqp: bind queue %s to %s: %w", queue, key, err)
	}
	return nil
}

// Publish implements broker.Publisher.
func (c *Client) Publish(ctx context.Context, key broker.RoutingKey, env broker.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("amqp: marshal envelope: %w", err)
	}
	err = c.ch.PublishWithContext(ctx, c.exchange, string(key), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish %s: %w", key, err)
	}
	return nil
}

// Subscribe implements broker.Subscriber. It consumes from the queue bound
// to key until ctx is canceled; handler errors nack the delivery with
// requeue=true so a transient failure is retried, matching the indexer's
// own exponential backoff philosophy rather than dropping messages on first
// failure.
func (c *Client) Subscribe(ctx context.Context, key broker.RoutingKey, handler func(context.Context, broker.Delivery) error) error {
	queue, ok := c.queues[key]
	if !ok {
		return fmt.Errorf("amqp: no queue bound for routing key %s", key)
	}

	msgs, err := c.ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp: consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return fmt.Errorf("amqp: delivery channel for %s closed", queue)
			}
			var env broker.Envelope
			if err := json.Unmarshal(m.Body, &env); err != nil {
				c.logger.Printf("malformed envelope on %s, dropping: %v", queue, err)
				_ = m.Nack(false, false)
				continue
			}
			delivery := broker.Delivery{
				Envelope: env,
				Ack:      func() error { return m.Ack(false) },
				Nack:     func(requeue bool) error { return m.Nack(false, requeue) },
			}
			if err := handler(ctx, delivery); err != nil {
				c.logger.Printf("handler error on %s: %v", queue, err)
				_ = delivery.Nack(true)
				continue
			}
		}
	}
}

// Close tears down the channel and connection.
func (c *Client) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return fmt.Errorf("amqp: close channel: %w", err)
	}
	return c.conn.Close()
}

var (
	_ broker.Publisher  = (*Client)(nil)
	_ broker.Subscriber = (*Client)(nil)
)
