/**
 * @description
 * This package provides a simple producer for publishing ledger events to
 * RabbitMQ. It encapsulates the logic for connecting to RabbitMQ and
 * publishing a message to the configured topic exchange.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 * - internal/domain: Event payload shapes.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/vaultbank/ledger-service/internal/domain"
)

// Routing keys on the topic exchange. Transfer and cash keys carry the final
// transaction status as their last segment, so consumers can bind
// `ledger.transfer.failed` without filtering in application code.
const (
	RoutingKeyTransferPrefix = "ledger.transfer"
	RoutingKeyCashPrefix     = "ledger.cash"
	RoutingKeyBillPaid       = "ledger.bill.paid"
	RoutingKeyUserRegistered = "auth.user.registered"
)

// TransferRoutingKey returns the routing key for a transfer event with the
// given final status, e.g. "ledger.transfer.completed".
func TransferRoutingKey(status string) string {
	return RoutingKeyTransferPrefix + "." + status
}

// CashRoutingKey returns the routing key for a cash movement event with the
// given final status.
func CashRoutingKey(status string) string {
	return RoutingKeyCashPrefix + "." + status
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error
	PublishCashEvent(ctx context.Context, event domain.CashEvent) error
	PublishBillPaidEvent(ctx context.Context, event domain.BillPaidEvent) error
	PublishUserRegisteredEvent(ctx context.Context, event domain.UserRegisteredEvent) error
	Close()
}

// EventProducerFallback is a minimal no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" routing_key=%s", routingKey)
	return nil
}

func (p *EventProducerFallback) PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error {
	return p.Publish(ctx, TransferRoutingKey(event.Status), event)
}

func (p *EventProducerFallback) PublishCashEvent(ctx context.Context, event domain.CashEvent) error {
	return p.Publish(ctx, CashRoutingKey(event.Status), event)
}

func (p *EventProducerFallback) PublishBillPaidEvent(ctx context.Context, event domain.BillPaidEvent) error {
	return p.Publish(ctx, RoutingKeyBillPaid, event)
}

func (p *EventProducerFallback) PublishUserRegisteredEvent(ctx context.Context, event domain.UserRegisteredEvent) error {
	return p.Publish(ctx, RoutingKeyUserRegistered, event)
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer bound to the
// given topic exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends a message to the configured exchange with a routing key.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	// Ensure the exchange exists (durable topic)
	if err := p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", p.exchange, err)
		// Attempt simple channel reopen once
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				if err2 := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err2 != nil {
					return err2
				}
			} else {
				return chErr
			}
		} else {
			return err
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" routing_key=%s err=%v", routingKey, err)
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        jsonBody,
		},
	)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" routing_key=%s err=%v", routingKey, err)
		// One-shot retry: reopen channel and try again
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				// re-declare exchange and retry
				if exErr := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); exErr == nil {
					err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
						ContentType: "application/json",
						Timestamp:   time.Now(),
						Body:        jsonBody,
					})
					if err == nil {
						return nil
					}
				}
			}
		}
		return err
	}
	return nil
}

// PublishLedgerEvent publishes a transfer status event.
func (p *EventProducer) PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error {
	return p.Publish(ctx, TransferRoutingKey(event.Status), event)
}

// PublishCashEvent publishes a cash deposit or withdrawal event.
func (p *EventProducer) PublishCashEvent(ctx context.Context, event domain.CashEvent) error {
	return p.Publish(ctx, CashRoutingKey(event.Status), event)
}

// PublishBillPaidEvent publishes a bill payment event.
func (p *EventProducer) PublishBillPaidEvent(ctx context.Context, event domain.BillPaidEvent) error {
	return p.Publish(ctx, RoutingKeyBillPaid, event)
}

// PublishUserRegisteredEvent publishes a registration event.
func (p *EventProducer) PublishUserRegisteredEvent(ctx context.Context, event domain.UserRegisteredEvent) error {
	return p.Publish(ctx, RoutingKeyUserRegistered, event)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
