// Package service holds the backend's attendance logic, the per-session
// live fan-out hub and the broker publisher.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/queue"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// Publisher announces verified check-ins.
type Publisher interface {
	PublishVerified(ctx context.Context, ev queue.AttendanceVerifiedEvent) error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishVerified(context.Context, queue.AttendanceVerifiedEvent) error { return nil }

// AMQPPublisher publishes to the durable attendance.verified queue.  It dials
// per message; check-ins are rare enough that a pooled connection buys
// nothing.
type AMQPPublisher struct {
	URL string
	Log *zap.Logger
}

// PublishVerified never panics; failures are logged and returned so the
// caller can ignore them.
func (p *AMQPPublisher) PublishVerified(ctx context.Context, ev queue.AttendanceVerifiedEvent) error {
	log := utils.OrNop(p.Log)
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue.AttendanceQueueName, // name
		true,                      // durable
		false,                     // autoDelete
		false,                     // exclusive
		false,                     // noWait
		nil,                       // args
	); err != nil {
		log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.AttendanceQueueName, false, false, pub); err != nil {
		log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}
