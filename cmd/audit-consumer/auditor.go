package main

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

type AuditSink interface {
	LogEvent(ctx context.Context, messageID, action string, guestID int64, data map[string]interface{}) error
}

// Acknowledger is the part of amqp.Delivery the auditor settles with.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type Auditor struct {
	sink   AuditSink
	logger observability.Logger
}

func NewAuditor(sink AuditSink, logger observability.Logger) *Auditor {
	return &Auditor{sink: sink, logger: logger}
}

func (a *Auditor) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				a.logger.Warn("delivery channel closed")
				return
			}
			a.Handle(ctx, d.RoutingKey, d.MessageId, d.Body, &d)
		}
	}
}

// Handle stores one event. Malformed bodies are dropped, storage failures
// are requeued.
func (a *Auditor) Handle(ctx context.Context, routingKey, messageID string, body []byte, ack Acknowledger) {
	log := a.logger.WithField("routing_key", routingKey).WithField("message_id", messageID)

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		log.WithError(err).Warn("dropping malformed event")
		ack.Nack(false, false)
		return
	}
	var guest struct {
		GuestID int64 `json:"guestId"`
	}
	_ = json.Unmarshal(body, &guest)

	if err := a.sink.LogEvent(ctx, messageID, routingKey, guest.GuestID, data); err != nil {
		log.WithError(err).Error("failed to store audit event")
		ack.Nack(false, true)
		return
	}
	ack.Ack(false)
}
