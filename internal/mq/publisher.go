package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Shipyard/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested    MessageType = "run.requested"
	MessageTypeRunStarted      MessageType = "run.started"
	MessageTypeRunFinished     MessageType = "run.finished"
	MessageTypeJobFinished     MessageType = "job.finished"
	MessageTypeReleaseFinished MessageType = "release.finished"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunRequestPayload — запрос на запуск pipeline.
type RunRequestPayload struct {
	Pipeline string           `json:"pipeline"`
	Event    domain.EventKind `json:"event_kind"`
	Ref      string           `json:"ref"`
}

// RunEventPayload — payload для run.started и run.finished.
type RunEventPayload struct {
	RunID      uuid.UUID        `json:"run_id"`
	Pipeline   string           `json:"pipeline"`
	Event      domain.EventKind `json:"event_kind"`
	Ref        string           `json:"ref"`
	Status     domain.RunStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
}

// JobEventPayload — payload для job.finished.
type JobEventPayload struct {
	RunID      uuid.UUID        `json:"run_id"`
	InstanceID uuid.UUID        `json:"instance_id"`
	Job        string           `json:"job"`
	Label      string           `json:"label"`
	Status     domain.JobStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	SkipReason string           `json:"skip_reason,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
}

// ReleaseEventPayload — payload для release.finished.
type ReleaseEventPayload struct {
	RunID  uuid.UUID           `json:"run_id"`
	State  domain.ReleaseState `json:"state"`
	Tag    string              `json:"tag,omitempty"`
	Reason string              `json:"reason,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, exchange, routingKey, msg)
}

// PublishRunRequested публикует запрос на запуск pipeline.
// Потребитель: shipyard-server.
func (p *Publisher) PublishRunRequested(ctx context.Context, payload RunRequestPayload) error {
	return p.PublishJSON(ctx, ExchangeRuns, RoutingKeyRequested, MessageTypeRunRequested, payload)
}
