package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/course-store/internal/service"
	generalDomain "github.com/sakashimaa/course-store/pkg/domain"
	"github.com/sakashimaa/course-store/pkg/kafka"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/course-store/pkg/outbox/domain"
	"go.uber.org/zap"
)

type Consumer struct {
	service service.OrderStatsService
	group   kafka.ConsumerGroupConfig
	logger  *zap.Logger
}

// NewConsumer subscribes the stats projection to order events. Topics in group are ignored.
func NewConsumer(service service.OrderStatsService, group kafka.ConsumerGroupConfig, logger *zap.Logger) *Consumer {
	group.Topics = []string{outboxDomain.TopicOrderEvents}

	return &Consumer{
		service: service,
		group:   group,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	return kafka.NewConsumerGroup(c.group, c.processMessage, c.logger).Run(ctx)
}

// processMessage returns an error only for failures worth redelivering. Payloads that can never
// be decoded are logged and acknowledged.
func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Debug(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	envelope, err := outboxDomain.DecodeEnvelope(msg.Value, nil)
	if err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope, dropping message", zap.Error(err))
		return nil
	}

	switch envelope.Event {
	case generalDomain.EventOrderCompleted:
		var event generalDomain.OrderCompletedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Failed to unmarshal payload, dropping message", zap.Error(err))
			return nil
		}

		err := c.service.HandleOrderCompleted(ctx, envelope.EventID, &event)
		if errors.Is(err, service.ErrMissingEventID) {
			mylogger.Error(ctx, c.logger, "Order event without id, dropping message", zap.String("order_number", event.OrderNumber))
			return nil
		}
		if err != nil {
			mylogger.Error(ctx, c.logger, "Failed to handle order completed event", zap.Error(err))
			return err
		}

		return nil
	default:
		mylogger.Debug(ctx, c.logger, "Ignoring event", zap.String("event", envelope.Event))
		return nil
	}
}
