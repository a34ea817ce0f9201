package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

type ConsumerGroupConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// Retries is how many extra times a failing message is handled before it is skipped.
	Retries      int
	RetryBackoff time.Duration
}

type ConsumerGroup struct {
	cfg     ConsumerGroupConfig
	handler HandlerFunc
	logger  *zap.Logger
}

func NewConsumerGroup(cfg ConsumerGroupConfig, handler HandlerFunc, logger *zap.Logger) *ConsumerGroup {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	return &ConsumerGroup{cfg: cfg, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled. It only returns an error when the group cannot be created.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, config)
	if err != nil {
		return fmt.Errorf("error creating consumer group %s: %w", c.cfg.GroupID, err)
	}

	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Warn(ctx, c.logger, "Consumer group error", zap.Error(err))
		}
	}()

	h := &claimHandler{
		handler: c.handler,
		retries: c.cfg.Retries,
		backoff: c.cfg.RetryBackoff,
		logger:  c.logger,
		tracer:  otel.Tracer("pkg/kafka/consumer"),
	}

	for {
		if err := group.Consume(ctx, c.cfg.Topics, h); err != nil {
			mylogger.Error(ctx, c.logger, "Error consuming in consumer loop", zap.Error(err))
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer", zap.String("group", c.cfg.GroupID))
			return nil
		}
	}
}

type claimHandler struct {
	handler HandlerFunc
	retries int
	backoff time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
}

func (h *claimHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if !h.process(session.Context(), msg) {
			// rebalance or shutdown: leave the offset for the next owner
			return nil
		}
		session.MarkMessage(msg, "")
	}

	return nil
}

// process handles msg, retrying failures with a fixed backoff. It returns false only when ctx ends
// before the message was settled; a message that keeps failing is logged and skipped.
func (h *claimHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	ctx, span := h.startSpan(ctx, msg)
	defer span.End()

	for attempt := 0; ; attempt++ {
		err := h.handler(ctx, msg)
		if err == nil {
			return true
		}

		span.RecordError(err)
		fields := []zap.Field{
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		}

		if attempt >= h.retries {
			mylogger.Error(ctx, h.logger, "Giving up on message", fields...)
			return true
		}

		mylogger.Warn(ctx, h.logger, "Failed to process message, retrying", fields...)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(h.backoff):
		}
	}
}

func (h *claimHandler) startSpan(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
}
