package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Message is one record to publish. Records sharing a Key land on one partition, which keeps the
// events of a single order in order.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

type Producer interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers  []string
	ClientID string
}

type producer struct {
	syncProducer sarama.SyncProducer
	logger       *zap.Logger
}

// NewProducer builds an idempotent sync producer: a retried send after a lost ack is not written twice.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (Producer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	p, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return &producer{syncProducer: p, logger: logger}, nil
}

func (p *producer) Publish(ctx context.Context, msg Message) error {
	record := &sarama.ProducerMessage{
		Topic:   msg.Topic,
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: recordHeaders(ctx, msg.Headers),
	}
	if msg.Key != "" {
		record.Key = sarama.StringEncoder(msg.Key)
	}

	partition, offset, err := p.syncProducer.SendMessage(record)
	if err != nil {
		return fmt.Errorf("error sending message to %s: %w", msg.Topic, err)
	}

	mylogger.Debug(
		ctx,
		p.logger,
		"Message sent",
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func (p *producer) Close() error {
	return p.syncProducer.Close()
}

// recordHeaders merges the caller's headers with the trace context of ctx.
func recordHeaders(ctx context.Context, extra map[string]string) []sarama.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier)+len(extra))
	for k, v := range extra {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	return headers
}
