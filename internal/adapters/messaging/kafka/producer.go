// Package kafka implements the EventPublisher port on Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/legennd48/bazary/internal/core/domain"
)

// Broker publishes transaction lifecycle events. Records are keyed by
// transaction id so consumers see all events of one transaction in order.
type Broker struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewBroker creates a new Kafka broker instance and verifies connectivity.
func NewBroker(bootstrapServers []string, topic string, logger *slog.Logger) (*Broker, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(bootstrapServers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(10 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	if err := client.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}

	return &Broker{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// PublishTransactionEvent produces one event asynchronously. Delivery
// failures are logged, not returned: the transaction store is the source of
// truth and the event stream is derived.
func (b *Broker) PublishTransactionEvent(ctx context.Context, event domain.TransactionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(event.TransactionID.String()),
		Value: payload,
	}

	b.wg.Add(1)
	b.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer b.wg.Done()
		if err != nil {
			b.logger.Error("failed to deliver transaction event", "topic", r.Topic, "error", err)
		} else {
			b.logger.Debug("transaction event delivered", "topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
		}
	})

	return nil
}

// Close waits for in-flight deliveries and stops the producer.
func (b *Broker) Close() {
	b.logger.Info("waiting for in-flight kafka deliveries...")
	b.wg.Wait()
	b.client.Close()
	b.logger.Info("kafka client stopped")
}
