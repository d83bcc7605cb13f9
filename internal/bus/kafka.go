package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/opensource-web3/kestrel/internal/domain"
)

// KafkaBus implements EventBus using Kafka via sarama.
// Used as the Enterprise tier event bus. All chains share the Kafka
// topics; the chain id travels as the message key so a chain's events
// land on the same partition, and subscribers filter on the envelope.
type KafkaBus struct {
	mu            sync.Mutex
	producer      sarama.SyncProducer
	brokers       []string
	groupID       string
	subscriptions map[string]*kafkaSubscription
	closed        bool
}

type kafkaSubscription struct {
	id      string
	chainID string
	topic   string
	group   sarama.ConsumerGroup
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewKafkaBus creates a new Kafka-based event bus.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "kestrel"
	}

	pc := sarama.NewConfig()

	// Reliability-oriented defaults
	pc.Producer.RequiredAcks = sarama.WaitForAll
	pc.Producer.Retry.Max = 10
	pc.Producer.Retry.Backoff = 200 * time.Millisecond

	// SyncProducer must have Return.Successes=true
	pc.Producer.Return.Successes = true
	pc.Producer.Return.Errors = true

	// Idempotent producer requires acks=all and one in-flight request.
	pc.Producer.Idempotent = true
	pc.Net.MaxOpenRequests = 1

	// Hash on the message key so one chain maps to one partition.
	pc.Producer.Partitioner = sarama.NewHashPartitioner

	pc.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(brokers, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	slog.Info("Kafka connected",
		"brokers", brokers,
		"group_id", groupID,
	)

	return &KafkaBus{
		producer:      producer,
		brokers:       brokers,
		groupID:       groupID,
		subscriptions: make(map[string]*kafkaSubscription),
	}, nil
}

// Publish sends a message to a Kafka topic and waits for broker ACK.
func (b *KafkaBus) Publish(ctx context.Context, chainID string, topic string, payload []byte) error {
	if chainID == "" {
		return fmt.Errorf("chainID is required")
	}

	// Create message envelope
	msg := &domain.Message{
		ID:        uuid.New().String(),
		ChainID:   chainID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(chainID),
		Value: sarama.ByteEncoder(data),
	})
	return err
}

// Subscribe registers a handler for a Kafka topic.
// Each subscription runs its own consumer group so independent
// subscribers all see every message.
func (b *KafkaBus) Subscribe(ctx context.Context, chainID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if chainID == "" {
		return nil, fmt.Errorf("chainID is required")
	}

	cc := sarama.NewConfig()
	cc.Version = sarama.V2_1_0_0
	cc.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cc.Consumer.Offsets.Initial = sarama.OffsetOldest
	cc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(b.brokers, b.groupID+"."+chainID+"."+topic, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	sub := &kafkaSubscription{
		id:      uuid.New().String(),
		chainID: chainID,
		topic:   topic,
		group:   group,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	consumer := &kafkaConsumer{chainID: chainID, handler: handler}

	// Consume returns on rebalance; loop until the subscription is cancelled.
	go func() {
		defer close(sub.done)
		for {
			if err := group.Consume(subCtx, []string{topic}, consumer); err != nil {
				if subCtx.Err() != nil {
					return
				}
				slog.Error("kafka consume error",
					"topic", topic,
					"error", err,
				)
			}
			if subCtx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range group.Errors() {
			slog.Error("kafka consumer group error",
				"topic", topic,
				"error", err,
			)
		}
	}()

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub, nil
}

// Request is not supported on Kafka; the scoring pipeline only uses
// publish/subscribe on this tier.
func (b *KafkaBus) Request(ctx context.Context, chainID string, topic string, payload []byte) ([]byte, error) {
	return nil, fmt.Errorf("request-reply is not supported on the kafka bus")
}

// Ping checks Kafka connectivity by refreshing broker metadata.
func (b *KafkaBus) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	client, err := sarama.NewClient(b.brokers, sarama.NewConfig())
	if err != nil {
		return fmt.Errorf("kafka not reachable: %w", err)
	}
	defer client.Close()
	return client.RefreshMetadata()
}

// Close shuts down all consumer groups and the producer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subscriptions {
		sub.cancel()
		<-sub.done
		_ = sub.group.Close()
	}
	b.subscriptions = make(map[string]*kafkaSubscription)

	return b.producer.Close()
}

// kafkaConsumer adapts a MessageHandler to sarama's consumer group API.
type kafkaConsumer struct {
	chainID string
	handler domain.MessageHandler
}

func (c *kafkaConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *kafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *kafkaConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for m := range claim.Messages() {
		var msg domain.Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			slog.Error("failed to unmarshal kafka message",
				"topic", m.Topic,
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
			sess.MarkMessage(m, "")
			continue
		}

		// Topics are shared across chains; skip other chains' events.
		if msg.ChainID != c.chainID {
			sess.MarkMessage(m, "")
			continue
		}

		if err := c.handler(sess.Context(), &msg); err != nil {
			slog.Error("handler error",
				"topic", m.Topic,
				"message_id", msg.ID,
				"error", err,
			)
		}
		sess.MarkMessage(m, "")
	}
	return nil
}

var _ sarama.ConsumerGroupHandler = (*kafkaConsumer)(nil)

// Unsubscribe stops the consumer group.
func (s *kafkaSubscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	return s.group.Close()
}

// Topic returns the subscribed topic.
func (s *kafkaSubscription) Topic() string {
	return s.topic
}
