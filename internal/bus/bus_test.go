package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/opensource-web3/kestrel/internal/domain"
)

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	chainID := "ethereum"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var received atomic.Bool
		var receivedMsg *domain.Message

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, chainID, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			receivedMsg = msg
			received.Store(true)
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		// Allow subscription to be active
		time.Sleep(10 * time.Millisecond)

		err = bus.Publish(ctx, chainID, "test.topic", []byte("hello"))
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		// Wait for message
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			// Success
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}

		if !received.Load() {
			t.Error("message not received")
		}

		if string(receivedMsg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(receivedMsg.Payload))
		}
		if receivedMsg.ChainID != chainID {
			t.Errorf("expected chainID '%s', got '%s'", chainID, receivedMsg.ChainID)
		}
	})

	t.Run("ChainIsolation", func(t *testing.T) {
		chain1 := "ethereum"
		chain2 := "arbitrum"

		var received1 atomic.Int32
		var received2 atomic.Int32

		bus.Subscribe(ctx, chain1, "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			return nil
		})

		bus.Subscribe(ctx, chain2, "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		// Publish to chain1
		bus.Publish(ctx, chain1, "isolation.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if received1.Load() != 1 {
			t.Errorf("ethereum should receive 1 message, got %d", received1.Load())
		}
		if received2.Load() != 0 {
			t.Errorf("arbitrum should receive 0 messages, got %d", received2.Load())
		}
	})

	t.Run("RequiresChainID", func(t *testing.T) {
		err := bus.Publish(ctx, "", "topic", []byte("data"))
		if err == nil {
			t.Error("expected error for empty chainID")
		}

		_, err = bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty chainID")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, chainID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, chainID, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()
		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, chainID, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		// Should still be 1 after unsubscribe
		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		bus.Subscribe(ctx, chainID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})

		bus.Subscribe(ctx, chainID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, chainID, "multi.topic", []byte("broadcast"))
		time.Sleep(50 * time.Millisecond)

		if count1.Load() != 1 || count2.Load() != 1 {
			t.Errorf("expected both subscribers to receive, got %d and %d", count1.Load(), count2.Load())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, chainID, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})

		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()
	chainID := "ethereum"

	bus.Subscribe(ctx, chainID, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	// Operations should fail after close
	if err := bus.Publish(ctx, chainID, "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}

	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 50,
		}

		bus, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		_, ok := bus.(*ChannelBus)
		if !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type: "zeromq",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	chainID := "ethereum"

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, chainID, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	time.Sleep(10 * time.Millisecond)

	// Publish many messages
	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, chainID, "load.topic", []byte("msg"))
	}

	// Wait for all messages
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}

// fakeGroupSession and fakeGroupClaim let the Kafka claim loop run
// without a broker.
type fakeGroupSession struct {
	ctx    context.Context
	marked atomic.Int32
}

func (s *fakeGroupSession) Claims() map[string][]int32              { return nil }
func (s *fakeGroupSession) MemberID() string                        { return "test-member" }
func (s *fakeGroupSession) GenerationID() int32                     { return 1 }
func (s *fakeGroupSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeGroupSession) Commit()                                 {}
func (s *fakeGroupSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeGroupSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked.Add(1)
}
func (s *fakeGroupSession) Context() context.Context { return s.ctx }

type fakeGroupClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeGroupClaim) Topic() string                            { return "test.topic" }
func (c *fakeGroupClaim) Partition() int32                         { return 0 }
func (c *fakeGroupClaim) InitialOffset() int64                     { return 0 }
func (c *fakeGroupClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeGroupClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func TestKafkaConsumerChainFilter(t *testing.T) {
	// Chains share Kafka topics; the envelope filter is what keeps
	// one chain's subscribers from seeing another chain's events.
	var handled atomic.Int32
	consumer := &kafkaConsumer{
		chainID: "ethereum",
		handler: func(ctx context.Context, msg *domain.Message) error {
			handled.Add(1)
			return nil
		},
	}

	envelope := func(chainID string) *sarama.ConsumerMessage {
		data, err := json.Marshal(&domain.Message{
			ID:      "msg-" + chainID,
			ChainID: chainID,
			Topic:   "test.topic",
			Payload: []byte("{}"),
		})
		if err != nil {
			t.Fatalf("marshal envelope: %v", err)
		}
		return &sarama.ConsumerMessage{Topic: "test.topic", Value: data}
	}

	sess := &fakeGroupSession{ctx: context.Background()}
	claim := &fakeGroupClaim{msgs: make(chan *sarama.ConsumerMessage, 4)}

	claim.msgs <- envelope("ethereum")
	claim.msgs <- envelope("arbitrum")
	claim.msgs <- envelope("ethereum")
	claim.msgs <- &sarama.ConsumerMessage{Topic: "test.topic", Value: []byte("not json")}
	close(claim.msgs)

	if err := consumer.ConsumeClaim(sess, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}

	if got := handled.Load(); got != 2 {
		t.Errorf("expected handler to run for 2 ethereum messages, got %d", got)
	}
	// Every message gets marked, including skipped and malformed ones.
	if got := sess.marked.Load(); got != 4 {
		t.Errorf("expected 4 marked messages, got %d", got)
	}
}
