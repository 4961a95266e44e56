package kafka

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// Live-cluster tests. They are skipped unless KAFCAT_TEST_BROKERS names a
// reachable cluster:
//
//	KAFCAT_TEST_BROKERS=localhost:9092 go test ./internal/kafka/ -run TestIntegration

func integrationBrokers(t *testing.T) []string {
	t.Helper()

	env := os.Getenv("KAFCAT_TEST_BROKERS")
	if env == "" {
		t.Skip("KAFCAT_TEST_BROKERS not set")
	}
	return strings.Split(env, ",")
}

// createIntegrationTopic creates a uniquely named single-partition topic and
// waits until it shows up in metadata, so the first fetch does not race topic
// propagation.
func createIntegrationTopic(ctx context.Context, t *testing.T, engine Interface, auth AuthConfig) string {
	t.Helper()

	admin, err := engine.NewAdmin(ctx, auth)
	if err != nil {
		t.Fatalf("NewAdmin() error = %v", err)
	}
	defer func() {
		if err := admin.Close(); err != nil {
			t.Fatalf("close admin: %v", err)
		}
	}()

	topic := fmt.Sprintf("kafcat-it-%d", time.Now().UnixNano())
	if err := admin.CreateTopic(ctx, topic, 1); err != nil {
		t.Fatalf("CreateTopic(%q) error = %v", topic, err)
	}

	for {
		md, err := admin.Metadata(ctx, topic)
		if err == nil && len(md.Topics) == 1 {
			return topic
		}
		select {
		case <-ctx.Done():
			t.Fatalf("topic %q did not appear: %v", topic, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func produceIntegrationMessages(ctx context.Context, t *testing.T, engine Interface, auth AuthConfig, topic string, msgs []Message) {
	t.Helper()

	producer, err := engine.NewProducer(ctx, ProducerConfig{Auth: auth, Topic: topic})
	if err != nil {
		t.Fatalf("NewProducer() error = %v", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			t.Fatalf("close producer: %v", err)
		}
	}()

	for i, msg := range msgs {
		if err := producer.WriteOne(ctx, msg); err != nil {
			t.Fatalf("WriteOne(%d) error = %v", i, err)
		}
	}
}

func TestIntegrationProduceConsumeRoundTrip(t *testing.T) {
	brokers := integrationBrokers(t)
	auth := AuthConfig{Brokers: brokers}

	for _, name := range EngineNames() {
		t.Run(name, func(t *testing.T) {
			engine, err := LookupEngine(name)
			if err != nil {
				t.Fatalf("LookupEngine(%q) error = %v", name, err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			topic := createIntegrationTopic(ctx, t, engine, auth)
			produceIntegrationMessages(ctx, t, engine, auth, topic, []Message{
				{Key: []byte("k1"), Payload: []byte("v1"), Headers: map[string][]byte{"trace": []byte("abc")}},
				{Payload: []byte("v2")},
			})

			consumer, err := engine.NewConsumer(ctx, ConsumerConfig{Auth: auth, Topic: topic, ExitOnDone: true})
			if err != nil {
				t.Fatalf("NewConsumer() error = %v", err)
			}
			defer consumer.Close()

			if err := consumer.Assign(ctx, OffsetSpec{Kind: OffsetBeginning}); err != nil {
				t.Fatalf("Assign() error = %v", err)
			}

			first, err := consumer.ReceiveOne(ctx)
			if err != nil {
				t.Fatalf("ReceiveOne() error = %v", err)
			}
			if string(first.Key) != "k1" || string(first.Payload) != "v1" {
				t.Fatalf("first message = %q/%q, want k1/v1", first.Key, first.Payload)
			}
			if string(first.Headers["trace"]) != "abc" {
				t.Fatalf("headers = %v", first.Headers)
			}
			if first.Timestamp <= 0 {
				t.Fatalf("timestamp = %d, want positive", first.Timestamp)
			}

			second, err := consumer.ReceiveOne(ctx)
			if err != nil {
				t.Fatalf("ReceiveOne() error = %v", err)
			}
			if len(second.Key) != 0 {
				t.Fatalf("empty produced key came back as %q", second.Key)
			}
			if string(second.Payload) != "v2" {
				t.Fatalf("second payload = %q, want v2", second.Payload)
			}

			low, high, err := consumer.Watermarks(ctx)
			if err != nil {
				t.Fatalf("Watermarks() error = %v", err)
			}
			if low != 0 || high != 2 {
				t.Fatalf("watermarks = %d/%d, want 0/2", low, high)
			}
		})
	}
}

func TestIntegrationFromTailOffset(t *testing.T) {
	brokers := integrationBrokers(t)
	auth := AuthConfig{Brokers: brokers}

	for _, name := range EngineNames() {
		t.Run(name, func(t *testing.T) {
			engine, err := LookupEngine(name)
			if err != nil {
				t.Fatalf("LookupEngine(%q) error = %v", name, err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			topic := createIntegrationTopic(ctx, t, engine, auth)
			produceIntegrationMessages(ctx, t, engine, auth, topic, []Message{
				{Payload: []byte("v1")},
				{Payload: []byte("v2")},
				{Payload: []byte("v3")},
			})

			consumer, err := engine.NewConsumer(ctx, ConsumerConfig{Auth: auth, Topic: topic, ExitOnDone: true})
			if err != nil {
				t.Fatalf("NewConsumer() error = %v", err)
			}
			defer consumer.Close()

			if err := consumer.Assign(ctx, OffsetSpec{Kind: OffsetFromTail, Value: -1}); err != nil {
				t.Fatalf("Assign() error = %v", err)
			}
			msg, err := consumer.ReceiveOne(ctx)
			if err != nil {
				t.Fatalf("ReceiveOne() error = %v", err)
			}
			if string(msg.Payload) != "v3" {
				t.Fatalf("payload = %q, want v3", msg.Payload)
			}
		})
	}
}

func TestIntegrationTimeRangeOffset(t *testing.T) {
	brokers := integrationBrokers(t)
	auth := AuthConfig{Brokers: brokers}

	for _, name := range EngineNames() {
		t.Run(name, func(t *testing.T) {
			engine, err := LookupEngine(name)
			if err != nil {
				t.Fatalf("LookupEngine(%q) error = %v", name, err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			topic := createIntegrationTopic(ctx, t, engine, auth)
			before := time.Now().UnixMilli()
			produceIntegrationMessages(ctx, t, engine, auth, topic, []Message{
				{Payload: []byte("v1")},
				{Payload: []byte("v2")},
			})

			consumer, err := engine.NewConsumer(ctx, ConsumerConfig{Auth: auth, Topic: topic, ExitOnDone: true})
			if err != nil {
				t.Fatalf("NewConsumer() error = %v", err)
			}
			defer consumer.Close()

			if err := consumer.Assign(ctx, OffsetSpec{Kind: OffsetTimeRange, Begin: before, End: -1}); err != nil {
				t.Fatalf("Assign() error = %v", err)
			}
			msg, err := consumer.ReceiveOne(ctx)
			if err != nil {
				t.Fatalf("ReceiveOne() error = %v", err)
			}
			if string(msg.Payload) != "v1" {
				t.Fatalf("payload = %q, want v1", msg.Payload)
			}
		})
	}
}

func TestIntegrationStreamDrainsAndStops(t *testing.T) {
	brokers := integrationBrokers(t)
	auth := AuthConfig{Brokers: brokers}

	for _, name := range EngineNames() {
		t.Run(name, func(t *testing.T) {
			engine, err := LookupEngine(name)
			if err != nil {
				t.Fatalf("LookupEngine(%q) error = %v", name, err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			topic := createIntegrationTopic(ctx, t, engine, auth)
			produceIntegrationMessages(ctx, t, engine, auth, topic, []Message{
				{Payload: []byte("v1")},
				{Payload: []byte("v2")},
				{Payload: []byte("v3")},
			})

			consumer, err := engine.NewConsumer(ctx, ConsumerConfig{Auth: auth, Topic: topic, ExitOnDone: true})
			if err != nil {
				t.Fatalf("NewConsumer() error = %v", err)
			}
			defer consumer.Close()

			if err := consumer.Assign(ctx, OffsetSpec{Kind: OffsetBeginning}); err != nil {
				t.Fatalf("Assign() error = %v", err)
			}

			var got []string
			err = ForEach(ctx, consumer, func(_ context.Context, msg Message) error {
				got = append(got, string(msg.Payload))
				return nil
			})
			if err != nil {
				t.Fatalf("ForEach() error = %v", err)
			}
			if want := []string{"v1", "v2", "v3"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("payloads = %v, want %v", got, want)
			}
		})
	}
}

func TestIntegrationMetadata(t *testing.T) {
	brokers := integrationBrokers(t)
	auth := AuthConfig{Brokers: brokers}

	for _, name := range EngineNames() {
		t.Run(name, func(t *testing.T) {
			engine, err := LookupEngine(name)
			if err != nil {
				t.Fatalf("LookupEngine(%q) error = %v", name, err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			topic := createIntegrationTopic(ctx, t, engine, auth)

			admin, err := engine.NewAdmin(ctx, auth)
			if err != nil {
				t.Fatalf("NewAdmin() error = %v", err)
			}
			defer admin.Close()

			md, err := admin.Metadata(ctx, topic)
			if err != nil {
				t.Fatalf("Metadata(%q) error = %v", topic, err)
			}
			if len(md.Brokers) == 0 {
				t.Fatalf("metadata reported no brokers")
			}
			if len(md.Topics) != 1 || md.Topics[0].Name != topic {
				t.Fatalf("topics = %+v, want one entry for %q", md.Topics, topic)
			}
			if md.Topics[0].Partitions != 1 {
				t.Fatalf("partitions = %d, want 1", md.Topics[0].Partitions)
			}
		})
	}
}
