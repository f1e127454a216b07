package kafka

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs against a real broker when NEPSHOP_TEST_KAFKA_BROKERS is set.
func TestKafkaRoundTrip(t *testing.T) {
	brokers := os.Getenv("NEPSHOP_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("NEPSHOP_TEST_KAFKA_BROKERS not set")
	}

	broker := NewKafkaBroker(strings.Split(brokers, ","))
	defer broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "nepshop-test-" + uuid.NewString()
	want := map[string]string{"cart_id": "c-1"}
	if err := broker.PublishEvent(ctx, topic, "c-1", want); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	got := make(chan map[string]string, 1)
	go broker.Consume(ctx, topic, "nepshop-test", func(ctx context.Context, payload []byte) error {
		var m map[string]string
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		got <- m
		cancel()
		return nil
	})

	select {
	case m := <-got:
		if m["cart_id"] != "c-1" {
			t.Fatalf("unexpected payload %v", m)
		}
	case <-time.After(25 * time.Second):
		t.Fatalf("message never consumed")
	}
}
