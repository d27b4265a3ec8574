package nats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/syncbridge/syncbridge/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueueRoundtrip(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	unsub, err := q.Subscribe(ctx, messagequeue.SubjectChanges+".roundtrip", func(_ context.Context, _ string, data []byte) error {
		select {
		case received <- data:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	payload := []byte(`{"entity_type":"issue","external_id":"TRK-rt"}`)
	if err := q.Publish(ctx, messagequeue.SubjectChanges+".roundtrip", payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != string(payload) {
			t.Fatalf("payload mismatch: %s", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestQueueIsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Fatal("expected connected queue")
	}
}
