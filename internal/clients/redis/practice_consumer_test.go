package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

func testRedis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func consumerLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

// startTestConsumer provisions a consumer against a throwaway stream with
// short claim/block windows so redelivery happens within the test budget.
func startTestConsumer(t *testing.T, rdb *goredis.Client, handler PracticeHandler) string {
	t.Helper()
	stream := fmt.Sprintf("practice_events_test_%s", uuid.NewString()[:8])
	t.Setenv("REDIS_PRACTICE_STREAM", stream)
	t.Setenv("REDIS_PRACTICE_GROUP", "rule_engine_test")
	t.Setenv("REDIS_PRACTICE_CONSUMER", "it-worker")
	t.Setenv("REDIS_PRACTICE_CLAIM_IDLE", "20ms")
	t.Setenv("REDIS_PRACTICE_BLOCK", "100ms")

	consumer, err := NewPracticeConsumer(rdb, consumerLogger(t))
	if err != nil {
		t.Fatalf("init consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		delCtx, delCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = rdb.Del(delCtx, stream).Err()
		delCancel()
	})
	if err := consumer.Start(ctx, handler); err != nil {
		t.Fatalf("start consumer: %v", err)
	}
	return stream
}

func waitForPendingDrain(t *testing.T, rdb *goredis.Client, stream string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		pending, err := rdb.XPending(ctx, stream, "rule_engine_test").Result()
		cancel()
		if err == nil && pending.Count == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("pending entries never drained on %s", stream)
}

func TestPracticeConsumer_FailedHandlerIsRedelivered(t *testing.T) {
	rdb := testRedis(t)

	var (
		mu       sync.Mutex
		attempts int
	)
	applied := make(chan struct{})
	handler := func(_ context.Context, event graph.PracticeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient store failure")
		}
		if attempts == 2 {
			close(applied)
		}
		return nil
	}

	stream := startTestConsumer(t, rdb, handler)

	event := graph.PracticeEvent{
		PracticeID: "p-redeliver",
		LearnerID:  uuid.New(),
		Items: []graph.PracticeItem{
			{KnowledgePoint: "past_perfect", Dimension: "grammar", Correct: true, ResponseTimeMs: 4000},
		},
		SubmittedAt: time.Now().UTC(),
	}
	if err := PublishPractice(context.Background(), rdb, stream, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-applied:
	case <-time.After(10 * time.Second):
		t.Fatalf("event was never redelivered after handler failure")
	}

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got < 2 {
		t.Fatalf("expected at least 2 deliveries, got %d", got)
	}

	waitForPendingDrain(t, rdb, stream)
}

func TestPracticeConsumer_PoisonMessageIsAckedNotRetried(t *testing.T) {
	rdb := testRedis(t)

	processed := make(chan string, 4)
	handler := func(_ context.Context, event graph.PracticeEvent) error {
		processed <- event.PracticeID
		return nil
	}

	stream := startTestConsumer(t, rdb, handler)
	ctx := context.Background()

	if err := rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"payload": "{not json"},
	}).Err(); err != nil {
		t.Fatalf("publish poison: %v", err)
	}
	good := graph.PracticeEvent{
		PracticeID: "p-good",
		LearnerID:  uuid.New(),
		Items:      []graph.PracticeItem{{KnowledgePoint: "kp", Dimension: "reading", Correct: true}},
	}
	if err := PublishPractice(ctx, rdb, stream, good); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case id := <-processed:
		if id != "p-good" {
			t.Fatalf("unexpected event handled: %q", id)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("valid event was never handled")
	}

	// The undecodable entry must be acked away, not left for redelivery.
	waitForPendingDrain(t, rdb, stream)

	select {
	case id := <-processed:
		t.Fatalf("unexpected extra delivery: %q", id)
	case <-time.After(300 * time.Millisecond):
	}
}
