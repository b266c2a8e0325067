package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// PracticeHandler processes one decoded practice event. Returning an error
// leaves the message pending; the reclaim pass redelivers it once it has
// been idle past REDIS_PRACTICE_CLAIM_IDLE.
type PracticeHandler func(ctx context.Context, event graph.PracticeEvent) error

// PracticeConsumer reads practice events from a Redis stream with a consumer
// group. Delivery is at least once; the rule engine's practice_id ledger makes
// redelivery harmless. The consumer name is stable across restarts so a
// crashed process reclaims its own pending entries, and every loop iteration
// runs an XAUTOCLAIM pass so entries stuck under any dead consumer name are
// eventually re-handled rather than orphaned in the group's PEL.
type PracticeConsumer struct {
	log       *logger.Logger
	rdb       *goredis.Client
	stream    string
	group     string
	consumer  string
	claimIdle time.Duration
	readBlock time.Duration
}

func NewPracticeConsumer(rdb *goredis.Client, log *logger.Logger) (*PracticeConsumer, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}

	stream := envutil.String("REDIS_PRACTICE_STREAM", "practice_events")
	group := envutil.String("REDIS_PRACTICE_GROUP", "rule_engine")

	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	consumer := envutil.String("REDIS_PRACTICE_CONSUMER", host)

	return &PracticeConsumer{
		log:       log.With("service", "PracticeConsumer", "stream", stream, "group", group, "consumer", consumer),
		rdb:       rdb,
		stream:    stream,
		group:     group,
		consumer:  consumer,
		claimIdle: envutil.Duration("REDIS_PRACTICE_CLAIM_IDLE", 30*time.Second),
		readBlock: envutil.Duration("REDIS_PRACTICE_BLOCK", 5*time.Second),
	}, nil
}

// Start creates the group if needed and consumes until ctx is canceled.
func (c *PracticeConsumer) Start(ctx context.Context, handler PracticeHandler) error {
	if handler == nil {
		return fmt.Errorf("handler required")
	}

	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	go c.loop(ctx, handler)
	return nil
}

func (c *PracticeConsumer) loop(ctx context.Context, handler PracticeHandler) {
	for {
		if ctx.Err() != nil {
			return
		}

		c.reclaim(ctx, handler)

		streams, err := c.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    16,
			Block:    c.readBlock,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			c.log.Warn("stream read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handleMessage(ctx, msg, handler)
			}
		}
	}
}

// reclaim re-handles pending entries that have sat unacked past claimIdle,
// regardless of which consumer first received them. A handler failure leaves
// the entry pending with its idle clock reset, so retries are spaced by
// claimIdle instead of spinning.
func (c *PracticeConsumer) reclaim(ctx context.Context, handler PracticeHandler) {
	start := "0-0"
	for {
		msgs, next, err := c.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.claimIdle,
			Start:    start,
			Count:    16,
		}).Result()
		if err != nil {
			if err != goredis.Nil && ctx.Err() == nil {
				c.log.Warn("pending reclaim failed", "error", err)
			}
			return
		}
		for _, msg := range msgs {
			c.handleMessage(ctx, msg, handler)
		}
		if len(msgs) == 0 || next == "0-0" {
			return
		}
		start = next
	}
}

func (c *PracticeConsumer) handleMessage(ctx context.Context, msg goredis.XMessage, handler PracticeHandler) {
	event, err := decodePracticeEvent(msg)
	if err != nil {
		// Poison message: nothing a redelivery could fix.
		c.log.Warn("dropping undecodable practice message", "message_id", msg.ID, "error", err)
		_ = c.rdb.XAck(ctx, c.stream, c.group, msg.ID).Err()
		return
	}

	if err := handler(ctx, event); err != nil {
		c.log.Warn("practice handler failed, leaving message pending",
			"message_id", msg.ID,
			"practice_id", event.PracticeID,
			"error", err,
		)
		return
	}

	if err := c.rdb.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.log.Warn("ack failed", "message_id", msg.ID, "error", err)
	}
}

func decodePracticeEvent(msg goredis.XMessage) (graph.PracticeEvent, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok || raw == "" {
		return graph.PracticeEvent{}, fmt.Errorf("missing payload field")
	}
	var event graph.PracticeEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return graph.PracticeEvent{}, err
	}
	if event.PracticeID == "" {
		return graph.PracticeEvent{}, fmt.Errorf("missing practice_id")
	}
	if event.LearnerID == uuid.Nil {
		return graph.PracticeEvent{}, fmt.Errorf("missing learner_id")
	}
	return event, nil
}

// PublishPractice appends one event to the stream. Used by tooling and tests;
// production producers write the same shape.
func PublishPractice(ctx context.Context, rdb *goredis.Client, stream string, event graph.PracticeEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"payload": string(raw)},
	}).Err()
}
