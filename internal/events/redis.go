package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	slotFreedKey  = "eliteslots:freed"
	notifyChannel = "eliteslots:notify:"
)

// RedisBus publishes slot-freed events onto a Redis list consumed by cascade
// workers, and notifications on per-owner pub/sub channels picked up by the
// notification collaborator.
type RedisBus struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisBus(client redis.UniversalClient, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) PublishSlotFreed(ctx context.Context, ev SlotFreed) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal slot-freed: %w", err)
	}
	if err := b.client.LPush(ctx, slotFreedKey, data).Err(); err != nil {
		return fmt.Errorf("push slot-freed: %w", err)
	}
	return nil
}

func (b *RedisBus) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := b.client.Publish(ctx, notifyChannel+n.OwnerID, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Consume blocks on the slot-freed list and invokes handler per event until
// ctx is cancelled. Malformed payloads are logged and skipped; handler errors
// never stop the loop.
func (b *RedisBus) Consume(ctx context.Context, handler func(context.Context, SlotFreed) error) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := b.client.BRPop(ctx, 5*time.Second, slotFreedKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			b.logger.Error("slot-freed pop failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		var ev SlotFreed
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			b.logger.Error("malformed slot-freed payload", "payload", res[1], "error", err)
			continue
		}
		if err := handler(ctx, ev); err != nil {
			b.logger.Error("cascade handler failed",
				"slot_id", ev.SlotID, "period_id", ev.PeriodID, "error", err)
		}
	}
}
