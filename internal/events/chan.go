package events

import (
	"context"
	"log/slog"
)

// ChanBus is the in-process event bus used when no Redis address is
// configured, and by tests. Slot-freed events are buffered; when the buffer
// is full the event is dropped so a request worker never blocks. The
// sweeper's reconcile pass republishes freed slots while entries are
// waiting, so a dropped event delays the cascade instead of losing it.
type ChanBus struct {
	freed  chan SlotFreed
	notify chan Notification
	logger *slog.Logger
}

func NewChanBus(buffer int, logger *slog.Logger) *ChanBus {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChanBus{
		freed:  make(chan SlotFreed, buffer),
		notify: make(chan Notification, buffer),
		logger: logger,
	}
}

func (b *ChanBus) PublishSlotFreed(ctx context.Context, ev SlotFreed) error {
	select {
	case b.freed <- ev:
	default:
		b.logger.Warn("slot-freed buffer full, dropping event",
			"slot_id", ev.SlotID, "period_id", ev.PeriodID)
	}
	return nil
}

func (b *ChanBus) Notify(ctx context.Context, n Notification) error {
	select {
	case b.notify <- n:
	default:
		b.logger.Warn("notification buffer full, dropping",
			"type", string(n.Type), "owner_id", n.OwnerID)
	}
	return nil
}

// SlotFreedEvents exposes the consumer side for the cascade worker.
func (b *ChanBus) SlotFreedEvents() <-chan SlotFreed {
	return b.freed
}

// Notifications exposes the consumer side for the notification collaborator.
func (b *ChanBus) Notifications() <-chan Notification {
	return b.notify
}
