package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBus_PublishSlotFreed(t *testing.T) {
	db, mock := redismock.NewClientMock()
	bus := NewRedisBus(db, nil)

	ev := SlotFreed{
		SlotID:   "slot-1",
		PeriodID: "period-1",
		FreedAt:  time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectLPush(slotFreedKey, payload).SetVal(1)

	err = bus.PublishSlotFreed(context.Background(), ev)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBus_Notify(t *testing.T) {
	db, mock := redismock.NewClientMock()
	bus := NewRedisBus(db, nil)

	n := Notification{
		Type:     NotifySlotOffered,
		OwnerID:  "owner-7",
		SlotID:   "slot-1",
		PeriodID: "period-1",
		RecordID: "entry-3",
	}
	payload, err := json.Marshal(n)
	require.NoError(t, err)

	mock.ExpectPublish(notifyChannel+"owner-7", payload).SetVal(1)

	err = bus.Notify(context.Background(), n)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChanBus_DropsWhenFull(t *testing.T) {
	bus := NewChanBus(1, nil)
	ctx := context.Background()

	require.NoError(t, bus.PublishSlotFreed(ctx, SlotFreed{SlotID: "a"}))
	// Buffer full: second publish must not block.
	require.NoError(t, bus.PublishSlotFreed(ctx, SlotFreed{SlotID: "b"}))

	got := <-bus.SlotFreedEvents()
	assert.Equal(t, "a", got.SlotID)
	select {
	case ev := <-bus.SlotFreedEvents():
		t.Fatalf("expected dropped event, got %+v", ev)
	default:
	}
}
