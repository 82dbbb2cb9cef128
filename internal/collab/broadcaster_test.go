package collab

import (
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/domain"
)

func testUpdate(seq int64) domain.Update {
	return domain.Update{RoomID: "order:42", FieldName: "status", NewValue: "v", Sequence: seq}
}

func TestBroadcastReachesEveryParticipant(t *testing.T) {
	b := NewBroadcaster(8, zap.NewNop())
	b.Register("order:42", "c1")
	b.Register("order:42", "c2")
	b.Register("order:42", "c3")

	delivered, dropped := b.Broadcast("order:42", testUpdate(1))
	if delivered != 3 || dropped != 0 {
		t.Fatalf("expected 3 deliveries and no drops, got %d/%d", delivered, dropped)
	}

	// Echo-to-self: the originator's queue receives its own update too.
	ch, ok := b.Attach("order:42", "c1")
	if !ok {
		t.Fatal("expected queue for c1")
	}
	if update := <-ch; update.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", update.Sequence)
	}
}

func TestBroadcastDropsOldestOnOverflow(t *testing.T) {
	b := NewBroadcaster(2, zap.NewNop())
	b.Register("order:42", "slow")

	b.Broadcast("order:42", testUpdate(1))
	b.Broadcast("order:42", testUpdate(2))
	_, dropped := b.Broadcast("order:42", testUpdate(3))
	if dropped != 1 {
		t.Fatalf("expected 1 dropped update, got %d", dropped)
	}

	ch, _ := b.Attach("order:42", "slow")
	if update := <-ch; update.Sequence != 2 {
		t.Errorf("expected oldest (seq 1) shed, got seq %d first", update.Sequence)
	}
	if update := <-ch; update.Sequence != 3 {
		t.Errorf("expected seq 3 retained, got %d", update.Sequence)
	}
}

func TestBroadcastSkipsUnregisteredRoom(t *testing.T) {
	b := NewBroadcaster(2, zap.NewNop())
	delivered, dropped := b.Broadcast("missing:1", testUpdate(1))
	if delivered != 0 || dropped != 0 {
		t.Errorf("expected no delivery attempts, got %d/%d", delivered, dropped)
	}
}

func TestUnregisterClosesQueue(t *testing.T) {
	b := NewBroadcaster(2, zap.NewNop())
	b.Register("order:42", "c1")
	ch, _ := b.Attach("order:42", "c1")

	b.Unregister("order:42", "c1")
	if _, open := <-ch; open {
		t.Error("expected closed queue after unregister")
	}
	if _, ok := b.Attach("order:42", "c1"); ok {
		t.Error("queue should be gone after unregister")
	}

	delivered, _ := b.Broadcast("order:42", testUpdate(1))
	if delivered != 0 {
		t.Errorf("expected no deliveries after unregister, got %d", delivered)
	}
}
