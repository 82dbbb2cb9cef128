package collab

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-service/internal/domain"
)

// Broadcaster fans processed updates out to the outbound queues of a
// room's participants. Delivery is best-effort and never blocks: each
// participant has a bounded queue and the oldest pending update is dropped
// on overflow. Authoritative state is always recoverable via a fresh
// snapshot on rejoin, so dropped broadcasts are self-healing.
type Broadcaster struct {
	mu        sync.RWMutex
	rooms     map[string]map[string]chan domain.Update
	queueSize int
	logger    *zap.Logger
}

// NewBroadcaster creates a broadcaster with the given per-participant
// queue capacity.
func NewBroadcaster(queueSize int, logger *zap.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Broadcaster{
		rooms:     make(map[string]map[string]chan domain.Update),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Register creates the outbound queue for a participant joining a room.
func (b *Broadcaster) Register(roomID, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	queues, ok := b.rooms[roomID]
	if !ok {
		queues = make(map[string]chan domain.Update)
		b.rooms[roomID] = queues
	}
	if _, exists := queues[clientID]; !exists {
		queues[clientID] = make(chan domain.Update, b.queueSize)
	}
}

// Unregister removes and closes a participant's queue. Sends happen only
// under the read lock while the queue is still in the map, so closing
// after removal cannot race a broadcast.
func (b *Broadcaster) Unregister(roomID, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	queues, ok := b.rooms[roomID]
	if !ok {
		return
	}
	if ch, exists := queues[clientID]; exists {
		delete(queues, clientID)
		close(ch)
	}
	if len(queues) == 0 {
		delete(b.rooms, roomID)
	}
}

// DropRoom discards all queues for an evicted room.
func (b *Broadcaster) DropRoom(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.rooms[roomID] {
		close(ch)
	}
	delete(b.rooms, roomID)
}

// Attach hands out the receive side of a participant's queue so a push
// transport can drain it.
func (b *Broadcaster) Attach(roomID, clientID string) (<-chan domain.Update, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	queues, ok := b.rooms[roomID]
	if !ok {
		return nil, false
	}
	ch, ok := queues[clientID]
	return ch, ok
}

// Broadcast enqueues the update for every participant of the room,
// including the originator (echo-to-self lets a client reconcile its
// optimistic UI with the server-confirmed sequence). Returns the number of
// updates delivered and the number dropped due to full queues.
func (b *Broadcaster) Broadcast(roomID string, update domain.Update) (delivered, dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for clientID, ch := range b.rooms[roomID] {
		select {
		case ch <- update:
			delivered++
			continue
		default:
		}
		// Queue full: shed the oldest pending update and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- update:
			delivered++
			dropped++
		default:
			dropped++
		}
		b.logger.Debug("outbound queue overflow",
			zap.String("room_id", roomID),
			zap.String("client_id", clientID),
			zap.Int64("sequence", update.Sequence))
	}
	return delivered, dropped
}
