package tracking

import (
	"context"
	"sync"

	"github.com/medmentor/backend/internal/models"
	"github.com/medmentor/backend/internal/platform/logger"
	"github.com/medmentor/backend/internal/storage"
)

// queue is the FIFO of pending remote writes. Every mutation is written back
// to the local store under storage.QueueKey so it survives restarts.
type queue struct {
	mu    sync.Mutex
	ops   []models.OfflineOperation
	store storage.Store
	codec storage.Codec
	log   *logger.Logger
}

func newQueue(store storage.Store, codec storage.Codec, log *logger.Logger) *queue {
	return &queue{store: store, codec: codec, log: log}
}

// restore replaces the in-memory queue with what the local store holds.
func (q *queue) restore(ctx context.Context) error {
	ops, err := storage.LoadQueue(ctx, q.store, q.codec)
	if err != nil {
		return &LocalStorageError{Op: "read", Key: storage.QueueKey, Err: err}
	}
	q.mu.Lock()
	q.ops = ops
	q.mu.Unlock()
	return nil
}

func (q *queue) push(op models.OfflineOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	q.persistLocked()
}

// replace swaps in an updated copy of the operation with the same id.
func (q *queue) replace(op models.OfflineOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].ID == op.ID {
			q.ops[i] = op
			q.persistLocked()
			return
		}
	}
}

func (q *queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			q.persistLocked()
			return
		}
	}
}

func (q *queue) pendingFor(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.Key == key {
			return true
		}
	}
	return false
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// snapshot returns the operations in FIFO order. Records are shared; they are
// never mutated after being queued.
func (q *queue) snapshot() []models.OfflineOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.OfflineOperation(nil), q.ops...)
}

func (q *queue) persistLocked() {
	if err := storage.SaveQueue(context.Background(), q.store, q.codec, q.ops); err != nil {
		q.log.Error("failed to persist offline queue",
			"pending", len(q.ops),
			"error", &LocalStorageError{Op: "write", Key: storage.QueueKey, Err: err})
	}
}
