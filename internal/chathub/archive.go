package chathub

import (
	"context"
	"sync"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/storage"
)

type archiveOp struct {
	name string
	fn   func(st storage.Storage) error
}

// archiveQueue keeps archive writes in submission order, so a session row
// is always written before its messages and before it is closed. push never
// blocks; the queue grows while postgres is slow.
type archiveQueue struct {
	mu   sync.Mutex
	ops  []archiveOp
	wake chan struct{}
}

func newArchiveQueue() *archiveQueue {
	return &archiveQueue{wake: make(chan struct{}, 1)}
}

func (q *archiveQueue) push(op archiveOp) {
	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *archiveQueue) take() []archiveOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.ops
	q.ops = nil
	return ops
}

func (m *ManagerService) archive(name string, fn func(st storage.Storage) error) {
	if m.Storage == nil {
		return
	}
	m.archiveQ.push(archiveOp{name: name, fn: fn})
}

// runArchiver пише архів у Postgres в одному потоці. What is still queued on
// shutdown is written before it returns.
func (m *ManagerService) runArchiver(ctx context.Context) {
	run := func() {
		for _, op := range m.archiveQ.take() {
			if err := op.fn(m.Storage); err != nil {
				logger.Errorf("archive %s: %v", op.name, err)
			}
		}
	}
	for {
		select {
		case <-m.archiveQ.wake:
			run()
		case <-ctx.Done():
			run()
			return
		}
	}
}
