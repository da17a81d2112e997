package dualstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
	"github.com/trezcool/calisma/core/legacykey"
)

const (
	DefaultQueueSize        = 64
	DefaultMigrationTimeout = 10 * time.Second
)

type migration struct {
	key legacykey.Key
	doc json.RawMessage
}

// MigrationQueue writes flat-file documents into the relational store in the background.
// Each message is a one-shot write with its own timeout; failures are logged and dropped.
type MigrationQueue struct {
	primary Primary
	logger  core.Logger
	timeout time.Duration

	jobs chan migration
	done chan struct{}

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	closeOnce sync.Once

	pendingMu sync.Mutex
	pending   int
	waiters   []chan struct{}
}

func NewMigrationQueue(primary Primary, logger core.Logger, size int, timeout time.Duration) *MigrationQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultMigrationTimeout
	}
	return &MigrationQueue{
		primary: primary,
		logger:  logger,
		timeout: timeout,
		jobs:    make(chan migration, size),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. It is safe to call more than once.
func (q *MigrationQueue) Start() {
	q.startOnce.Do(func() {
		go q.work()
	})
}

// Enqueue schedules a write without blocking. It returns false when the queue is closed or full.
func (q *MigrationQueue) Enqueue(key legacykey.Key, doc json.RawMessage) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("migration queue closed, dropping document", map[string]interface{}{"key": key.String()})
		return false
	}

	q.addPending(1)
	select {
	case q.jobs <- migration{key: key, doc: doc}:
		return true
	default:
		q.addPending(-1)
		q.logger.Warn("migration queue full, dropping document", map[string]interface{}{"key": key.String()})
		return false
	}
}

// Flush waits until every queued migration has been processed.
func (q *MigrationQueue) Flush(ctx context.Context) error {
	q.pendingMu.Lock()
	if q.pending == 0 {
		q.pendingMu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.pendingMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "flushing migration queue")
	}
}

// Close stops accepting messages, drains the queue and waits for the worker to exit.
func (q *MigrationQueue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	q.Start() // drain even if never started

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "closing migration queue")
	}
}

func (q *MigrationQueue) work() {
	defer close(q.done)
	for m := range q.jobs {
		q.migrate(m)
		q.addPending(-1)
	}
}

func (q *MigrationQueue) migrate(m migration) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("lazy migration panicked", fmt.Errorf("%s: %v", m.key, r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	// a write may have reached the database since the file was read
	if _, err := q.primary.Lookup(ctx, m.key); err == nil {
		q.logger.Debug("flat file already migrated", map[string]interface{}{"key": m.key.String()})
		return
	}
	if err := q.primary.Store(ctx, m.key, m.doc); err != nil {
		q.logger.Error("lazy migration failed", errors.Wrap(err, m.key.String()))
		return
	}
	q.logger.Info("flat file migrated to database", map[string]interface{}{"key": m.key.String()})
}

func (q *MigrationQueue) addPending(delta int) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	q.pending += delta
	if q.pending == 0 {
		for _, ch := range q.waiters {
			close(ch)
		}
		q.waiters = nil
	}
}

// Pending returns the number of queued migrations not processed yet.
func (q *MigrationQueue) Pending() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return q.pending
}
