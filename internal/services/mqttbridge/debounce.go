package mqttbridge

import (
	"sync"
	"time"

	"github.com/bbernstein/chaser-go/internal/services/layerstore"
)

// LightCommandBatchMs is the single trailing-timer debounce window for
// queued light commands (spec.md §4.6).
const LightCommandBatchMs = 25

// commandQueue coalesces per-fixture light-command ops behind a single
// trailing timer: a new op for a fixture overwrites any still-pending op
// for that fixture, and the whole queue flushes as one
// applyLayerABatch call after LightCommandBatchMs of quiet.
type commandQueue struct {
	mu      sync.Mutex
	pending map[string][]layerstore.Op
	timer   *time.Timer
	flush   func([]layerstore.Op)
}

func newCommandQueue(flush func([]layerstore.Op)) *commandQueue {
	return &commandQueue{
		pending: make(map[string][]layerstore.Op),
		flush:   flush,
	}
}

// enqueue replaces fixtureID's pending ops and (re)schedules the trailing
// flush timer.
func (q *commandQueue) enqueue(fixtureID string, ops []layerstore.Op) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[fixtureID] = ops
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(LightCommandBatchMs*time.Millisecond, q.fireLocked)
}

func (q *commandQueue) fireLocked() {
	q.mu.Lock()
	all := make([]layerstore.Op, 0, len(q.pending)*2)
	for _, ops := range q.pending {
		all = append(all, ops...)
	}
	q.pending = make(map[string][]layerstore.Op)
	q.timer = nil
	flush := q.flush
	q.mu.Unlock()

	if len(all) > 0 {
		flush(all)
	}
}
