// Package admission implements the single FIFO queue with a global
// concurrency cap that every execution passes through before it is handed
// to an executor. It holds the only mutable shared state in the
// orchestrator; everything else belongs to one Execution.
package admission

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/metrics"
)

// Task is one admitted unit of work. Run is expected to block until the
// execution has fully reached its terminal cleanup state — the queue uses
// that to know when to free the concurrency slot, not a separate signal.
type Task struct {
	ID  string
	Run func()
}

// Queue is a FIFO with one counter, inFlight. It never blocks a caller of
// Enqueue; backpressure is observed only as the time a task spends waiting
// before dispatch.
type Queue struct {
	mu       sync.Mutex
	pending  []Task
	inFlight int
	max      int
	logger   *zerolog.Logger
}

// NewQueue builds a queue with the given MAX_CONCURRENT_EXECUTIONS cap.
func NewQueue(max int, logger *zerolog.Logger) *Queue {
	return &Queue{max: max, logger: logger}
}

// Enqueue appends task to the back of the queue and attempts to drain.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	q.logger.Debug().Str("execution_id", task.ID).Int("queue_depth", q.Depth()).Msg("task admitted")
	metrics.QueueDepth.Set(float64(q.Depth()))

	q.drain()
}

// Depth returns the number of tasks waiting for dispatch (not counting
// in-flight tasks).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight returns the number of tasks currently dispatched and running.
// Together with Depth, this is what spec.md §8 property 1 observes.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// drain dispatches as many pending tasks as the concurrency cap allows. No
// priorities, no preemption: strict FIFO order.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.inFlight >= q.max || len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight++
		q.mu.Unlock()

		metrics.QueueDepth.Set(float64(q.Depth()))
		metrics.ActiveWorkers.Inc()

		go func(t Task) {
			defer q.complete(t)
			t.Run()
		}(task)
	}
}

// complete frees the concurrency slot a dispatched task held and re-drains
// — the only place inFlight is decremented.
func (q *Queue) complete(task Task) {
	q.mu.Lock()
	q.inFlight--
	q.mu.Unlock()

	metrics.ActiveWorkers.Dec()
	q.logger.Debug().Str("execution_id", task.ID).Msg("task cleanup complete")
	q.drain()
}
