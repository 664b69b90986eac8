// Package handoff implements the cancellable hand-off queue between the
// poller and the consumer: a FIFO with push/pop/cancel, built as two
// sub-queues swapped under the write lock to bound cross-thread
// contention on the hot push path. The queue has no capacity limit: Push
// always appends, and nothing is dropped when the consumer falls behind.
package handoff

import (
	"sync"

	"github.com/Sysinternals/ProcMon-for-Linux/rawevent"
)

// Queue is a single-producer/single-consumer cancellable FIFO of raw
// event records.
type Queue struct {
	mu        sync.Mutex
	notEmpty  *sync.Cond
	left      []rawevent.Record
	right     []rawevent.Record
	writeTo   *[]rawevent.Record
	readFrom  *[]rawevent.Record
	cancelled bool
}

// New returns an empty, non-cancelled queue.
func New() *Queue {
	q := &Queue{}
	q.notEmpty = sync.NewCond(&q.mu)
	q.writeTo = &q.left
	q.readFrom = &q.right
	return q
}

// Push appends a copy of rec to the queue. Push never blocks.
func (q *Queue) Push(rec rawevent.Record) {
	q.mu.Lock()
	*q.writeTo = append(*q.writeTo, rec)
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// PushBatch appends a batch of records under a single lock acquisition.
func (q *Queue) PushBatch(recs []rawevent.Record) {
	if len(recs) == 0 {
		return
	}
	q.mu.Lock()
	*q.writeTo = append(*q.writeTo, recs...)
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// Pop blocks until a record is available or the queue is cancelled. Per
// the original's pop() (cancellable_message_queue.h), cancellation is
// checked first, before either sub-queue: a Pop racing a Cancel returns
// ok=false immediately rather than draining whatever is still queued, so
// cancellation takes effect on every present and future Pop as soon as
// it is observed, not once the queue happens to run dry.
func (q *Queue) Pop() (rec rawevent.Record, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(*q.readFrom) == 0 && len(*q.writeTo) == 0 && !q.cancelled {
		q.notEmpty.Wait()
	}

	if q.cancelled {
		return rawevent.Record{}, false
	}

	if len(*q.readFrom) == 0 {
		q.writeTo, q.readFrom = q.readFrom, q.writeTo
	}

	rec = (*q.readFrom)[0]
	*q.readFrom = (*q.readFrom)[1:]
	return rec, true
}

// Cancel is idempotent and wakes any blocked consumer. All present and
// future pops return ok=false as soon as cancellation is observed,
// whether or not records remain queued.
func (q *Queue) Cancel() {
	q.mu.Lock()
	q.cancelled = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Cancelled reports whether Cancel has been called.
func (q *Queue) Cancelled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled
}

// Len returns the number of records currently queued across both
// sub-queues. Intended for diagnostics/tests, not hot-path use.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.left) + len(q.right)
}
