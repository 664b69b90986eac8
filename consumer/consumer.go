// Package consumer drains the hand-off queue, translates raw events into
// telemetry rows, and batches them into the event store. Grounded on the
// Consume() loop in original_source's ebpf_tracer_engine.cpp.
package consumer

import (
	"time"

	"github.com/Sysinternals/ProcMon-for-Linux/handoff"
	"github.com/Sysinternals/ProcMon-for-Linux/logging"
	"github.com/Sysinternals/ProcMon-for-Linux/rawevent"
	"github.com/Sysinternals/ProcMon-for-Linux/runstate"
	"github.com/Sysinternals/ProcMon-for-Linux/schema"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
)

// BatchSize is the maximum number of rows accumulated before a bulk
// insert, per spec.md §4.5 step 5.
const BatchSize = 50

// SuspendedPollInterval is how long the consumer sleeps between checks
// while the run-state latch reads SUSPENDED (spec.md §4.5 step 2). Pop
// blocks without a timeout, so there is no empty-pop case to sleep on.
const SuspendedPollInterval = 10 * time.Millisecond

// Consumer pops raw records off a hand-off queue, resolves each into a
// store.Row via the syscall schema, and flushes rows to an Engine in
// batches of up to BatchSize.
type Consumer struct {
	Queue   *handoff.Queue
	Latch   *runstate.Latch
	Schemas map[int]*schema.Syscall
	Store   store.Engine
}

// Run executes the consumer protocol until the run-state latch reads
// STOP or the queue is cancelled, whichever happens first. On STOP it
// first pops whatever records are still queued (until the queue is empty
// or Pop reports cancellation). It flushes any partial batch before
// returning.
func (c *Consumer) Run() {
	batch := make([]store.Row, 0, BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.Store.InsertMany(batch); err != nil {
			logging.Error("consumer: batch insert failed", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		switch c.Latch.Load() {
		case runstate.Stop:
			for c.Queue.Len() > 0 {
				rec, ok := c.Queue.Pop()
				if !ok {
					break
				}
				batch = append(batch, c.translate(rec))
				if len(batch) >= BatchSize {
					flush()
				}
			}
			flush()
			return
		case runstate.Suspended:
			time.Sleep(SuspendedPollInterval)
			continue
		}

		rec, ok := c.Queue.Pop()
		if !ok {
			flush()
			return
		}

		batch = append(batch, c.translate(rec))
		if len(batch) >= BatchSize {
			flush()
		}
	}
}

// translate maps a raw event into a telemetry row: resolve the syscall
// name from the schema, sign-extend the return value, and copy the
// argument payload and IP stack into row-owned storage. Symbolization is
// deferred to detail view, per spec.md §3.
func (c *Consumer) translate(rec rawevent.Record) store.Row {
	name := ""
	if sc, ok := c.Schemas[int(rec.SyscallNr)]; ok {
		name = sc.Name
	}

	row := store.Row{
		PID:        rec.PID,
		Process:    rec.CommString(),
		Syscall:    name,
		Result:     rec.Ret, // already a signed 64-bit quantity, never narrowed
		DurationNs: rec.DurationNs,
		EnterNs:    rec.Timestamp,
	}
	copy(row.Args[:], rec.Buffer[:])

	if rec.UserStackCount > 0 {
		count := rec.UserStackCount
		if count > rawevent.MaxStackFrames {
			count = rawevent.MaxStackFrames
		}
		row.UserStack = append([]uint64(nil), rec.UserStack[:count]...)
	}

	return row
}
