package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sysinternals/ProcMon-for-Linux/handoff"
	"github.com/Sysinternals/ProcMon-for-Linux/rawevent"
	"github.com/Sysinternals/ProcMon-for-Linux/runstate"
	"github.com/Sysinternals/ProcMon-for-Linux/schema"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
	"github.com/Sysinternals/ProcMon-for-Linux/store/memory"
)

// runUntilCancelled starts c.Run() in the background and returns a channel
// closed when it returns, so a test can Cancel the queue only after giving
// the consumer a chance to have already popped what it pushed: per
// handoff.Queue.Pop's cancellation-first semantics, a record pushed and
// then immediately cancelled without an intervening Pop is dropped, not
// drained.
func runUntilCancelled(c *Consumer) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run()
	}()
	return done
}

func newTestConsumer(t *testing.T) (*Consumer, *handoff.Queue, store.Engine) {
	t.Helper()
	eng := memory.New()
	require.NoError(t, eng.Init([]string{"openat", "read"}))

	latch := runstate.New()
	queue := handoff.New()
	schemas := map[int]*schema.Syscall{
		257: {Name: "openat", Number: 257},
		0:   {Name: "read", Number: 0},
	}
	return &Consumer{Queue: queue, Latch: latch, Schemas: schemas, Store: eng}, queue, eng
}

func TestConsumerTranslatesAndFlushesOnStop(t *testing.T) {
	c, queue, eng := newTestConsumer(t)

	rec := rawevent.Record{PID: 42, SyscallNr: 257, Ret: -2, DurationNs: 1500, Timestamp: 9000}
	copy(rec.Comm[:], "bash")
	queue.Push(rec)

	c.Latch.Store(runstate.Stop)
	c.Run()

	n, err := eng.Size()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := eng.QueryPage(nil, 0, 10, store.SortTime, true, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int32(42), rows[0].PID)
	require.Equal(t, "bash", rows[0].Process)
	require.Equal(t, "openat", rows[0].Syscall)
	require.Equal(t, int64(-2), rows[0].Result)
}

func TestConsumerExitsWhenQueueDrainsAfterCancel(t *testing.T) {
	c, queue, eng := newTestConsumer(t)

	done := runUntilCancelled(c)

	queue.Push(rawevent.Record{PID: 7, SyscallNr: 0})
	time.Sleep(20 * time.Millisecond)
	queue.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Cancel()")
	}

	n, err := eng.Size()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestConsumerBatchesAtBatchSize(t *testing.T) {
	c, queue, eng := newTestConsumer(t)

	done := runUntilCancelled(c)

	for i := 0; i < BatchSize+5; i++ {
		queue.Push(rawevent.Record{PID: int32(i), SyscallNr: 0})
	}
	time.Sleep(50 * time.Millisecond)
	queue.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Cancel()")
	}

	n, err := eng.Size()
	require.NoError(t, err)
	require.Equal(t, BatchSize+5, n)
}

func TestConsumerUnknownSyscallNumberYieldsEmptyName(t *testing.T) {
	c, queue, eng := newTestConsumer(t)

	done := runUntilCancelled(c)

	queue.Push(rawevent.Record{PID: 1, SyscallNr: 9999})
	time.Sleep(20 * time.Millisecond)
	queue.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Cancel()")
	}

	rows, err := eng.QueryPage(nil, 0, 10, store.SortTime, true, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "", rows[0].Syscall)
}
