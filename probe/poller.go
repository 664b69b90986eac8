package probe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cilium/ebpf/perf"

	"github.com/Sysinternals/ProcMon-for-Linux/handoff"
	"github.com/Sysinternals/ProcMon-for-Linux/logging"
	"github.com/Sysinternals/ProcMon-for-Linux/rawevent"
)

// Poll drains the perf ring and forwards each decoded record to queue
// with a single Push, counting (but not propagating) ring losses, per
// spec.md §4.4. It returns when the reader is closed, or when it finds the
// queue cancelled between reads; a Read blocked on an idle ring returns
// only once the reader is closed. Mirrors ebpf_tracer_engine.cpp's Poll()
// loop.
func (l *Loader) Poll(queue *handoff.Queue) {
	for {
		if queue.Cancelled() {
			return
		}

		record, err := l.reader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return
			}
			logging.Debug("probe: perf read error", "error", err)
			continue
		}

		if record.LostSamples > 0 {
			l.countLoss(record.LostSamples)
			continue
		}

		var rec rawevent.Record
		if err := decodeRecord(record.RawSample, &rec); err != nil {
			logging.Debug("probe: malformed perf sample", "error", err)
			continue
		}

		queue.Push(rec)
	}
}

// countLoss increments the session-visible loss counter. ProbeLoss errors
// are never surfaced up the call stack (spec.md §7); this is purely
// internal bookkeeping, read concurrently from another goroutine by
// LossCount (e.g. the CLI's status-line ticker), hence the atomic.
func (l *Loader) countLoss(n uint64) {
	l.lossCount.Add(n)
}

// LossCount returns the cumulative perf-ring loss count.
func (l *Loader) LossCount() uint64 {
	return l.lossCount.Load()
}

func decodeRecord(raw []byte, rec *rawevent.Record) error {
	if len(raw) != recordSize {
		return fmt.Errorf("probe: perf sample is %d bytes, want %d", len(raw), recordSize)
	}
	return binary.Read(bytes.NewReader(raw), binary.LittleEndian, rec)
}
