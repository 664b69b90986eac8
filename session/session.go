// Package session owns one tracer run end to end: configuration, the event
// store, the kernel probe/poller/consumer lifecycle, and the run-state
// latch. Modeled on the RWMutex-protected-struct idiom in the teacher's
// container/container.go and the goroutine/wait pattern in
// container/start.go, generalized from "one container process" to "one
// tracer run" per design note 9 ("the store and the tracer are owned by a
// session object; the UI borrows both; no back-references").
package session

import (
	"sync"
	"time"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
	"github.com/Sysinternals/ProcMon-for-Linux/handoff"
	"github.com/Sysinternals/ProcMon-for-Linux/hostcheck"
	"github.com/Sysinternals/ProcMon-for-Linux/logging"
	"github.com/Sysinternals/ProcMon-for-Linux/probe"
	"github.com/Sysinternals/ProcMon-for-Linux/runstate"
	"github.com/Sysinternals/ProcMon-for-Linux/schema"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
	"github.com/Sysinternals/ProcMon-for-Linux/store/memory"
	"github.com/Sysinternals/ProcMon-for-Linux/store/sqlite"

	"github.com/Sysinternals/ProcMon-for-Linux/consumer"
)

// Config is the immutable value a session is built from, assembled once by
// the CLI from parsed flags and never mutated afterward, per design note 9.
type Config struct {
	// PIDs restricts capture to these process IDs; empty means all.
	PIDs []int32
	// Events restricts capture to these syscall names; empty means all
	// known syscalls.
	Events []string
	// CollectPath records the headless-capture snapshot path. Session
	// itself does not read it; the caller writes the snapshot with Export.
	CollectPath string
	// FilePath, when non-empty, opens an existing snapshot read-only
	// instead of starting live capture.
	FilePath string
}

// Session is the owning object for one tracer run. The CLI/UI driver holds
// a *Session and calls into it; Session never reaches back into its
// caller.
type Session struct {
	cfg     Config
	Latch   *runstate.Latch
	Store   store.Engine
	schemas map[int]*schema.Syscall

	loader   *probe.Loader
	queue    *handoff.Queue
	consumer *consumer.Consumer
	wg       sync.WaitGroup

	startTimeNs   uint64
	startTimeWall int64
}

// Open constructs a session for cfg. In snapshot mode (FilePath set) it
// loads the store read-only and returns without touching the kernel probe.
// In live mode it performs every host-capability and schema check but does
// not yet attach the probe; call Start for that.
func Open(cfg Config) (*Session, error) {
	if len(cfg.PIDs) > probe.MaxPIDs {
		return nil, tracererrors.ErrTooManyPIDs
	}

	s := &Session{cfg: cfg, Latch: runstate.New()}

	if cfg.FilePath != "" {
		eng, err := sqlite.New()
		if err != nil {
			return nil, err
		}
		meta, err := eng.Load(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		s.Store = eng
		s.startTimeNs = meta.StartTimeNs
		s.startTimeWall = meta.StartTimeWall

		if schemas, err := schema.Build(); err == nil {
			s.schemas = schemas
		}
		return s, nil
	}

	if err := hostcheck.Check(); err != nil {
		return nil, err
	}

	schemas, err := schema.Build()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(schemas, cfg.Events); err != nil {
		return nil, err
	}
	s.schemas = schemas

	names := cfg.Events
	if len(names) == 0 {
		names = allNames(schemas)
	}

	eng, err := sqlite.New()
	if err != nil {
		return nil, err
	}
	if err := eng.Init(names); err != nil {
		return nil, err
	}
	s.Store = eng

	return s, nil
}

// OpenInert is Open's test seam: an in-memory store instead of SQLite, with
// every host-capability/kernel step skipped. Used by the headless/table-
// driven test suite so store behavior can be exercised without root or a
// real kernel (spec.md §8).
func OpenInert(cfg Config, schemas map[int]*schema.Syscall) (*Session, error) {
	s := &Session{cfg: cfg, Latch: runstate.New(), schemas: schemas}

	names := cfg.Events
	if len(names) == 0 {
		names = allNames(schemas)
	}

	eng := memory.New()
	if err := eng.Init(names); err != nil {
		return nil, err
	}
	s.Store = eng
	return s, nil
}

// Start loads and attaches the kernel probe and starts the poller and
// consumer threads. Only valid for a session opened in live mode.
func (s *Session) Start() error {
	loader, err := probe.Load()
	if err != nil {
		return err
	}
	if err := loader.Attach(); err != nil {
		loader.Close()
		return err
	}

	names := s.cfg.Events
	if len(names) == 0 {
		names = allNames(s.schemas)
	}
	if err := loader.Maps.WriteSchema(s.schemas, names); err != nil {
		loader.Close()
		return err
	}
	if err := loader.Maps.WritePIDFilter(s.cfg.PIDs); err != nil {
		loader.Close()
		return err
	}
	if err := loader.Maps.WriteRunState(runstate.Running); err != nil {
		loader.Close()
		return err
	}

	s.loader = loader
	s.queue = handoff.New()
	s.consumer = &consumer.Consumer{
		Queue:   s.queue,
		Latch:   s.Latch,
		Schemas: s.schemas,
		Store:   s.Store,
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.loader.Poll(s.queue)
	}()
	go func() {
		defer s.wg.Done()
		s.consumer.Run()
	}()

	return nil
}

// Suspend sets the run-state latch to Suspended: the probe drops on its
// next check, the consumer sleeps instead of popping.
func (s *Session) Suspend() error {
	s.Latch.Store(runstate.Suspended)
	if s.loader != nil {
		return s.loader.Maps.WriteRunState(runstate.Suspended)
	}
	return nil
}

// Resume sets the run-state latch back to Running.
func (s *Session) Resume() error {
	s.Latch.Store(runstate.Running)
	if s.loader != nil {
		return s.loader.Maps.WriteRunState(runstate.Running)
	}
	return nil
}

// Stop executes the shutdown protocol from spec.md §5: set STOP on the
// latch first so the probe emits nothing further and the consumer pops
// what is still queued, cancel the hand-off queue so a consumer blocked
// in Pop wakes and exits, close the perf reader so the poller's blocked
// Read returns, then join both threads and release the probe.
func (s *Session) Stop() error {
	s.Latch.Store(runstate.Stop)
	if s.loader != nil {
		s.loader.Maps.WriteRunState(runstate.Stop)
	}
	if s.queue != nil {
		s.queue.Cancel()
	}
	if s.loader != nil && s.loader.Reader() != nil {
		s.loader.Reader().Close()
	}
	s.wg.Wait()

	if s.loader != nil {
		return s.loader.Close()
	}
	return nil
}

// Schemas returns the syscall schema table the session resolved at Open,
// nil in snapshot mode if the host has no tracefs to rebuild it from.
func (s *Session) Schemas() map[int]*schema.Syscall {
	return s.schemas
}

// StartTimeNs returns the capture start time used to anchor the relative
// timestamps format.Format renders.
func (s *Session) StartTimeNs() uint64 {
	return s.startTimeNs
}

// LossCount returns the cumulative perf-ring loss count, zero in snapshot
// mode.
func (s *Session) LossCount() uint64 {
	if s.loader == nil {
		return 0
	}
	return s.loader.LossCount()
}

// Export writes the session's store to path along with its start metadata.
func (s *Session) Export(path string) error {
	meta := store.StartMeta{StartTimeNs: s.startTimeNs, StartTimeWall: s.startTimeWall}
	return s.Store.Export(meta, path)
}

// SetStartTime records the session's start time, used to anchor relative
// timestamps on export. Callers invoke this once, at capture start.
func (s *Session) SetStartTime(nowNs uint64, nowWall int64) {
	s.startTimeNs = nowNs
	s.startTimeWall = nowWall
}

// RunHeadless blocks for duration, then stops the session and exports the
// snapshot, mirroring the original's non-interactive display/headless.cpp
// run mode. It always waits the full duration; stopping the session some
// other way does not make it return early.
func (s *Session) RunHeadless(duration time.Duration, path string) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	<-timer.C

	if err := s.Stop(); err != nil {
		logging.Error("session: stop failed", "error", err)
	}
	return s.Export(path)
}

func allNames(schemas map[int]*schema.Syscall) []string {
	names := make([]string, 0, len(schemas))
	for _, sc := range schemas {
		names = append(names, sc.Name)
	}
	return names
}
