// Package probe loads the kernel-resident syscall probe (probe/bpf/
// syscall_trace.c) and owns the shared maps the kernel program reads:
// run-state, PID filter, and syscall schema. Grounded on
// original_source's ebpf_tracer_engine.cpp (BPF object construction,
// table population, tracepoint attachment) and bpf_prog.h (map shapes),
// reimplemented on github.com/cilium/ebpf instead of BCC.
package probe

import (
	"unsafe"

	"github.com/cilium/ebpf"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
	"github.com/Sysinternals/ProcMon-for-Linux/rawevent"
	"github.com/Sysinternals/ProcMon-for-Linux/runstate"
	"github.com/Sysinternals/ProcMon-for-Linux/schema"
)

// MaxPIDs is the number of PID-filter slots the kernel side reserves,
// matching spec.md §4.2's "up to 10 slots".
const MaxPIDs = 10

// kernelSchema mirrors struct syscall_schema in syscall_trace.c: fixed-
// width name/arg-name buffers and a tag array, laid out for a direct
// binary.Read/Write against the shared ebpf.Map.
type kernelSchema struct {
	Name         [schema.NameLimit]byte
	ArgNames     [schema.MaxArgs][schema.NameLimit]byte
	ArgTags      [schema.MaxArgs]uint32
	UsedArgCount uint32
}

// Maps bundles the kernel-shared tables the session owns and the UI/CLI
// writes into (run-state, PID filter) or the loader populates once at
// startup (schema). Their lifetimes are tied to the session, per design
// note 9 ("give the kernel-side maps lifetimes tied to the session").
type Maps struct {
	RunState *ebpf.Map
	PIDs     *ebpf.Map
	Syscalls *ebpf.Map
}

// WriteRunState pushes the latch's current value into the kernel-shared
// run-state map. The UI never blocks on this write.
func (m *Maps) WriteRunState(s runstate.State) error {
	key := uint32(0)
	val := uint32(s)
	if err := m.RunState.Update(&key, &val, ebpf.UpdateAny); err != nil {
		return tracererrors.Wrap(err, tracererrors.HostCapability, "probe.WriteRunState")
	}
	return nil
}

// WritePIDFilter writes up to MaxPIDs PIDs into the filter map, sentinel-
// terminated with -1. An empty pids slice means "match all": slot 0 is
// set to -1, matching the kernel side's first-slot-sentinel contract.
func (m *Maps) WritePIDFilter(pids []int32) error {
	if len(pids) > MaxPIDs {
		return tracererrors.ErrTooManyPIDs
	}

	slots := make([]int32, MaxPIDs)
	for i := range slots {
		slots[i] = -1
	}
	copy(slots, pids)

	for i, v := range slots {
		key := uint32(i)
		val := v
		if err := m.PIDs.Update(&key, &val, ebpf.UpdateAny); err != nil {
			return tracererrors.Wrap(err, tracererrors.HostCapability, "probe.WritePIDFilter")
		}
	}
	return nil
}

// WriteSchema populates the kernel-shared schema map, keyed by syscall
// number, for every syscall the session was asked to trace. Syscalls
// with no schema entry are silently skipped; the probe already trusts
// the schema and emits nothing for them (spec.md §4.1).
func (m *Maps) WriteSchema(schemas map[int]*schema.Syscall, names []string) error {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	for nr, sc := range schemas {
		if !wanted[sc.Name] {
			continue
		}
		kv := toKernelSchema(sc)
		key := uint32(nr)
		if err := m.Syscalls.Update(&key, &kv, ebpf.UpdateAny); err != nil {
			return tracererrors.WrapWithSyscall(err, tracererrors.HostCapability, "probe.WriteSchema", sc.Name)
		}
	}
	return nil
}

func toKernelSchema(sc *schema.Syscall) kernelSchema {
	var kv kernelSchema
	copy(kv.Name[:], sc.Name)
	for i := 0; i < schema.MaxArgs; i++ {
		copy(kv.ArgNames[i][:], sc.ArgNames[i])
		kv.ArgTags[i] = uint32(sc.ArgTags[i])
	}
	kv.UsedArgCount = uint32(sc.UsedArgCount)
	return kv
}

// recordSize is the fixed size of rawevent.Record as laid out on the wire;
// the perf ring's sample payload must match it exactly (spec.md §6 "Perf
// record layout").
var recordSize = int(unsafe.Sizeof(rawevent.Record{}))
