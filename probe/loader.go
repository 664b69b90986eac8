package probe

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
	"golang.org/x/sys/unix"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
)

// objects embeds the bundled, version-selected kernel objects built out
// of band from bpf/syscall_trace.c. Only a naming convention is assumed
// here (kernel-<min>-<max>.o); see DESIGN.md for why no compiled object
// is vendored in this tree.
//
//go:embed objects
var objects embed.FS

// kernelRange is one bundled object's supported kernel-version window,
// inclusive, compared against unix.Uname's release string.
type kernelRange struct {
	min, max [2]int // [major, minor]
	path     string
}

// Loader owns the loaded BPF collection, its attached links, the perf
// reader, and the shared maps. One Loader per session.
type Loader struct {
	coll      *ebpf.Collection
	links     []link.Link
	reader    *perf.Reader
	lossCount atomic.Uint64
	Maps      Maps
}

// Load selects the bundled kernel object matching the running kernel's
// version, loads it, and wires up the shared maps. It does not attach
// the tracepoints or open the perf reader; call Attach for that.
func Load() (*Loader, error) {
	path, err := selectObject()
	if err != nil {
		return nil, err
	}

	data, err := objects.ReadFile(path)
	if err != nil {
		return nil, tracererrors.ErrKernelArtifactUnavailable
	}

	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, tracererrors.WrapWithDetail(err, tracererrors.HostCapability, "probe.Load", "parse object")
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, tracererrors.WrapWithDetail(err, tracererrors.HostCapability, "probe.Load", "load collection")
	}

	l := &Loader{
		coll: coll,
		Maps: Maps{
			RunState: coll.Maps["run_state"],
			PIDs:     coll.Maps["pid_filter"],
			Syscalls: coll.Maps["syscalls"],
		},
	}
	return l, nil
}

// Attach attaches the raw sys_enter/sys_exit tracepoints and opens the
// perf reader on the events map. Grounded on
// ebpf_tracer_engine.cpp's BPF->open_perf_buffer +
// BPF->attach_tracepoint("raw_syscalls:sys_enter"/"sys_exit") sequence.
func (l *Loader) Attach() error {
	enter, err := link.AttachRawTracepoint(link.RawTracepointOptions{
		Name:    "sys_enter",
		Program: l.coll.Programs["trace_sys_enter"],
	})
	if err != nil {
		return tracererrors.WrapWithDetail(err, tracererrors.HostCapability, "probe.Attach", "sys_enter")
	}
	l.links = append(l.links, enter)

	exit, err := link.AttachRawTracepoint(link.RawTracepointOptions{
		Name:    "sys_exit",
		Program: l.coll.Programs["trace_sys_exit"],
	})
	if err != nil {
		return tracererrors.WrapWithDetail(err, tracererrors.HostCapability, "probe.Attach", "sys_exit")
	}
	l.links = append(l.links, exit)

	reader, err := perf.NewReader(l.coll.Maps["events"], os.Getpagesize()*64)
	if err != nil {
		return tracererrors.WrapWithDetail(err, tracererrors.HostCapability, "probe.Attach", "perf reader")
	}
	l.reader = reader

	return nil
}

// Reader returns the perf ring reader the poller drains.
func (l *Loader) Reader() *perf.Reader {
	return l.reader
}

// Close detaches every link, closes the perf reader, and releases the
// collection. Safe to call after a failed or partial Attach.
func (l *Loader) Close() error {
	if l.reader != nil {
		l.reader.Close()
	}
	for _, lk := range l.links {
		lk.Close()
	}
	if l.coll != nil {
		l.coll.Close()
	}
	return nil
}

// selectObject picks the bundled object whose kernel-version window
// contains the running kernel, per spec.md §4.4 "selecting the right
// kernel artifact by kernel version range from a bundled set".
func selectObject() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", tracererrors.Wrap(err, tracererrors.HostCapability, "probe.selectObject")
	}
	major, minor := parseRelease(cString(uname.Release[:]))

	ranges, err := bundledRanges()
	if err != nil {
		return "", err
	}

	for _, r := range ranges {
		if versionAtLeast(major, minor, r.min) && versionAtMost(major, minor, r.max) {
			return r.path, nil
		}
	}
	return "", tracererrors.ErrKernelArtifactUnavailable
}

// bundledRanges enumerates objects/ and parses each file name, sorted
// narrowest window first so that selectObject's first match is the
// narrowest applicable window.
func bundledRanges() ([]kernelRange, error) {
	entries, err := objects.ReadDir("objects")
	if err != nil {
		return nil, tracererrors.ErrKernelArtifactUnavailable
	}

	var out []kernelRange
	for _, e := range entries {
		var minMaj, minMin, maxMaj, maxMin int
		n, err := fmt.Sscanf(e.Name(), "kernel-%d.%d-%d.%d.o", &minMaj, &minMin, &maxMaj, &maxMin)
		if err != nil || n != 4 {
			continue
		}
		out = append(out, kernelRange{
			min:  [2]int{minMaj, minMin},
			max:  [2]int{maxMaj, maxMin},
			path: "objects/" + e.Name(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		wi := (out[i].max[0]-out[i].min[0])*1000 + out[i].max[1] - out[i].min[1]
		wj := (out[j].max[0]-out[j].min[0])*1000 + out[j].max[1] - out[j].min[1]
		return wi < wj
	})
	return out, nil
}

func versionAtLeast(major, minor int, floor [2]int) bool {
	if major != floor[0] {
		return major > floor[0]
	}
	return minor >= floor[1]
}

func versionAtMost(major, minor int, ceil [2]int) bool {
	if major != ceil[0] {
		return major < ceil[0]
	}
	return minor <= ceil[1]
}

func parseRelease(release string) (major, minor int) {
	fmt.Sscanf(release, "%d.%d", &major, &minor)
	return major, minor
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
