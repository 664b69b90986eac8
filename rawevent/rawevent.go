// Package rawevent defines the fixed-size record that crosses the
// kernel/user boundary: one syscall invocation from entry through exit,
// laid out to mirror the kernel-side struct so the perf ring payload can
// be decoded without an intermediate allocation per field.
package rawevent

// MaxStackFrames is the maximum number of user or kernel instruction
// pointers captured per event.
const MaxStackFrames = 32

// CommLen is the size of the captured command-name buffer.
const CommLen = 16

// ArgBufLen is the size of the argument payload, laid out per the
// syscall's schema.
const ArgBufLen = 128

// Record is the raw event emitted by the kernel probe.
type Record struct {
	PID             int32
	SyscallNr       uint32
	Timestamp       uint64 // monotonic-ns enter timestamp
	DurationNs      uint64 // elapsed duration, set at exit
	UserStack       [MaxStackFrames]uint64
	UserStackCount  uint64
	KernelStack     [MaxStackFrames]uint64
	KernelStackCount uint64
	Ret             int64
	Comm            [CommLen]byte
	Buffer          [ArgBufLen]byte
}

// CommString returns the command name as a Go string, trimmed at the
// first NUL.
func (r *Record) CommString() string {
	return cString(r.Comm[:])
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
