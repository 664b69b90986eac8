// Package hostcheck verifies the host environment can support the kernel
// probe before the session starts: effective UID 0 and a mounted tracing
// filesystem exposing the syscall tracepoint descriptors.
package hostcheck

import (
	"os"

	"golang.org/x/sys/unix"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
)

// Capability numbers relevant to attaching raw tracepoints and loading BPF
// programs (from linux/capability.h). Only used for diagnostic reporting;
// the kernel itself is the final arbiter.
const (
	CapSysAdmin          = 21
	CapPerfmon           = 38
	CapBPF               = 39
	CapCheckpointRestore = 40
)

// tracefsRoots mirrors schema.tracefsRoots; kept independent so this
// package has no compile-time dependency on schema.
var tracefsRoots = []string{
	"/sys/kernel/debug/tracing/events/syscalls",
	"/sys/kernel/tracing/events/syscalls",
}

// RequireRoot returns ErrNotRoot unless the effective UID is 0.
func RequireRoot() error {
	if unix.Geteuid() != 0 {
		return tracererrors.ErrNotRoot
	}
	return nil
}

// RequireTraceFS returns ErrTraceFSUnavailable unless one of the known
// tracing mount points exposes the syscalls event directory.
func RequireTraceFS() error {
	for _, root := range tracefsRoots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return nil
		}
	}
	return tracererrors.ErrTraceFSUnavailable
}

// Check runs every startup host-capability check, returning the first
// failure.
func Check() error {
	if err := RequireRoot(); err != nil {
		return err
	}
	if err := RequireTraceFS(); err != nil {
		return err
	}
	return nil
}
