// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Configuration errors.
var (
	// ErrNotRoot indicates the process does not have effective UID 0.
	ErrNotRoot = &TracerError{
		Kind:   Config,
		Detail: "must run with effective UID 0",
	}

	// ErrUnknownSyscall indicates an operator-supplied syscall name has no
	// schema entry.
	ErrUnknownSyscall = &TracerError{
		Kind:   Config,
		Detail: "unknown syscall name",
	}

	// ErrTooManyPIDs indicates more than the maximum number of PIDs were
	// supplied.
	ErrTooManyPIDs = &TracerError{
		Kind:   Config,
		Detail: "too many PIDs (max 10)",
	}

	// ErrInvalidPID indicates a PID argument failed to parse.
	ErrInvalidPID = &TracerError{
		Kind:   Config,
		Detail: "invalid PID",
	}

	// ErrSnapshotAndCaptureConflict indicates both --file and --collect
	// (or live flags) were specified.
	ErrSnapshotAndCaptureConflict = &TracerError{
		Kind:   Config,
		Detail: "cannot combine --file with live capture flags",
	}
)

// Host-capability errors.
var (
	// ErrTraceFSUnavailable indicates neither the debugfs nor tracefs
	// tracing mount is present.
	ErrTraceFSUnavailable = &TracerError{
		Kind:   HostCapability,
		Detail: "tracing events directory not found (mount debugfs or tracefs)",
	}

	// ErrKernelArtifactUnavailable indicates no bundled kernel object
	// matches the running kernel version.
	ErrKernelArtifactUnavailable = &TracerError{
		Kind:   HostCapability,
		Detail: "no bundled probe object matches this kernel version",
	}

	// ErrProbeAttach indicates the raw tracepoint attach call failed.
	ErrProbeAttach = &TracerError{
		Kind:   HostCapability,
		Detail: "failed to attach kernel probe",
	}
)

// Probe-runtime errors (non-fatal, counted).
var (
	// ErrPerfRingOverrun indicates the perf ring buffer dropped samples.
	ErrPerfRingOverrun = &TracerError{
		Kind:   ProbeLoss,
		Detail: "perf ring overrun",
	}

	// ErrMissedCorrelation indicates an exit record arrived with no
	// matching pending entry.
	ErrMissedCorrelation = &TracerError{
		Kind:   ProbeLoss,
		Detail: "missed entry/exit correlation",
	}
)

// Store errors.
var (
	// ErrStoreNotArmed indicates Init was never called.
	ErrStoreNotArmed = &TracerError{
		Kind:   Store,
		Detail: "store not armed",
	}

	// ErrSnapshotExport indicates the export step failed.
	ErrSnapshotExport = &TracerError{
		Kind:   Store,
		Detail: "failed to export snapshot",
	}

	// ErrSnapshotCorrupt indicates load found a malformed snapshot file.
	ErrSnapshotCorrupt = &TracerError{
		Kind:   Store,
		Detail: "snapshot file is corrupt or incompatible",
	}

	// ErrUnknownSortKey indicates a sort key outside the closed set.
	ErrUnknownSortKey = &TracerError{
		Kind:   Store,
		Detail: "unknown sort key",
	}
)

// Programming errors.
var (
	// ErrPendingTableInconsistent indicates an internal invariant
	// violation in the pending-entries bookkeeping.
	ErrPendingTableInconsistent = &TracerError{
		Kind:   Programming,
		Detail: "pending-entries table inconsistency",
	}

	// ErrQueueAlreadyCancelled indicates cancel was observed where a push
	// was still attempted.
	ErrQueueAlreadyCancelled = &TracerError{
		Kind:   Programming,
		Detail: "hand-off queue already cancelled",
	}
)
