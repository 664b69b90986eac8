package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{Config, "configuration error"},
		{HostCapability, "host capability error"},
		{ProbeLoss, "probe runtime loss"},
		{Store, "store error"},
		{Programming, "programming error"},
		{Kind(999), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("Kind.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTracerError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TracerError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "<nil>",
		},
		{
			name: "full error",
			err: &TracerError{
				Op:      "consumer.translate",
				Syscall: "kill",
				PID:     1234,
				Kind:    ProbeLoss,
				Detail:  "missed entry",
				Err:     fmt.Errorf("lookup failed"),
			},
			expected: "consumer.translate: syscall kill: pid 1234: missed entry: lookup failed",
		},
		{
			name: "without pid",
			err: &TracerError{
				Op:     "schema.Build",
				Kind:   HostCapability,
				Detail: "tracefs not mounted",
			},
			expected: "schema.Build: tracefs not mounted",
		},
		{
			name: "kind only",
			err: &TracerError{
				Kind: Config,
			},
			expected: "configuration error",
		},
		{
			name: "with underlying error",
			err: &TracerError{
				Op:   "store.Export",
				Kind: Store,
				Err:  fmt.Errorf("disk full"),
			},
			expected: "store.Export: store error: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("TracerError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTracerError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &TracerError{
		Op:   "test",
		Kind: Programming,
		Err:  underlying,
	}

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	var nilErr *TracerError
	if got := nilErr.Unwrap(); got != nil {
		t.Errorf("nil.Unwrap() = %v, want nil", got)
	}
}

func TestTracerError_Is(t *testing.T) {
	err1 := &TracerError{Kind: Store, Op: "test1"}
	err2 := &TracerError{Kind: Store, Op: "test2"}
	err3 := &TracerError{Kind: Config, Op: "test3"}

	if !err1.Is(err2) {
		t.Error("err1.Is(err2) should be true (same kind)")
	}
	if err1.Is(err3) {
		t.Error("err1.Is(err3) should be false (different kind)")
	}
	if err1.Is(fmt.Errorf("some error")) {
		t.Error("err1.Is(fmt.Errorf(...)) should be false")
	}

	var nilErr *TracerError
	if !nilErr.Is(nil) {
		t.Error("nil.Is(nil) should be true")
	}
}

func TestNew(t *testing.T) {
	err := New(Config, "validate", "pid list is empty")

	if err.Kind != Config {
		t.Errorf("Kind = %v, want %v", err.Kind, Config)
	}
	if err.Op != "validate" {
		t.Errorf("Op = %q, want %q", err.Op, "validate")
	}
	if err.Detail != "pid list is empty" {
		t.Errorf("Detail = %q, want %q", err.Detail, "pid list is empty")
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("permission denied")
	err := Wrap(underlying, HostCapability, "open tracepoint")

	if err.Err != underlying {
		t.Error("Wrapped error should preserve underlying error")
	}
	if err.Kind != HostCapability {
		t.Errorf("Kind = %v, want %v", err.Kind, HostCapability)
	}
	if err.Op != "open tracepoint" {
		t.Errorf("Op = %q, want %q", err.Op, "open tracepoint")
	}
}

func TestWrapWithPID(t *testing.T) {
	underlying := fmt.Errorf("not found")
	err := WrapWithPID(underlying, ProbeLoss, "correlate", 4242)

	if err.PID != 4242 {
		t.Errorf("PID = %d, want %d", err.PID, 4242)
	}
}

func TestWrapWithSyscall(t *testing.T) {
	underlying := fmt.Errorf("bad tag")
	err := WrapWithSyscall(underlying, Config, "schema", "mmap")

	if err.Syscall != "mmap" {
		t.Errorf("Syscall = %q, want %q", err.Syscall, "mmap")
	}
}

func TestWrapWithDetail(t *testing.T) {
	underlying := fmt.Errorf("syscall failed")
	err := WrapWithDetail(underlying, Programming, "pending", "table inconsistency")

	if err.Detail != "table inconsistency" {
		t.Errorf("Detail = %q, want %q", err.Detail, "table inconsistency")
	}
}

func TestIsKind(t *testing.T) {
	err := &TracerError{Kind: Store}
	wrapped := fmt.Errorf("wrapped: %w", err)

	if !IsKind(err, Store) {
		t.Error("IsKind(err, Store) should be true")
	}
	if !IsKind(wrapped, Store) {
		t.Error("IsKind(wrapped, Store) should be true")
	}
	if IsKind(err, Config) {
		t.Error("IsKind(err, Config) should be false")
	}
	if IsKind(fmt.Errorf("plain error"), Store) {
		t.Error("IsKind(plain error, Store) should be false")
	}
}

func TestGetKind(t *testing.T) {
	err := &TracerError{Kind: HostCapability}
	wrapped := fmt.Errorf("wrapped: %w", err)

	kind, ok := GetKind(err)
	if !ok || kind != HostCapability {
		t.Errorf("GetKind(err) = (%v, %v), want (%v, true)", kind, ok, HostCapability)
	}

	kind, ok = GetKind(wrapped)
	if !ok || kind != HostCapability {
		t.Errorf("GetKind(wrapped) = (%v, %v), want (%v, true)", kind, ok, HostCapability)
	}

	_, ok = GetKind(fmt.Errorf("plain error"))
	if ok {
		t.Error("GetKind(plain error) should return false")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *TracerError
		kind Kind
	}{
		{"ErrNotRoot", ErrNotRoot, Config},
		{"ErrUnknownSyscall", ErrUnknownSyscall, Config},
		{"ErrTraceFSUnavailable", ErrTraceFSUnavailable, HostCapability},
		{"ErrProbeAttach", ErrProbeAttach, HostCapability},
		{"ErrPerfRingOverrun", ErrPerfRingOverrun, ProbeLoss},
		{"ErrMissedCorrelation", ErrMissedCorrelation, ProbeLoss},
		{"ErrStoreNotArmed", ErrStoreNotArmed, Store},
		{"ErrSnapshotCorrupt", ErrSnapshotCorrupt, Store},
		{"ErrPendingTableInconsistent", ErrPendingTableInconsistent, Programming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("%s.Kind = %v, want %v", tt.name, tt.err.Kind, tt.kind)
			}
			wrapped := Wrap(fmt.Errorf("underlying"), tt.kind, "test")
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(wrapped, %s) should be true", tt.name)
			}
		})
	}
}

func TestErrorChain(t *testing.T) {
	underlying := fmt.Errorf("file not found")
	err1 := Wrap(underlying, Store, "snapshot.Load")
	err2 := fmt.Errorf("session start failed: %w", err1)

	if !errors.Is(err2, ErrSnapshotCorrupt) {
		t.Error("errors.Is should find ErrSnapshotCorrupt in chain")
	}

	var terr *TracerError
	if !errors.As(err2, &terr) {
		t.Error("errors.As should find TracerError in chain")
	}
	if terr.Op != "snapshot.Load" {
		t.Errorf("terr.Op = %q, want %q", terr.Op, "snapshot.Load")
	}

	if errors.Unwrap(err1) != underlying {
		t.Error("Unwrap should return underlying error")
	}
}
