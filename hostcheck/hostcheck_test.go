package hostcheck

import (
	"errors"
	"testing"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
)

func TestRequireTraceFS_Missing(t *testing.T) {
	saved := tracefsRoots
	tracefsRoots = []string{"/no/such/path/one", "/no/such/path/two"}
	defer func() { tracefsRoots = saved }()

	err := RequireTraceFS()
	if err == nil {
		t.Fatal("expected an error when no tracefs root exists")
	}
	if !errors.Is(err, tracererrors.ErrTraceFSUnavailable) {
		t.Errorf("expected ErrTraceFSUnavailable, got %v", err)
	}
}

func TestRequireTraceFS_Present(t *testing.T) {
	saved := tracefsRoots
	tracefsRoots = []string{t.TempDir()}
	defer func() { tracefsRoots = saved }()

	if err := RequireTraceFS(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
