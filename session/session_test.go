package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sysinternals/ProcMon-for-Linux/runstate"
	"github.com/Sysinternals/ProcMon-for-Linux/schema"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
)

func testSchemas() map[int]*schema.Syscall {
	return map[int]*schema.Syscall{
		257: {Name: "openat", Number: 257},
		0:   {Name: "read", Number: 0},
	}
}

func TestOpenInertArmsStoreWithAllNamesByDefault(t *testing.T) {
	s, err := OpenInert(Config{}, testSchemas())
	require.NoError(t, err)
	require.NotNil(t, s.Store)

	require.NoError(t, s.Store.Insert(store.Row{Syscall: "openat"}))
	n, err := s.Store.Size()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOpenRejectsTooManyPIDs(t *testing.T) {
	pids := make([]int32, 11)
	_, err := Open(Config{PIDs: pids})
	require.Error(t, err)
}

func TestSuspendResumeWithoutProbeIsANoOp(t *testing.T) {
	s, err := OpenInert(Config{}, testSchemas())
	require.NoError(t, err)

	require.NoError(t, s.Suspend())
	require.Equal(t, runstate.Suspended, s.Latch.Load())

	require.NoError(t, s.Resume())
	require.Equal(t, runstate.Running, s.Latch.Load())
}

func TestStopWithoutStartJoinsCleanly(t *testing.T) {
	s, err := OpenInert(Config{}, testSchemas())
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	require.Equal(t, runstate.Stop, s.Latch.Load())
	require.Equal(t, uint64(0), s.LossCount())
}
