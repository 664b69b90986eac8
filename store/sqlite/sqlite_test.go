package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/Sysinternals/ProcMon-for-Linux/store"
)

func makeRow(pid int32, syscall string, result int64, durationNs, enterNs uint64) store.Row {
	return store.Row{
		PID:        pid,
		Process:    "testproc",
		Syscall:    syscall,
		Result:     result,
		DurationNs: durationNs,
		EnterNs:    enterNs,
	}
}

func newArmed(t *testing.T, syscalls ...string) *Engine {
	t.Helper()
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	if err := e.Init(syscalls); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

func TestInsertManyIsAllOrNothingOnSize(t *testing.T) {
	e := newArmed(t, "read", "write")

	rows := []store.Row{
		makeRow(1000, "read", 0, 100, 1),
		makeRow(1001, "write", 0, 200, 2),
		makeRow(1002, "read", -1, 50, 3),
	}
	if err := e.InsertMany(rows); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	size, err := e.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != len(rows) {
		t.Errorf("Size() = %d, want %d", size, len(rows))
	}
}

func TestQueryPageTimeOrder(t *testing.T) {
	e := newArmed(t, "read")
	for i := 0; i < 5; i++ {
		if err := e.Insert(makeRow(1000, "read", 0, 10, uint64(100-i))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	rows, err := e.QueryPage(nil, 0, 10, store.SortTime, true, nil)
	if err != nil {
		t.Fatalf("QueryPage: %v", err)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].EnterNs > rows[i].EnterNs {
			t.Fatalf("rows not in ascending time order: %+v", rows)
		}
	}
}

func TestAggregateAccumulates(t *testing.T) {
	e := newArmed(t, "read")
	_ = e.Insert(makeRow(1, "read", 0, 100, 1))
	_ = e.Insert(makeRow(1, "read", 0, 200, 2))

	agg, err := e.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	got := agg["read"]
	if got.Count != 2 || got.TotalDurationNs != 300 {
		t.Errorf("Aggregate()[read] = %+v, want Count=2 TotalDurationNs=300", got)
	}
}

func TestClearResetsSizeAndAggregate(t *testing.T) {
	e := newArmed(t, "read")
	_ = e.Insert(makeRow(1, "read", 0, 100, 1))

	if err := e.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	size, _ := e.Size()
	if size != 0 {
		t.Errorf("Size() after Clear = %d, want 0", size)
	}
	agg, _ := e.Aggregate()
	if len(agg) != 0 {
		t.Errorf("Aggregate() after Clear = %+v, want empty", agg)
	}
}

func TestExportLoadRoundTrip(t *testing.T) {
	e := newArmed(t, "read", "write")
	for i := 0; i < 50; i++ {
		syscall := "read"
		if i%2 == 0 {
			syscall = "write"
		}
		_ = e.Insert(makeRow(int32(1000+i%5), syscall, int64(i-25), uint64(i*10), uint64(i)))
	}

	wantSize, _ := e.Size()
	wantAgg, _ := e.Aggregate()

	path := filepath.Join(t.TempDir(), "trace.db")
	meta := store.StartMeta{StartTimeNs: 42, StartTimeWall: 1700000000}
	if err := e.Export(meta, path); err != nil {
		t.Fatalf("Export: %v", err)
	}

	loaded, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loaded.Close()

	gotMeta, err := loaded.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotMeta != meta {
		t.Errorf("Load() meta = %+v, want %+v", gotMeta, meta)
	}

	gotSize, _ := loaded.Size()
	if gotSize != wantSize {
		t.Errorf("Size() after Load = %d, want %d", gotSize, wantSize)
	}

	gotAgg, _ := loaded.Aggregate()
	if len(gotAgg) != len(wantAgg) {
		t.Errorf("Aggregate() after Load has %d entries, want %d", len(gotAgg), len(wantAgg))
	}
	for k, v := range wantAgg {
		if gotAgg[k] != v {
			t.Errorf("Aggregate()[%s] = %+v, want %+v", k, gotAgg[k], v)
		}
	}
}

func TestUnknownSortKeyRejected(t *testing.T) {
	e := newArmed(t, "read")
	if _, err := e.QueryPage(nil, 0, 10, store.SortKey("bogus"), true, nil); err == nil {
		t.Fatal("expected error for unknown sort key")
	}
}
