// Package memory is the inert event-store backend: an in-process slice
// store with no file-backed persistence beyond its own Export/Load pair,
// used by tests and by any caller that does not need durability across
// restarts. Grounded on the original's mock storage engine.
package memory

import (
	"encoding/json"
	"os"
	"sync"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
)

// Engine is a mutex-protected, slice-backed store.Engine. Any number of
// readers may run concurrently with a single writer: Query* methods take
// an RLock, Insert*/Clear take a full Lock.
type Engine struct {
	mu        sync.RWMutex
	armed     bool
	syscalls  map[string]bool
	rows      []store.Row
	aggregate map[string]store.Aggregate
	nextRank  uint64
}

// New returns an unarmed Engine.
func New() *Engine {
	return &Engine{aggregate: make(map[string]store.Aggregate)}
}

// Init arms the store. A second call fails without disturbing state.
func (e *Engine) Init(syscalls []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed {
		return tracererrors.New(tracererrors.Store, "memory.Init", "already armed")
	}
	e.syscalls = make(map[string]bool, len(syscalls))
	for _, s := range syscalls {
		e.syscalls[s] = true
	}
	e.armed = true
	return nil
}

// Insert appends one row.
func (e *Engine) Insert(row store.Row) error {
	return e.InsertMany([]store.Row{row})
}

// InsertMany appends a batch of rows atomically with respect to readers.
func (e *Engine) InsertMany(rows []store.Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range rows {
		e.nextRank++
		rows[i].Rank = e.nextRank
		agg := e.aggregate[rows[i].Syscall]
		agg.Count++
		agg.TotalDurationNs += rows[i].DurationNs
		e.aggregate[rows[i].Syscall] = agg
	}
	e.rows = append(e.rows, rows...)
	return nil
}

// Size returns the number of stored rows.
func (e *Engine) Size() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rows), nil
}

// Clear drops all rows and resets aggregates. Idempotent.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = nil
	e.aggregate = make(map[string]store.Aggregate)
	e.nextRank = 0
	return nil
}

// QueryPage returns one page of rows matching the filter.
func (e *Engine) QueryPage(pids []int32, page, pageSize int, sortKey store.SortKey, ascending bool, syscalls []string) ([]store.Row, error) {
	return e.QueryFilteredPage("", pids, page, pageSize, sortKey, ascending, syscalls)
}

// QueryFilteredPage is QueryPage with an additional substring filter.
func (e *Engine) QueryFilteredPage(text string, pids []int32, page, pageSize int, sortKey store.SortKey, ascending bool, syscalls []string) ([]store.Row, error) {
	if !store.ValidSortKeys[sortKey] {
		return nil, tracererrors.ErrUnknownSortKey
	}

	e.mu.RLock()
	filtered := e.filterLocked(text, pids, syscalls)
	e.mu.RUnlock()

	store.Sort(filtered, sortKey, ascending)
	return store.Page(filtered, page, pageSize), nil
}

// SearchIDs returns the 1-based ordinals, under the given sort, of rows
// matching text.
func (e *Engine) SearchIDs(text string, pids []int32, sortKey store.SortKey, ascending bool, syscalls []string) ([]int, error) {
	if !store.ValidSortKeys[sortKey] {
		return nil, tracererrors.ErrUnknownSortKey
	}

	e.mu.RLock()
	all := e.filterLocked("", pids, syscalls)
	e.mu.RUnlock()
	store.Sort(all, sortKey, ascending)

	var ids []int
	for i, r := range all {
		if store.ContainsText(r, text) {
			ids = append(ids, i+1)
		}
	}
	return ids, nil
}

// Aggregate returns a snapshot of the per-syscall aggregate map.
func (e *Engine) Aggregate() (map[string]store.Aggregate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]store.Aggregate, len(e.aggregate))
	for k, v := range e.aggregate {
		out[k] = v
	}
	return out, nil
}

// snapshotFile is the on-disk shape for the memory engine's own
// Export/Load pair.
type snapshotFile struct {
	Meta      store.StartMeta            `json:"meta"`
	Rows      []store.Row                `json:"rows"`
	Aggregate map[string]store.Aggregate `json:"aggregate"`
}

// Export writes every row, the aggregate map, and meta to path as JSON.
func (e *Engine) Export(meta store.StartMeta, path string) error {
	e.mu.RLock()
	agg := make(map[string]store.Aggregate, len(e.aggregate))
	for k, v := range e.aggregate {
		agg[k] = v
	}
	snap := snapshotFile{
		Meta:      meta,
		Rows:      append([]store.Row(nil), e.rows...),
		Aggregate: agg,
	}
	e.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "memory.Export")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "memory.Export")
	}
	return nil
}

// Load reconstitutes a prior store from path.
func (e *Engine) Load(path string) (store.StartMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.StartMeta{}, tracererrors.Wrap(err, tracererrors.Store, "memory.Load")
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.StartMeta{}, tracererrors.Wrap(err, tracererrors.Store, "memory.Load")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = snap.Rows
	e.aggregate = snap.Aggregate
	if e.aggregate == nil {
		e.aggregate = make(map[string]store.Aggregate)
	}
	var maxRank uint64
	for _, r := range e.rows {
		if r.Rank > maxRank {
			maxRank = r.Rank
		}
	}
	e.nextRank = maxRank
	e.armed = true
	return snap.Meta, nil
}

func (e *Engine) filterLocked(text string, pids []int32, syscalls []string) []store.Row {
	return store.Filter(e.rows, text, pids, syscalls, len(e.syscalls))
}
