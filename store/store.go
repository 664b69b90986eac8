// Package store defines the event store's public contract: an
// indexed, mutable, append-heavy store of telemetry rows with paged
// query, multi-column sort, substring filter, search, and a per-syscall
// aggregate. The interface is the only dependency the consumer and the
// UI/headless driver have on a concrete backend.
package store

import (
	"sort"
	"strconv"
	"strings"
)

// Row is the in-store projection of a raw event.
type Row struct {
	// Rank is the monotonic insertion rank, stable for the row's
	// lifetime within the process.
	Rank uint64

	PID        int32
	Process    string
	Syscall    string
	Result     int64 // signed 64-bit; never narrowed
	DurationNs uint64
	EnterNs    uint64 // enter timestamp, ns since boot

	// Args is the 128-byte argument blob, owned by the row.
	Args [128]byte

	// UserStack holds the captured instruction pointers. Symbolization
	// is lazy and happens outside the store.
	UserStack []uint64
}

// SortKey is the closed set of columns a query may sort by.
type SortKey string

const (
	SortTime      SortKey = "time"
	SortPID       SortKey = "pid"
	SortProcess   SortKey = "process"
	SortOperation SortKey = "operation"
	SortResult    SortKey = "result"
	SortDuration  SortKey = "duration"
)

// ValidSortKeys is the closed set, used to validate query input.
var ValidSortKeys = map[SortKey]bool{
	SortTime: true, SortPID: true, SortProcess: true,
	SortOperation: true, SortResult: true, SortDuration: true,
}

// Aggregate is one entry of the per-syscall running aggregate.
type Aggregate struct {
	Count           int
	TotalDurationNs uint64
}

// StartMeta is the metadata singleton persisted in a snapshot: the
// session's start time, so the UI can re-anchor relative timestamps.
type StartMeta struct {
	StartTimeNs   uint64
	StartTimeWall int64 // unix seconds
}

// Engine is the event store's public contract. Implementations: a real
// in-process indexed store (store/sqlite) and an inert in-memory backend
// for tests (store/memory).
type Engine interface {
	// Init arms the store with the expected universe of syscall names.
	// A second call fails without disturbing existing state.
	Init(syscalls []string) error

	// Insert appends one row.
	Insert(row Row) error

	// InsertMany appends a batch of rows. All-or-nothing with respect to
	// observable state.
	InsertMany(rows []Row) error

	// Size returns the number of stored rows.
	Size() (int, error)

	// Clear drops all rows and resets aggregates.
	Clear() error

	// QueryPage returns one page of rows matching the filter.
	// pids empty means no PID restriction; syscalls empty means no
	// syscall restriction.
	QueryPage(pids []int32, page, pageSize int, sortKey SortKey, ascending bool, syscalls []string) ([]Row, error)

	// QueryFilteredPage is QueryPage additionally restricted to rows
	// whose rendering of PID, process, syscall, duration, or result
	// contains text as a substring.
	QueryFilteredPage(text string, pids []int32, page, pageSize int, sortKey SortKey, ascending bool, syscalls []string) ([]Row, error)

	// SearchIDs returns the 1-based ordinal positions, in the current
	// sort order, of rows matching text.
	SearchIDs(text string, pids []int32, sortKey SortKey, ascending bool, syscalls []string) ([]int, error)

	// Aggregate returns a snapshot of the per-syscall aggregate map.
	Aggregate() (map[string]Aggregate, error)

	// Export writes every row, the aggregate map, and meta to path.
	Export(meta StartMeta, path string) error

	// Load reconstitutes a prior store from path, returning its start
	// metadata.
	Load(path string) (StartMeta, error)
}

// RenderForSearch renders the five searchable columns of a row for
// substring matching, in the order the specification names them: PID,
// process, syscall name, duration, result.
func RenderForSearch(r Row) [5]string {
	return [5]string{
		strconv.FormatInt(int64(r.PID), 10),
		r.Process,
		r.Syscall,
		strconv.FormatUint(r.DurationNs, 10),
		strconv.FormatInt(r.Result, 10),
	}
}

// ContainsText reports whether any of the row's searchable renderings
// contains text as a case-sensitive substring. %, and _ have no special
// meaning to the caller; this is a plain substring match, never a glob.
func ContainsText(r Row, text string) bool {
	if text == "" {
		return true
	}
	for _, field := range RenderForSearch(r) {
		if strings.Contains(field, text) {
			return true
		}
	}
	return false
}

// Filter returns the rows matching the PID, syscall, and text-substring
// restrictions described in §4.6: an empty pids list means no PID
// restriction; a syscalls list whose size equals universeSize means no
// syscall restriction.
func Filter(rows []Row, text string, pids []int32, syscalls []string, universeSize int) []Row {
	var pidSet map[int32]bool
	if len(pids) > 0 {
		pidSet = make(map[int32]bool, len(pids))
		for _, p := range pids {
			pidSet[p] = true
		}
	}

	noSyscallRestriction := len(syscalls) == 0 || len(syscalls) == universeSize
	var syscallSet map[string]bool
	if !noSyscallRestriction {
		syscallSet = make(map[string]bool, len(syscalls))
		for _, s := range syscalls {
			syscallSet[s] = true
		}
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if pidSet != nil && !pidSet[r.PID] {
			continue
		}
		if syscallSet != nil && !syscallSet[r.Syscall] {
			continue
		}
		if !ContainsText(r, text) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sort orders rows by key/ascending, with enter time ASC as the secondary
// tie-break for every non-time key; remaining ties (including equal enter
// times under SortTime) are broken by insertion rank. The sort is stable.
func Sort(rows []Row, key SortKey, ascending bool) {
	less := func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch key {
		case SortPID:
			if a.PID != b.PID {
				return lessOrdered(a.PID, b.PID, ascending)
			}
		case SortProcess:
			if a.Process != b.Process {
				return lessOrdered(a.Process, b.Process, ascending)
			}
		case SortOperation:
			if a.Syscall != b.Syscall {
				return lessOrdered(a.Syscall, b.Syscall, ascending)
			}
		case SortResult:
			if a.Result != b.Result {
				return lessOrdered(a.Result, b.Result, ascending)
			}
		case SortDuration:
			if a.DurationNs != b.DurationNs {
				return lessOrdered(a.DurationNs, b.DurationNs, ascending)
			}
		case SortTime:
			if a.EnterNs != b.EnterNs {
				return lessOrdered(a.EnterNs, b.EnterNs, ascending)
			}
		}
		if key != SortTime && a.EnterNs != b.EnterNs {
			return a.EnterNs < b.EnterNs
		}
		return a.Rank < b.Rank
	}
	sort.SliceStable(rows, less)
}

type ordered interface {
	~int32 | ~int64 | ~uint64 | ~string
}

func lessOrdered[T ordered](a, b T, ascending bool) bool {
	if ascending {
		return a < b
	}
	return a > b
}

// Page slices rows into the page-th page of pageSize rows (0-based).
func Page(rows []Row, page, pageSize int) []Row {
	start := page * pageSize
	if start >= len(rows) {
		return []Row{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
