// Package sqlite is the real event-store backend: an in-process SQLite
// database (":memory:" for a live capture) with the same query/sort/
// filter/paginate surface the original C++ engine exposes, grounded on
// storage/sqlite3_storage_engine.{h,cpp}. Export/Load mirror the
// original's own approach of treating the on-disk snapshot as the SQLite
// database file itself, rather than a bespoke serialization format.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	tracererrors "github.com/Sysinternals/ProcMon-for-Linux/errors"
	"github.com/Sysinternals/ProcMon-for-Linux/store"
)

const (
	createEbpf = `CREATE TABLE IF NOT EXISTS ebpf (
		rank INTEGER PRIMARY KEY,
		pid INTEGER,
		process TEXT,
		syscall TEXT,
		result INTEGER,
		duration_ns INTEGER,
		enter_ns INTEGER,
		args BLOB,
		stack BLOB
	)`
	createMetadata = `CREATE TABLE IF NOT EXISTS metadata (
		start_time_ns INTEGER,
		start_time_wall INTEGER
	)`
	createStats = `CREATE TABLE IF NOT EXISTS stats (
		syscall TEXT PRIMARY KEY,
		count INTEGER,
		duration_ns INTEGER
	)`
)

// Engine is a database/sql-backed store.Engine. Any number of readers may
// run concurrently with a single writer, enforced by mu: SQLite's own
// file-level locking is not relied on for the live (":memory:") case.
type Engine struct {
	mu       sync.RWMutex
	db       *sql.DB
	armed    bool
	universe int
	nextRank uint64
}

// New opens a live, in-memory SQLite-backed engine. Use NewAt to open or
// create a file-backed database directly (used by Load).
func New() (*Engine, error) {
	return NewAt(":memory:")
}

// NewAt opens (creating if necessary) a SQLite database at path and
// ensures its schema exists.
func NewAt(path string) (*Engine, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.NewAt")
	}
	// The live store is written by exactly one goroutine (the consumer)
	// and read by many; cap the pool to one writer-visible connection so
	// SQLite's single-writer model matches the store's own contract.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createEbpf); err != nil {
		db.Close()
		return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.NewAt")
	}
	if _, err := db.Exec(createMetadata); err != nil {
		db.Close()
		return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.NewAt")
	}
	if _, err := db.Exec(createStats); err != nil {
		db.Close()
		return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.NewAt")
	}

	return &Engine{db: db}, nil
}

// Close releases the underlying database connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Init arms the store. A second call fails without disturbing state.
func (e *Engine) Init(syscalls []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed {
		return tracererrors.New(tracererrors.Store, "sqlite.Init", "already armed")
	}
	e.universe = len(syscalls)
	e.armed = true
	return nil
}

// Insert appends one row.
func (e *Engine) Insert(row store.Row) error {
	return e.InsertMany([]store.Row{row})
}

// InsertMany appends a batch of rows inside a single transaction: either
// every row and its aggregate update commits, or none of it does.
func (e *Engine) InsertMany(rows []store.Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.Begin()
	if err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.InsertMany")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	insertStmt, err := tx.Prepare(`INSERT INTO ebpf (rank, pid, process, syscall, result, duration_ns, enter_ns, args, stack)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.InsertMany")
	}
	defer insertStmt.Close()

	for i := range rows {
		e.nextRank++
		rank := e.nextRank
		rows[i].Rank = rank

		if _, err := insertStmt.Exec(rank, rows[i].PID, rows[i].Process, rows[i].Syscall,
			rows[i].Result, rows[i].DurationNs, rows[i].EnterNs,
			rows[i].Args[:], encodeStack(rows[i].UserStack)); err != nil {
			return tracererrors.Wrap(err, tracererrors.Store, "sqlite.InsertMany")
		}

		if err := bumpAggregate(tx, rows[i].Syscall, rows[i].DurationNs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.InsertMany")
	}
	committed = true
	return nil
}

func bumpAggregate(tx *sql.Tx, syscall string, durationNs uint64) error {
	res, err := tx.Exec(`UPDATE stats SET count = count + 1, duration_ns = duration_ns + ? WHERE syscall = ?`,
		durationNs, syscall)
	if err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.bumpAggregate")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.bumpAggregate")
	}
	if n > 0 {
		return nil
	}
	if _, err := tx.Exec(`INSERT INTO stats (syscall, count, duration_ns) VALUES (?, 1, ?)`, syscall, durationNs); err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.bumpAggregate")
	}
	return nil
}

// Size returns the number of stored rows.
func (e *Engine) Size() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var n int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM ebpf`).Scan(&n); err != nil {
		return 0, tracererrors.Wrap(err, tracererrors.Store, "sqlite.Size")
	}
	return n, nil
}

// Clear drops all rows and resets aggregates. Idempotent.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.db.Exec(`DELETE FROM ebpf`); err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.Clear")
	}
	if _, err := e.db.Exec(`DELETE FROM stats`); err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.Clear")
	}
	e.nextRank = 0
	return nil
}

// QueryPage returns one page of rows matching the filter.
func (e *Engine) QueryPage(pids []int32, page, pageSize int, sortKey store.SortKey, ascending bool, syscalls []string) ([]store.Row, error) {
	return e.QueryFilteredPage("", pids, page, pageSize, sortKey, ascending, syscalls)
}

// QueryFilteredPage is QueryPage with an additional substring filter. The
// base PID/syscall restriction is pushed down to SQL; the substring test
// and final sort are applied in Go so the semantics are identical,
// column-for-column, to the in-memory engine (see store.Filter/store.Sort).
func (e *Engine) QueryFilteredPage(text string, pids []int32, page, pageSize int, sortKey store.SortKey, ascending bool, syscalls []string) ([]store.Row, error) {
	if !store.ValidSortKeys[sortKey] {
		return nil, tracererrors.ErrUnknownSortKey
	}

	rows, err := e.selectFiltered(pids, syscalls)
	if err != nil {
		return nil, err
	}

	rows = store.Filter(rows, text, nil, nil, e.universe)
	store.Sort(rows, sortKey, ascending)
	return store.Page(rows, page, pageSize), nil
}

// SearchIDs returns the 1-based ordinals, under the given sort, of rows
// matching text.
func (e *Engine) SearchIDs(text string, pids []int32, sortKey store.SortKey, ascending bool, syscalls []string) ([]int, error) {
	if !store.ValidSortKeys[sortKey] {
		return nil, tracererrors.ErrUnknownSortKey
	}

	rows, err := e.selectFiltered(pids, syscalls)
	if err != nil {
		return nil, err
	}
	store.Sort(rows, sortKey, ascending)

	var ids []int
	for i, r := range rows {
		if store.ContainsText(r, text) {
			ids = append(ids, i+1)
		}
	}
	return ids, nil
}

func (e *Engine) selectFiltered(pids []int32, syscalls []string) ([]store.Row, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	query := `SELECT rank, pid, process, syscall, result, duration_ns, enter_ns, args, stack FROM ebpf`
	var args []any
	var clauses []string

	if len(pids) > 0 {
		placeholders := make([]string, len(pids))
		for i, p := range pids {
			placeholders[i] = "?"
			args = append(args, p)
		}
		clauses = append(clauses, fmt.Sprintf("pid IN (%s)", join(placeholders)))
	}
	if len(syscalls) > 0 && len(syscalls) != e.universe {
		placeholders := make([]string, len(syscalls))
		for i, s := range syscalls {
			placeholders[i] = "?"
			args = append(args, s)
		}
		clauses = append(clauses, fmt.Sprintf("syscall IN (%s)", join(placeholders)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + join(clauses, " AND ")
	}

	rs, err := e.db.Query(query, args...)
	if err != nil {
		return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.selectFiltered")
	}
	defer rs.Close()

	var out []store.Row
	for rs.Next() {
		var r store.Row
		var argBlob, stackBlob []byte
		if err := rs.Scan(&r.Rank, &r.PID, &r.Process, &r.Syscall, &r.Result, &r.DurationNs, &r.EnterNs, &argBlob, &stackBlob); err != nil {
			return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.selectFiltered")
		}
		copy(r.Args[:], argBlob)
		r.UserStack = decodeStack(stackBlob)
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.selectFiltered")
	}
	return out, nil
}

func join(parts []string, sep ...string) string {
	s := ", "
	if len(sep) > 0 {
		s = sep[0]
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += s
		}
		out += p
	}
	return out
}

// Aggregate returns a snapshot of the per-syscall aggregate map.
func (e *Engine) Aggregate() (map[string]store.Aggregate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rows, err := e.db.Query(`SELECT syscall, count, duration_ns FROM stats`)
	if err != nil {
		return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.Aggregate")
	}
	defer rows.Close()

	out := make(map[string]store.Aggregate)
	for rows.Next() {
		var name string
		var agg store.Aggregate
		if err := rows.Scan(&name, &agg.Count, &agg.TotalDurationNs); err != nil {
			return nil, tracererrors.Wrap(err, tracererrors.Store, "sqlite.Aggregate")
		}
		out[name] = agg
	}
	return out, rows.Err()
}

// Export writes meta and every row/aggregate to a fresh SQLite database
// at path, following the original's pattern of attaching the on-disk
// file and copying the live tables into it (original: sqlite3_backup;
// here: ATTACH DATABASE + CREATE TABLE ... AS SELECT for the ebpf and
// stats tables, plus a new metadata table holding meta).
func (e *Engine) Export(meta store.StartMeta, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.db.Exec(`ATTACH DATABASE ? AS export_target`, path); err != nil {
		return tracererrors.WrapWithDetail(err, tracererrors.Store, "sqlite.Export", "attach")
	}
	defer e.db.Exec(`DETACH DATABASE export_target`)

	stmts := []string{
		`CREATE TABLE export_target.ebpf AS SELECT * FROM ebpf`,
		`CREATE TABLE export_target.stats AS SELECT * FROM stats`,
		`CREATE TABLE export_target.metadata (start_time_ns INTEGER, start_time_wall INTEGER)`,
	}
	for _, s := range stmts {
		if _, err := e.db.Exec(s); err != nil {
			return tracererrors.WrapWithDetail(err, tracererrors.Store, "sqlite.Export", s)
		}
	}

	if _, err := e.db.Exec(`INSERT INTO export_target.metadata (start_time_ns, start_time_wall) VALUES (?, ?)`,
		meta.StartTimeNs, meta.StartTimeWall); err != nil {
		return tracererrors.Wrap(err, tracererrors.Store, "sqlite.Export")
	}

	return nil
}

// Load reconstitutes a prior store from path: the live connection is
// replaced with one opened directly against the snapshot file, matching
// the original's "disconnect from in-memory database, attach to DB file"
// sequence.
func (e *Engine) Load(path string) (store.StartMeta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db != nil {
		e.db.Close()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return store.StartMeta{}, tracererrors.Wrap(err, tracererrors.Store, "sqlite.Load")
	}
	db.SetMaxOpenConns(1)
	e.db = db
	e.armed = true

	var meta store.StartMeta
	row := e.db.QueryRow(`SELECT start_time_ns, start_time_wall FROM metadata LIMIT 1`)
	if err := row.Scan(&meta.StartTimeNs, &meta.StartTimeWall); err != nil {
		return store.StartMeta{}, tracererrors.WrapWithDetail(err, tracererrors.Store, "sqlite.Load", "metadata")
	}

	var maxRank sql.NullInt64
	if err := e.db.QueryRow(`SELECT MAX(rank) FROM ebpf`).Scan(&maxRank); err != nil {
		return store.StartMeta{}, tracererrors.Wrap(err, tracererrors.Store, "sqlite.Load")
	}
	if maxRank.Valid {
		e.nextRank = uint64(maxRank.Int64)
	}

	return meta, nil
}

func encodeStack(ips []uint64) []byte {
	buf := make([]byte, len(ips)*8)
	for i, ip := range ips {
		binary.LittleEndian.PutUint64(buf[i*8:], ip)
	}
	return buf
}

func decodeStack(buf []byte) []uint64 {
	if len(buf) == 0 {
		return nil
	}
	ips := make([]uint64, len(buf)/8)
	for i := range ips {
		ips[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return ips
}
