// Package stats records garbage collection statistics in a SQLite
// database, one row per cycle, grouped by the VM that ran it.
package stats

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/kestrel/vm"
)

// ErrRunNotFound indicates the requested run doesn't exist
var ErrRunNotFound = errors.New("run not found")

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	script  TEXT NOT NULL,
	started INTEGER NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS cycles (
	run            TEXT NOT NULL REFERENCES runs(id),
	cycle          INTEGER NOT NULL,
	marked         INTEGER NOT NULL,
	swept          INTEGER NOT NULL,
	finalized      INTEGER NOT NULL,
	weak_cleared   INTEGER NOT NULL,
	live_bytes     INTEGER NOT NULL,
	freed_bytes    INTEGER NOT NULL,
	next_threshold INTEGER NOT NULL,
	duration_ns    INTEGER NOT NULL,
	at             INTEGER NOT NULL,
	PRIMARY KEY (run, cycle)
)`}

// Store is a collection statistics database. It is safe for use by
// several VMs at once.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

// Run describes one VM execution recorded in the store.
type Run struct {
	ID      uuid.UUID
	Script  string
	Started time.Time
}

// Summary aggregates the cycles of one run.
type Summary struct {
	Run           Run
	Cycles        int
	Swept         int64
	Finalized     int64
	FreedBytes    int64
	PeakLiveBytes int64
	TotalPause    time.Duration
	MaxPause      time.Duration
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return &Store{db: db, log: commonlog.GetLogger("kestrel.stats")}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun registers a run for the VM with the given id.
func (s *Store) BeginRun(id uuid.UUID, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO runs (id, script, started) VALUES (?, ?, ?)",
		id.String(), script, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// Record stores the statistics of one cycle.
func (s *Store) Record(run uuid.UUID, c vm.CollectStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO cycles
		(run, cycle, marked, swept, finalized, weak_cleared, live_bytes, freed_bytes, next_threshold, duration_ns, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.String(), int64(c.Cycle), c.Marked, c.Swept, c.Finalized, c.WeakCleared,
		c.LiveBytes, c.FreedBytes, c.NextThreshold, int64(c.Duration), c.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving cycle %d: %w", c.Cycle, err)
	}
	return nil
}

// Hook returns a collect hook recording into the store under run. Write
// failures are logged; collection never fails because of the store.
func (s *Store) Hook(run uuid.UUID) func(vm.CollectStats) {
	return func(c vm.CollectStats) {
		if err := s.Record(run, c); err != nil {
			s.log.Errorf("run %s: %s", run, err)
		}
	}
}

// Attach registers the VM as a run and records its cycles from now on.
func (s *Store) Attach(machine *vm.VM, script string) error {
	if err := s.BeginRun(machine.ID, script); err != nil {
		return err
	}
	machine.Heap().OnCollect(s.Hook(machine.ID))
	return nil
}

// Runs lists recorded runs, oldest first.
func (s *Store) Runs() ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT id, script, started FROM runs ORDER BY started, id")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Cycles returns the recorded cycles of run in order.
func (s *Store) Cycles(run uuid.UUID) ([]vm.CollectStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT cycle, marked, swept, finalized, weak_cleared,
		live_bytes, freed_bytes, next_threshold, duration_ns, at
		FROM cycles WHERE run = ? ORDER BY cycle`, run.String())
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var out []vm.CollectStats
	for rows.Next() {
		var (
			c        vm.CollectStats
			cycle    int64
			duration int64
			at       int64
		)
		if err := rows.Scan(&cycle, &c.Marked, &c.Swept, &c.Finalized, &c.WeakCleared,
			&c.LiveBytes, &c.FreedBytes, &c.NextThreshold, &duration, &at); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		c.Cycle = uint64(cycle)
		c.Duration = time.Duration(duration)
		c.Timestamp = time.Unix(0, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summarize aggregates the cycles of run.
func (s *Store) Summarize(run uuid.UUID) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow("SELECT id, script, started FROM runs WHERE id = ?", run.String())
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrRunNotFound
		}
		return Summary{}, err
	}

	sum := Summary{Run: r}
	var total, longest int64
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(swept), 0), COALESCE(SUM(finalized), 0),
		COALESCE(SUM(freed_bytes), 0), COALESCE(MAX(live_bytes), 0),
		COALESCE(SUM(duration_ns), 0), COALESCE(MAX(duration_ns), 0)
		FROM cycles WHERE run = ?`, run.String()).Scan(
		&sum.Cycles, &sum.Swept, &sum.Finalized, &sum.FreedBytes, &sum.PeakLiveBytes, &total, &longest)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing run %s: %w", run, err)
	}
	sum.TotalPause = time.Duration(total)
	sum.MaxPause = time.Duration(longest)
	return sum, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		id      string
		r       Run
		started int64
	)
	if err := sc.Scan(&id, &r.Script, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Run{}, fmt.Errorf("run id %q: %w", id, err)
	}
	r.ID = parsed
	r.Started = time.Unix(0, started)
	return r, nil
}
