// Package runlog keeps a journal of benchmark runs in a local SQLite
// database, so timings can be compared across invocations.
package runlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is an append-only log of benchmark runs.
type Journal struct {
	db *sql.DB
}

// Run is one recorded benchmark run.
type Run struct {
	At    time.Time
	Op    string
	Nodes int
	Iters int
	AvgUS int64
	StdUS int64
}

// Open opens the journal at path, creating the database and schema if
// needed.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %q: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS bench_runs(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		op TEXT NOT NULL,
		nodes INTEGER NOT NULL,
		iters INTEGER NOT NULL,
		avg_us INTEGER NOT NULL,
		std_us INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one run to the journal. A zero At is filled with the
// current time.
func (j *Journal) Record(run Run) error {
	at := run.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := j.db.Exec(
		"INSERT INTO bench_runs(ts, op, nodes, iters, avg_us, std_us) VALUES(?,?,?,?,?,?)",
		at.Unix(), run.Op, run.Nodes, run.Iters, run.AvgUS, run.StdUS,
	); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(limit int) ([]Run, error) {
	rows, err := j.db.Query(
		"SELECT ts, op, nodes, iters, avg_us, std_us FROM bench_runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var ts int64
		if err := rows.Scan(&ts, &run.Op, &run.Nodes, &run.Iters, &run.AvgUS, &run.StdUS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.At = time.Unix(ts, 0)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
