// Package tracing appends paging and dispatch events to a queryable
// SQLite database for offline analysis, independent of the mandatory
// backing store and log files a run always produces.
package tracing

import (
	"database/sql"
	"fmt"
	"os"

	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/tebeka/atexit"

	"github.com/csopesy/simcore/obs"
)

// Kind distinguishes the four event shapes this system records.
type Kind string

// The event kinds a Recorder accepts.
const (
	KindFaultIn  Kind = "fault_in"
	KindEvict    Kind = "evict"
	KindDispatch Kind = "dispatch"
	KindPreempt  Kind = "preempt"
)

// Event is one row of the trace table.
type Event struct {
	ID        string
	Kind      Kind
	Tick      uint64
	ProcessID int
	Page      int // -1 when not a paging event
	Frame     int // -1 when not a paging event
}

// Recorder batches events in memory and flushes them inside a single
// SQLite transaction when the batch fills, on Flush, and on Close. The
// exit handler it registers with atexit runs only when the program
// exits through atexit.Exit.
// A nil *Recorder is a valid no-op recorder, so wiring a Recorder into
// the tick pipeline stays optional.
type Recorder struct {
	db        *sql.DB
	statement *sql.Stmt
	buffer    []Event
	batchSize int
}

// NewRecorder opens (creating if necessary) a SQLite database at path
// and prepares the trace table and insert statement.
func NewRecorder(path string) (*Recorder, error) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale trace db: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}

	obs.UseParallelIDGenerator()
	r := &Recorder{db: db, batchSize: 1000}

	if err := r.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.prepareStatement(); err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { _ = r.Flush() })

	return r, nil
}

func (r *Recorder) createTable() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS trace (
			id varchar(32) not null,
			kind varchar(16) not null,
			tick integer not null,
			process_id integer not null,
			page integer not null,
			frame integer not null
		);
	`)
	if err != nil {
		return fmt.Errorf("create trace table: %w", err)
	}

	_, err = r.db.Exec(`CREATE INDEX IF NOT EXISTS trace_kind_index ON trace (kind);`)
	if err != nil {
		return fmt.Errorf("create trace index: %w", err)
	}

	return nil
}

func (r *Recorder) prepareStatement() error {
	stmt, err := r.db.Prepare(
		`INSERT INTO trace (id, kind, tick, process_id, page, frame) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trace insert: %w", err)
	}
	r.statement = stmt
	return nil
}

// Record buffers an event, generating its id, flushing immediately if
// the batch has filled.
func (r *Recorder) Record(kind Kind, tick uint64, processID, page, frame int) {
	if r == nil {
		return
	}

	r.buffer = append(r.buffer, Event{
		ID:        obs.GetIDGenerator().Generate(),
		Kind:      kind,
		Tick:      tick,
		ProcessID: processID,
		Page:      page,
		Frame:     frame,
	})

	if len(r.buffer) >= r.batchSize {
		_ = r.Flush()
	}
}

// Flush writes every buffered event inside one transaction.
func (r *Recorder) Flush() error {
	if r == nil || len(r.buffer) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin trace flush: %w", err)
	}

	stmt := tx.Stmt(r.statement)
	for _, e := range r.buffer {
		if _, err := stmt.Exec(e.ID, string(e.Kind), e.Tick, e.ProcessID, e.Page, e.Frame); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trace event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trace flush: %w", err)
	}

	r.buffer = r.buffer[:0]
	return nil
}

// Close flushes any buffered events and releases the database handle.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	if err := r.Flush(); err != nil {
		return err
	}
	return r.db.Close()
}

// Query mirrors the reader half of the teacher's trace store: list
// every recorded event of a given kind, most recent first.
func Query(path string, kind Kind) ([]Event, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(
		`SELECT id, kind, tick, process_id, page, frame FROM trace WHERE kind = ? ORDER BY tick DESC`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var k string
		if err := rows.Scan(&e.ID, &k, &e.Tick, &e.ProcessID, &e.Page, &e.Frame); err != nil {
			return nil, fmt.Errorf("scan trace row: %w", err)
		}
		e.Kind = Kind(k)
		events = append(events, e)
	}

	return events, rows.Err()
}
