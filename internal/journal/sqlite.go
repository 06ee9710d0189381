// Package journal records every observed sensor event and its effect on the
// speed into a SQLite database, one session per service run.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

var ErrNotOpen = errors.New("journal is not open")

// Entry is one observed event.
type Entry struct {
	Session     string
	Seq         int
	Event       int
	Description string
	Before      int
	After       int
	Applied     bool
	Rejected    bool
	Time        time.Time
}

// SQLiteJournal buffers entries and writes them in batches.
type SQLiteJournal struct {
	db        *sql.DB
	statement *sql.Stmt

	path      string
	session   string
	batchSize int
	buffered  []Entry
	seq       int
	mu        sync.Mutex
}

// NewSQLiteJournal creates a journal writing to path. A batch size below 1
// writes every entry immediately.
func NewSQLiteJournal(path string, batchSize int) *SQLiteJournal {
	if batchSize < 1 {
		batchSize = 1
	}
	j := &SQLiteJournal{
		path:      path,
		batchSize: batchSize,
	}

	atexit.Register(func() { _ = j.Flush() })

	return j
}

// Open connects to the database, creates the schema and starts a session.
func (j *SQLiteJournal) Open(mode string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	db, err := sql.Open("sqlite3", j.path)
	if err != nil {
		return fmt.Errorf("failed to open journal %s: %w", j.path, err)
	}
	j.db = db

	if err := j.createTables(); err != nil {
		db.Close()
		j.db = nil
		return err
	}

	j.session = xid.New().String()
	_, err = j.db.Exec(
		`INSERT INTO sessions (id, mode, started_at) VALUES (?, ?, ?)`,
		j.session, mode, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create journal session: %w", err)
	}

	j.statement, err = j.db.Prepare(`INSERT INTO observations
		(session, seq, event, description, speed_before, speed_after, applied, rejected, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare journal statement: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			mode       TEXT NOT NULL,
			started_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			session      TEXT NOT NULL REFERENCES sessions(id),
			seq          INTEGER NOT NULL,
			event        INTEGER NOT NULL,
			description  TEXT,
			speed_before INTEGER NOT NULL,
			speed_after  INTEGER NOT NULL,
			applied      BOOLEAN NOT NULL,
			rejected     BOOLEAN NOT NULL,
			ts           INTEGER NOT NULL,
			PRIMARY KEY (session, seq)
		)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}

// Session returns the id of the current session, empty before Open.
func (j *SQLiteJournal) Session() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// Record buffers e, stamping it with the session and next sequence number.
func (j *SQLiteJournal) Record(e Entry) error {
	j.mu.Lock()
	if j.db == nil {
		j.mu.Unlock()
		return ErrNotOpen
	}
	j.seq++
	e.Session = j.session
	e.Seq = j.seq
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	j.buffered = append(j.buffered, e)
	full := len(j.buffered) >= j.batchSize
	j.mu.Unlock()

	if full {
		return j.Flush()
	}
	return nil
}

// Flush writes all buffered entries in one transaction.
func (j *SQLiteJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil || len(j.buffered) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	stmt := tx.Stmt(j.statement)
	for _, e := range j.buffered {
		_, err := stmt.Exec(e.Session, e.Seq, e.Event, e.Description,
			e.Before, e.After, e.Applied, e.Rejected, e.Time.UnixNano())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to write journal entry %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal: %w", err)
	}

	j.buffered = nil
	return nil
}

// Observations reads back the entries of a session in sequence order.
func (j *SQLiteJournal) Observations(session string) ([]Entry, error) {
	j.mu.Lock()
	db := j.db
	j.mu.Unlock()
	if db == nil {
		return nil, ErrNotOpen
	}

	rows, err := db.Query(`SELECT session, seq, event, description, speed_before,
		speed_after, applied, rejected, ts
		FROM observations WHERE session = ? ORDER BY seq`, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Session, &e.Seq, &e.Event, &e.Description,
			&e.Before, &e.After, &e.Applied, &e.Rejected, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Time = time.Unix(0, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close flushes pending entries and closes the database.
func (j *SQLiteJournal) Close() error {
	flushErr := j.Flush()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return flushErr
	}
	if j.statement != nil {
		j.statement.Close()
		j.statement = nil
	}
	err := j.db.Close()
	j.db = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}
