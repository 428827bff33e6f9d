// Package trace records the retired instruction stream of a core into a
// SQLite database for offline analysis.
package trace

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ooosim/timing/pipeline"
)

const defaultBatchSize = 10000

// SQLiteRecorder buffers retirements and writes them to a SQLite database
// in batches. It implements pipeline.RetireListener.
type SQLiteRecorder struct {
	*sql.DB
	statement *sql.Stmt

	dbName    string
	batchSize int
	pending   []pipeline.Retirement
	written   uint64
}

// NewSQLiteRecorder creates a recorder that writes to dbName.sqlite3. An
// empty dbName picks a unique name. Buffered records are flushed when the
// process exits through atexit.
func NewSQLiteRecorder(dbName string) *SQLiteRecorder {
	r := &SQLiteRecorder{
		dbName:    dbName,
		batchSize: defaultBatchSize,
	}

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			slog.Error("failed to flush retirement trace", "err", err)
		}
	})

	return r
}

// SetBatchSize sets how many records are buffered before a write.
func (r *SQLiteRecorder) SetBatchSize(n int) {
	r.batchSize = max(n, 1)
}

// FileName returns the database file name.
func (r *SQLiteRecorder) FileName() string {
	return r.dbName + ".sqlite3"
}

// Written returns the number of records written so far.
func (r *SQLiteRecorder) Written() uint64 {
	return r.written
}

// Init creates the database and its table.
func (r *SQLiteRecorder) Init() error {
	if r.dbName == "" {
		r.dbName = "ooosim_trace_" + xid.New().String()
	}

	filename := r.FileName()
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return fmt.Errorf("failed to open trace database: %w", err)
	}
	r.DB = db

	if _, err := r.Exec(`
		CREATE TABLE retire
		(
			seq   INTEGER NOT NULL,
			cycle INTEGER NOT NULL,
			pc    INTEGER NOT NULL,
			inst  VARCHAR(100),
			dest  INTEGER,
			value INTEGER
		);
	`); err != nil {
		return fmt.Errorf("failed to create trace table: %w", err)
	}

	if _, err := r.Exec(`CREATE INDEX retire_pc_index ON retire (pc);`); err != nil {
		return fmt.Errorf("failed to create trace index: %w", err)
	}

	r.statement, err = r.Prepare(`INSERT INTO retire VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace statement: %w", err)
	}

	slog.Info("retirement trace enabled", "file", filename)

	return nil
}

// OnRetire buffers one retirement.
func (r *SQLiteRecorder) OnRetire(ret pipeline.Retirement) {
	r.pending = append(r.pending, ret)
	if len(r.pending) >= r.batchSize {
		if err := r.Flush(); err != nil {
			panic(err)
		}
	}
}

// Flush writes all buffered records in one transaction.
func (r *SQLiteRecorder) Flush() error {
	if len(r.pending) == 0 || r.DB == nil {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}

	stmt := tx.Stmt(r.statement)
	for _, ret := range r.pending {
		// SQLite integers are signed; keep the bit pattern.
		_, err := stmt.Exec(
			int64(ret.Seq),
			int64(ret.Cycle),
			int64(ret.PC),
			ret.Text,
			ret.Dest,
			int64(ret.Value),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert retirement %d: %w", ret.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace transaction: %w", err)
	}

	r.written += uint64(len(r.pending))
	r.pending = nil

	return nil
}

// Close flushes pending records and closes the database.
func (r *SQLiteRecorder) Close() error {
	if r.DB == nil {
		return nil
	}

	if err := r.Flush(); err != nil {
		return err
	}

	err := r.DB.Close()
	r.DB = nil

	return err
}
