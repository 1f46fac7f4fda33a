package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/seqindex/job"
)

const (
	defaultBusyTimeout = 5 * time.Second
	lookupChunk        = 500
)

// DB is a Store backed by database/sql.
type DB struct {
	db      *sql.DB
	dialect sqlDialect
	driver  string
}

// Open connects to dsn, detecting the driver when empty, and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	if driver == "" {
		if detected, ok := DetectDriver(dsn); ok {
			driver = detected
		} else {
			driver = "sqlite"
		}
	}
	dialect, ok := resolveDialect(driver)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	driverName := string(dialect)
	switch dialect {
	case dialectSQLite:
		dsn = sqliteDSN(dsn, defaultBusyTimeout)
	case dialectMySQL:
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driverName, err)
	}
	if dialect == dialectSQLite {
		db.SetMaxOpenConns(1)
	}
	ret := &DB{db: db, dialect: dialect, driver: driverName}
	if err := ret.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ret, nil
}

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string {
	return d.driver
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seq_record (
			id VARCHAR(255) NOT NULL PRIMARY KEY,
			seq TEXT NOT NULL,
			description TEXT,
			length BIGINT NOT NULL,
			modified_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seq_job (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			run VARCHAR(64),
			status VARCHAR(32) NOT NULL,
			percent INT NOT NULL,
			message TEXT,
			file TEXT,
			current_count BIGINT NOT NULL,
			total_count BIGINT NOT NULL,
			started_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// PutSequences upserts records in a single transaction.
func (d *DB) PutSequences(ctx context.Context, records []*Sequence) error {
	if len(records) == 0 {
		return nil
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			if err := d.putSequence(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) putSequence(ctx context.Context, q sqlQueryer, record *Sequence) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("store: sequence id is required")
	}
	if _, err := q.ExecContext(ctx, d.dialect.rebind(`DELETE FROM seq_record WHERE id = ?`), record.ID); err != nil {
		return fmt.Errorf("failed to replace sequence %s: %w", record.ID, err)
	}
	modified := record.ModifiedAt
	if modified.IsZero() {
		modified = time.Now()
	}
	length := record.Length
	if length == 0 {
		length = len(record.Sequence)
	}
	_, err := q.ExecContext(ctx, d.dialect.rebind(`INSERT INTO seq_record(id, seq, description, length, modified_at) VALUES(?,?,?,?,?)`),
		record.ID, record.Sequence, record.Description, length, modified.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert sequence %s: %w", record.ID, err)
	}
	return nil
}

// GetSequences looks ids up in chunks; missing ids are absent from the result.
func (d *DB) GetSequences(ctx context.Context, ids []string) (map[string]*Sequence, error) {
	ret := make(map[string]*Sequence, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := start + lookupChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `SELECT id, seq, description, length, modified_at FROM seq_record WHERE id IN (` + placeholders(len(chunk)) + `)`
		rows, err := d.db.QueryContext(ctx, d.dialect.rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query sequences: %w", err)
		}
		for rows.Next() {
			record, err := scanSequence(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			ret[record.ID] = record
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// GetSequence returns the record stored under id.
func (d *DB) GetSequence(ctx context.Context, id string) (*Sequence, error) {
	row := d.db.QueryRowContext(ctx, d.dialect.rebind(`SELECT id, seq, description, length, modified_at FROM seq_record WHERE id = ?`), id)
	record, err := scanSequence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sequence %s", ErrNotFound, id)
	}
	return record, err
}

// CountSequences returns the number of stored records.
func (d *DB) CountSequences(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seq_record`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetJob returns the job stored under id, or nil when none exists.
func (d *DB) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return d.getJob(ctx, d.db, id, false)
}

func (d *DB) getJob(ctx context.Context, q sqlQueryer, id string, lock bool) (*job.Job, error) {
	query := `SELECT id, run, status, percent, message, file, current_count, total_count, started_at, updated_at FROM seq_job WHERE id = ?`
	if lock {
		query += d.dialect.forUpdate()
	}
	var (
		ret              job.Job
		run, msg, file   sql.NullString
		status           string
		started, updated int64
	)
	err := q.QueryRowContext(ctx, d.dialect.rebind(query), id).Scan(&ret.ID, &run, &status, &ret.Percent, &msg, &file, &ret.Current, &ret.Total, &started, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	ret.Run, ret.Message, ret.File = run.String, msg.String, file.String
	if ret.Status = job.Status(status); !ret.Status.Valid() {
		return nil, fmt.Errorf("%w: job %s has status %q", ErrInvalidJob, id, status)
	}
	ret.StartedAt = time.UnixMilli(started)
	ret.UpdatedAt = time.UnixMilli(updated)
	return &ret, nil
}

// SaveJob replaces the stored job.
func (d *DB) SaveJob(ctx context.Context, record *job.Job) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		return d.saveJob(ctx, tx, record)
	})
}

func (d *DB) saveJob(ctx context.Context, q sqlQueryer, record *job.Job) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("store: job id is required")
	}
	if _, err := q.ExecContext(ctx, d.dialect.rebind(`DELETE FROM seq_job WHERE id = ?`), record.ID); err != nil {
		return fmt.Errorf("failed to replace job %s: %w", record.ID, err)
	}
	_, err := q.ExecContext(ctx, d.dialect.rebind(`INSERT INTO seq_job(id, run, status, percent, message, file, current_count, total_count, started_at, updated_at) VALUES(?,?,?,?,?,?,?,?,?,?)`),
		record.ID, record.Run, string(record.Status), record.Percent, record.Message, record.File, record.Current, record.Total,
		record.StartedAt.UnixMilli(), record.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", record.ID, err)
	}
	return nil
}

// StartJob stores candidate unless an active job is on record.
func (d *DB) StartJob(ctx context.Context, candidate *job.Job) (*job.Job, bool, error) {
	var (
		current *job.Job
		started bool
	)
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := d.getJob(ctx, tx, candidate.ID, true)
		if err != nil {
			return err
		}
		if existing.Active() {
			current = existing
			return nil
		}
		if err := d.saveJob(ctx, tx, candidate); err != nil {
			return err
		}
		current, started = candidate.Clone(), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return current, started, nil
}

// FailActiveJobs marks every non-terminal job FAILED.
func (d *DB) FailActiveJobs(ctx context.Context, message string) (int, error) {
	now := time.Now().UnixMilli()
	result, err := d.db.ExecContext(ctx, d.dialect.rebind(`UPDATE seq_job SET status = ?, percent = ?, message = ?, updated_at = ? WHERE status NOT IN (?, ?)`),
		string(job.Failed), job.DonePercent, message, now, string(job.Done), string(job.Failed))
	if err != nil {
		return 0, fmt.Errorf("failed to fail active jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSequence(row scanner) (*Sequence, error) {
	var (
		ret         Sequence
		description sql.NullString
		modified    int64
	)
	if err := row.Scan(&ret.ID, &ret.Sequence, &description, &ret.Length, &modified); err != nil {
		return nil, err
	}
	ret.Description = description.String
	ret.ModifiedAt = time.UnixMilli(modified)
	return &ret, nil
}

var _ Store = (*DB)(nil)
