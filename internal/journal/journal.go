// Package journal persists node records to SQLite so runs can be inspected
// after the process that executed them is gone. A Journal plugs into the
// in-memory Result Store as its nodestore.Sink.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/node"
	"github.com/specialistvlad/cyclegrid/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	_ "modernc.org/sqlite"
)

const (
	createRecords = "CREATE TABLE IF NOT EXISTS node_records (" +
		"run_id TEXT NOT NULL, " +
		"node_id TEXT NOT NULL, " +
		"iteration INTEGER NOT NULL, " +
		"status TEXT NOT NULL, " +
		"input_json BLOB, " +
		"output_json BLOB, " +
		"error TEXT, " +
		"started_at INTEGER NOT NULL, " +
		"finished_at INTEGER NOT NULL, " +
		"seq INTEGER NOT NULL, " +
		"PRIMARY KEY (run_id, node_id, iteration)" +
		")"

	insertRecord = "INSERT INTO node_records (" +
		"run_id, node_id, iteration, status, input_json, output_json, error, started_at, finished_at, seq) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, " +
		"(SELECT COALESCE(MAX(seq), 0) + 1 FROM node_records WHERE run_id = ?))"

	selectColumns = "SELECT run_id, node_id, iteration, status, input_json, output_json, error, started_at, finished_at " +
		"FROM node_records "

	selectHistory = selectColumns + "WHERE run_id = ? AND node_id = ? ORDER BY iteration ASC"

	selectRun = selectColumns + "WHERE run_id = ? ORDER BY seq ASC"

	selectRuns = "SELECT run_id, COUNT(*), " +
		"SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), " +
		"MIN(started_at), MAX(finished_at) " +
		"FROM node_records GROUP BY run_id ORDER BY MIN(started_at) ASC, run_id ASC"

	deleteRun = "DELETE FROM node_records WHERE run_id = ?"
)

// StoredError is a node error read back from the journal. Only the message
// survives persistence.
type StoredError string

func (e StoredError) Error() string { return string(e) }

// RunSummary aggregates the records of one run.
type RunSummary struct {
	RunID      string
	Records    int
	Failures   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Journal is a SQLite-backed record log.
type Journal struct {
	db *sql.DB
}

var _ nodestore.Sink = (*Journal)(nil)

// New creates the schema in db if needed. The db must use the "sqlite"
// driver registered by modernc.org/sqlite.
func New(db *sql.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(createRecords); err != nil {
		return nil, fmt.Errorf("create node_records table: %w", err)
	}
	return &Journal{db: db}, nil
}

// Open opens (or creates) the journal database at path. Use ":memory:" for
// a throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serialises
	// writers.
	db.SetMaxOpenConns(1)
	j, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append implements nodestore.Sink.
func (j *Journal) Append(ctx context.Context, rec nodestore.Record) error {
	input, err := encodeValue(rec.Input)
	if err != nil {
		return fmt.Errorf("encode input of %s/%s[%d]: %w", rec.RunID, rec.NodeID, rec.Iteration, err)
	}
	output, err := encodeValue(rec.Output)
	if err != nil {
		return fmt.Errorf("encode output of %s/%s[%d]: %w", rec.RunID, rec.NodeID, rec.Iteration, err)
	}
	var errText sql.NullString
	if rec.Err != nil {
		errText = sql.NullString{String: rec.Err.Error(), Valid: true}
	}

	_, err = j.db.ExecContext(ctx, insertRecord,
		rec.RunID,
		rec.NodeID,
		rec.Iteration,
		rec.Status.String(),
		input,
		output,
		errText,
		rec.StartedAt.UnixNano(),
		rec.FinishedAt.UnixNano(),
		rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// History returns every record of a node in ascending iteration order.
func (j *Journal) History(ctx context.Context, runID, nodeID string) ([]nodestore.Record, error) {
	return j.query(ctx, selectHistory, runID, nodeID)
}

// Records returns every record of a run in write order.
func (j *Journal) Records(ctx context.Context, runID string) ([]nodestore.Record, error) {
	recs, err := j.query(ctx, selectRun, runID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", nodestore.ErrRunNotFound, runID)
	}
	return recs, nil
}

// Runs summarises every journaled run, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := j.db.QueryContext(ctx, selectRuns)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s                 RunSummary
			started, finished int64
		)
		if err := rows.Scan(&s.RunID, &s.Records, &s.Failures, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.StartedAt = time.Unix(0, started)
		s.FinishedAt = time.Unix(0, finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a run's records.
func (j *Journal) Delete(ctx context.Context, runID string) error {
	if _, err := j.db.ExecContext(ctx, deleteRun, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]nodestore.Record, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var out []nodestore.Record
	for rows.Next() {
		var (
			rec               nodestore.Record
			status            string
			input, output     []byte
			errText           sql.NullString
			started, finished int64
		)
		if err := rows.Scan(&rec.RunID, &rec.NodeID, &rec.Iteration, &status, &input, &output, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if rec.Status, err = node.ParseStatus(status); err != nil {
			return nil, err
		}
		if rec.Input, err = decodeValue(input); err != nil {
			return nil, fmt.Errorf("decode input of %s/%s[%d]: %w", rec.RunID, rec.NodeID, rec.Iteration, err)
		}
		if rec.Output, err = decodeValue(output); err != nil {
			return nil, fmt.Errorf("decode output of %s/%s[%d]: %w", rec.RunID, rec.NodeID, rec.Iteration, err)
		}
		if errText.Valid {
			rec.Err = StoredError(errText.String)
		}
		rec.StartedAt = time.Unix(0, started)
		rec.FinishedAt = time.Unix(0, finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// encodeValue stores values with their type so they decode to the same cty
// type.
func encodeValue(v cty.Value) ([]byte, error) {
	if v == cty.NilVal {
		return nil, nil
	}
	return ctyjson.Marshal(v, cty.DynamicPseudoType)
}

func decodeValue(data []byte) (cty.Value, error) {
	if len(data) == 0 {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	return ctyjson.Unmarshal(data, cty.DynamicPseudoType)
}
