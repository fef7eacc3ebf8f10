package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"driftwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for run listing and replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *Reader) ListRuns(limit int) ([]model.RunMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, series, seed, points, alpha, threshold, note, created_at
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunMeta
	for rows.Next() {
		m, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, m)
	}
	return runs, rows.Err()
}

// ReadRun loads the metadata row for one run.
func (r *Reader) ReadRun(id int64) (model.RunMeta, error) {
	row := r.db.QueryRow(`
		SELECT id, series, seed, points, alpha, threshold, note, created_at
		FROM runs
		WHERE id = ?
	`, id)
	m, err := scanRun(row.Scan)
	if err != nil {
		return model.RunMeta{}, fmt.Errorf("sqlite read run %d: %w", id, err)
	}
	return m, nil
}

func scanRun(scan func(...any) error) (model.RunMeta, error) {
	var m model.RunMeta
	var createdUnix int64
	if err := scan(&m.ID, &m.Series, &m.Seed, &m.Points, &m.Alpha, &m.Threshold, &m.Note, &createdUnix); err != nil {
		return model.RunMeta{}, err
	}
	m.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return m, nil
}

// ReadSamples loads the full signal for a run, decompressing its blocks in
// start index order.
func (r *Reader) ReadSamples(id int64) ([]model.Sample, error) {
	meta, err := r.ReadRun(id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT start_idx, count, data
		FROM signal_blocks
		WHERE run_id = ?
		ORDER BY start_idx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite query blocks: %w", err)
	}
	defer rows.Close()

	samples := make([]model.Sample, 0, meta.Points)
	for rows.Next() {
		var startIdx, count int
		var data []byte
		if err := rows.Scan(&startIdx, &count, &data); err != nil {
			return nil, fmt.Errorf("sqlite scan block: %w", err)
		}
		block, err := decodeBlock(data, meta.Series, startIdx, count)
		if err != nil {
			return nil, err
		}
		samples = append(samples, block...)
	}
	return samples, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
