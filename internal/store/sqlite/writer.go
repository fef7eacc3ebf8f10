package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"driftwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultFlushDelay = 200 * time.Millisecond
	keepSnapshots     = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/driftwatch.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// Signal samples are packed into compressed blocks before insert; only raw
// inputs are stored, trend and anomaly sequences are recomputed on replay.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			series     TEXT    NOT NULL,
			seed       INTEGER NOT NULL DEFAULT 0,
			points     INTEGER NOT NULL DEFAULT 0,
			alpha      REAL    NOT NULL,
			threshold  REAL    NOT NULL,
			note       TEXT    NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signal_blocks (
			run_id    INTEGER NOT NULL,
			start_idx INTEGER NOT NULL,
			count     INTEGER NOT NULL,
			data      BLOB    NOT NULL,
			PRIMARY KEY (run_id, start_idx)
		);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// CreateRun inserts the metadata row for a new run and returns its ID.
func (w *Writer) CreateRun(meta model.RunMeta) (int64, error) {
	created := meta.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := w.db.Exec(`
		INSERT INTO runs (series, seed, points, alpha, threshold, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, meta.Series, meta.Seed, meta.Points, meta.Alpha, meta.Threshold, meta.Note, created.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite run id: %w", err)
	}
	log.Printf("[sqlite] created run %d (series=%s)", id, meta.Series)
	return id, nil
}

// WriteSignal stores a complete signal for a run, split into blocks of up to
// blockSize samples, in a single transaction.
func (w *Writer) WriteSignal(runID int64, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO signal_blocks (run_id, start_idx, count, data)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for start := 0; start < len(samples); start += blockSize {
		end := start + blockSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[start:end]
		if _, err := stmt.Exec(runID, chunk[0].Index, len(chunk), encodeBlock(chunk)); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert block: %w", err)
		}
	}

	// Runs recorded from a live stream grow their point count block by block.
	upTo := samples[len(samples)-1].Index + 1
	if _, err := tx.Exec(`UPDATE runs SET points = ? WHERE id = ? AND points < ?`, upTo, runID, upTo); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite update points: %w", err)
	}

	return tx.Commit()
}

// Run consumes samples from in and appends them to the run in batched blocks.
// Flushes every blockSize samples OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or in is closed.
func (w *Writer) Run(ctx context.Context, runID int64, in <-chan model.Sample) {
	batch := make([]model.Sample, 0, blockSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.WriteSignal(runID, batch); err != nil {
			log.Printf("[sqlite] block insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d samples to run %d in %v", len(batch), runID, time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case s, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, s)
			if len(batch) >= blockSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
func (w *Writer) SaveSnapshotJSON(data []byte) error {
	_, err := w.db.Exec(`INSERT INTO engine_snapshots (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	// Prune old snapshots, keep the most recent keepSnapshots
	_, err = w.db.Exec(`DELETE FROM engine_snapshots WHERE id NOT IN (SELECT id FROM engine_snapshots ORDER BY id DESC LIMIT ?)`, keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// ReadLatestSnapshotJSON loads the most recent engine snapshot as raw JSON.
// Returns nil, nil if no snapshot exists.
func (w *Writer) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := w.db.QueryRow(`
		SELECT data FROM engine_snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
