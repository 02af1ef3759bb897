package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/runlog"
	"github.com/iwvelando/strategy-optimizer/internal/space"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	iteration      INTEGER NOT NULL,
	max_iterations INTEGER NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS batches (
	run_id    TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	updates   INTEGER NOT NULL,
	payload   BLOB NOT NULL,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
CREATE TABLE IF NOT EXISTS populations (
	run_id  TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
CREATE TABLE IF NOT EXISTS best (
	run_id    TEXT PRIMARY KEY,
	iteration INTEGER NOT NULL,
	objective REAL,
	vector    BLOB NOT NULL,
	info      BLOB
);
`

// SQLiteStore keeps every run in a SQLite database. Batches are appended, the
// population and best record are overwritten.
type SQLiteStore struct {
	path  string
	runID string

	mu    sync.Mutex
	db    *sql.DB
	saved int
}

// NewSQLiteStore creates a store for one run. Call Init before use.
func NewSQLiteStore(path, runID string) *SQLiteStore {
	return &SQLiteStore{path: path, runID: runID}
}

// Init opens the database and creates the tables.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.runID == "" {
		return errors.New("sqlite run id is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	var saved int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches WHERE run_id = ?`, s.runID).Scan(&saved)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("count batches: %w", err)
	}

	s.db = db
	s.saved = saved
	return nil
}

// Save implements Sink. Only batches not yet stored are inserted.
func (s *SQLiteStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("store is not initialized")
	}

	population, err := json.Marshal(state.Populations)
	if err != nil {
		return fmt.Errorf("encode population: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, iteration, max_iterations, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			iteration = excluded.iteration,
			max_iterations = excluded.max_iterations,
			updated_at = excluded.updated_at
	`, s.runID, state.Iteration, state.MaxIterations, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for seq := s.saved; seq < len(state.Batches); seq++ {
		batch := sanitizeBatch(state.Batches[seq])
		payload, err := json.Marshal(batch.Entries)
		if err != nil {
			return fmt.Errorf("encode batch %d: %w", seq, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batches (run_id, seq, iteration, updates, payload)
			VALUES (?, ?, ?, ?, ?)
		`, s.runID, seq, batch.Iteration, batch.Updates(), payload)
		if err != nil {
			return fmt.Errorf("insert batch %d: %w", seq, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO populations (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, s.runID, population)
	if err != nil {
		return fmt.Errorf("upsert population: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if len(state.Batches) > s.saved {
		s.saved = len(state.Batches)
	}
	return nil
}

// SaveBest implements Sink.
func (s *SQLiteStore) SaveBest(ctx context.Context, best runlog.Best) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("store is not initialized")
	}
	if !best.Found {
		return nil
	}

	vector, err := json.Marshal(best.Vector)
	if err != nil {
		return fmt.Errorf("encode best vector: %w", err)
	}
	var info []byte
	if best.Diagnostics != nil {
		if info, err = json.Marshal(best.Diagnostics.Finite()); err != nil {
			return fmt.Errorf("encode best info: %w", err)
		}
	}
	var value sql.NullFloat64
	if !math.IsInf(best.Objective, 0) && !math.IsNaN(best.Objective) {
		value = sql.NullFloat64{Float64: best.Objective, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO best (run_id, iteration, objective, vector, info)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			iteration = excluded.iteration,
			objective = excluded.objective,
			vector = excluded.vector,
			info = excluded.info
	`, s.runID, best.Iteration, value, vector, info)
	if err != nil {
		return fmt.Errorf("upsert best: %w", err)
	}
	return nil
}

// LoadBest reads the best record of a run.
func (s *SQLiteStore) LoadBest(ctx context.Context, runID string) (runlog.Best, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return runlog.Best{}, false, err
	}

	var (
		iteration int
		value     sql.NullFloat64
		vector    []byte
		info      []byte
	)
	err = db.QueryRowContext(ctx, `SELECT iteration, objective, vector, info FROM best WHERE run_id = ?`, runID).
		Scan(&iteration, &value, &vector, &info)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return runlog.Best{}, false, nil
		}
		return runlog.Best{}, false, err
	}

	best := runlog.Best{Found: true, Iteration: iteration, Objective: objective.WorstFitness}
	if value.Valid {
		best.Objective = value.Float64
	}
	if err := json.Unmarshal(vector, &best.Vector); err != nil {
		return runlog.Best{}, false, fmt.Errorf("decode best vector %s: %w", runID, err)
	}
	if len(info) > 0 {
		best.Diagnostics = &objective.Diagnostics{}
		if err := json.Unmarshal(info, best.Diagnostics); err != nil {
			return runlog.Best{}, false, fmt.Errorf("decode best info %s: %w", runID, err)
		}
	}
	return best, true, nil
}

// LoadBatches reads every stored batch of a run in order.
func (s *SQLiteStore) LoadBatches(ctx context.Context, runID string) ([]runlog.Batch, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT iteration, payload FROM batches WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []runlog.Batch
	for rows.Next() {
		var (
			batch   runlog.Batch
			payload []byte
		)
		if err := rows.Scan(&batch.Iteration, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &batch.Entries); err != nil {
			return nil, fmt.Errorf("decode batch of %s: %w", runID, err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// LoadPopulation reads the latest stored population of a run.
func (s *SQLiteStore) LoadPopulation(ctx context.Context, runID string) ([]space.Vector, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM populations WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var vectors []space.Vector
	if err := json.Unmarshal(payload, &vectors); err != nil {
		return nil, false, fmt.Errorf("decode population %s: %w", runID, err)
	}
	return vectors, true, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}
