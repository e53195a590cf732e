package artifacts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/qunfold/qunfold/internal/database"
)

// runsSchema holds the run archive table. Spectra and candidate sets
// are msgpack blobs; everything a comparison query filters on is a
// plain column.
const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	created_at   INTEGER NOT NULL,
	distribution TEXT NOT NULL,
	solver       TEXT NOT NULL,
	bits_per_bin INTEGER NOT NULL,
	reg_form     TEXT NOT NULL,
	reg_strength REAL NOT NULL,
	seed         INTEGER NOT NULL,
	energy       REAL NOT NULL,
	chi_square   REAL,
	p_value      REAL,
	elapsed_ms   INTEGER NOT NULL,
	counts       BLOB NOT NULL,
	errors       BLOB NOT NULL,
	candidates   BLOB
) STRICT;

CREATE INDEX IF NOT EXISTS idx_runs_distribution ON runs(distribution, created_at);
`

// RunRecord is one archived unfolding run.
type RunRecord struct {
	RunID        string
	CreatedAt    time.Time
	Distribution string
	Solver       string
	BitsPerBin   int
	RegForm      string
	RegStrength  float64
	Seed         int64
	Energy       float64
	ChiSquare    *float64
	PValue       *float64
	Elapsed      time.Duration
	Counts       []float64
	Errors       []float64
	Candidates   [][]uint8
}

// RunStore archives completed runs so that encodings, regularization
// strengths, and solvers can be compared after the fact.
type RunStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRunStore creates a run store and applies its schema.
func NewRunStore(db *database.DB, log zerolog.Logger) (*RunStore, error) {
	if err := db.Migrate(runsSchema); err != nil {
		return nil, err
	}
	return &RunStore{
		db:  db,
		log: log.With().Str("component", "run_store").Logger(),
	}, nil
}

// Save archives one run inside a transaction. The run identifier must
// be unique.
func (r *RunStore) Save(ctx context.Context, rec *RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run record needs a run id")
	}
	counts, err := msgpack.Marshal(rec.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode counts for run %s: %w", rec.RunID, err)
	}
	errs, err := msgpack.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode errors for run %s: %w", rec.RunID, err)
	}
	var candidates []byte
	if rec.Candidates != nil {
		candidates, err = msgpack.Marshal(rec.Candidates)
		if err != nil {
			return fmt.Errorf("failed to encode candidates for run %s: %w", rec.RunID, err)
		}
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err = database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (
				run_id, created_at, distribution, solver, bits_per_bin,
				reg_form, reg_strength, seed, energy, chi_square, p_value,
				elapsed_ms, counts, errors, candidates
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.RunID, createdAt.UnixMilli(), rec.Distribution, rec.Solver, rec.BitsPerBin,
			rec.RegForm, rec.RegStrength, rec.Seed, rec.Energy, rec.ChiSquare, rec.PValue,
			rec.Elapsed.Milliseconds(), counts, errs, candidates)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}

	r.log.Debug().
		Str("run_id", rec.RunID).
		Str("distribution", rec.Distribution).
		Str("solver", rec.Solver).
		Msg("Archived run")
	return nil
}

// Get retrieves a single run by identifier.
func (r *RunStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, distribution, solver, bits_per_bin,
		       reg_form, reg_strength, seed, energy, chi_square, p_value,
		       elapsed_ms, counts, errors, candidates
		FROM runs WHERE run_id = ?
	`, runID)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return rec, err
}

// ListByDistribution returns all runs for one distribution, newest
// first.
func (r *RunStore) ListByDistribution(ctx context.Context, distribution string) ([]*RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, created_at, distribution, solver, bits_per_bin,
		       reg_form, reg_strength, seed, energy, chi_square, p_value,
		       elapsed_ms, counts, errors, candidates
		FROM runs WHERE distribution = ?
		ORDER BY created_at DESC
	`, distribution)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for %s: %w", distribution, err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return records, nil
}

// Best returns the run with the lowest chi-square for a distribution.
// Runs without a chi-square score are skipped.
func (r *RunStore) Best(ctx context.Context, distribution string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, distribution, solver, bits_per_bin,
		       reg_form, reg_strength, seed, energy, chi_square, p_value,
		       elapsed_ms, counts, errors, candidates
		FROM runs
		WHERE distribution = ? AND chi_square IS NOT NULL
		ORDER BY chi_square ASC
		LIMIT 1
	`, distribution)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no scored runs for distribution %s", distribution)
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var createdAt, elapsedMS int64
	var counts, errs, candidates []byte
	err := row.Scan(&rec.RunID, &createdAt, &rec.Distribution, &rec.Solver, &rec.BitsPerBin,
		&rec.RegForm, &rec.RegStrength, &rec.Seed, &rec.Energy, &rec.ChiSquare, &rec.PValue,
		&elapsedMS, &counts, &errs, &candidates)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if err := msgpack.Unmarshal(counts, &rec.Counts); err != nil {
		return nil, fmt.Errorf("failed to decode counts for run %s: %w", rec.RunID, err)
	}
	if err := msgpack.Unmarshal(errs, &rec.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode errors for run %s: %w", rec.RunID, err)
	}
	if candidates != nil {
		if err := msgpack.Unmarshal(candidates, &rec.Candidates); err != nil {
			return nil, fmt.Errorf("failed to decode candidates for run %s: %w", rec.RunID, err)
		}
	}
	return &rec, nil
}
