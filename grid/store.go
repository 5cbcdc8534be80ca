package grid

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	run_id       TEXT PRIMARY KEY,
	test         TEXT NOT NULL,
	subjects     INTEGER NOT NULL,
	duration_trs INTEGER NOT NULL,
	p_value      REAL NOT NULL,
	seed         INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_cell ON results (test, subjects, duration_trs);
`

// Store accumulates sweep results in a SQLite database so that
// false-positive rates can be estimated across many independent sweeps.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the results database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open results database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with a single writer

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize results schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertResults appends sweep results in one transaction.
func (s *Store) InsertResults(ctx context.Context, results []Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, test, subjects, duration_trs, p_value, seed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, result := range results {
		if _, err := stmt.ExecContext(ctx,
			result.RunID, result.Test, result.Subjects, result.DurationTRs,
			result.PValue, result.Seed, now); err != nil {
			return fmt.Errorf("insert result %s: %w", result.RunID, err)
		}
	}
	return tx.Commit()
}

// FPRCell is one (test, subjects, duration) cell's empirical false-positive
// rate: the fraction of stored p-values below alpha. On null data (r=0) a
// well-calibrated test's FPR approximates alpha itself.
type FPRCell struct {
	Test        string
	Subjects    int
	DurationTRs int
	Trials      int
	Positives   int
	FPR         float64
}

// FPR aggregates every stored result into per-cell false-positive rates at
// the given alpha. NaN p-values (insufficient data) count as trials but
// never as positives.
func (s *Store) FPR(ctx context.Context, alpha float64) ([]FPRCell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test, subjects, duration_trs,
		       COUNT(*) AS trials,
		       COALESCE(SUM(CASE WHEN p_value < ? THEN 1 ELSE 0 END), 0) AS positives
		FROM results
		GROUP BY test, subjects, duration_trs
		ORDER BY test, subjects, duration_trs`, alpha)
	if err != nil {
		return nil, fmt.Errorf("query false-positive rates: %w", err)
	}
	defer rows.Close()

	var cells []FPRCell
	for rows.Next() {
		var cell FPRCell
		if err := rows.Scan(&cell.Test, &cell.Subjects, &cell.DurationTRs, &cell.Trials, &cell.Positives); err != nil {
			return nil, fmt.Errorf("scan false-positive rate: %w", err)
		}
		if cell.Trials > 0 {
			cell.FPR = float64(cell.Positives) / float64(cell.Trials)
		}
		cells = append(cells, cell)
	}
	return cells, rows.Err()
}
