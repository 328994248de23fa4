// Package storage provides SQLite-backed journaling of analysis runs, results, and phase signals.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/mvrvdca/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/mvrvdca/journal.db.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "mvrvdca", "journal.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			source        TEXT,
			ema_period    INTEGER NOT NULL,
			slope_period  INTEGER NOT NULL,
			started_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			observed_at   INTEGER NOT NULL,
			raw_z         REAL NOT NULL,
			price         REAL NOT NULL DEFAULT 0,
			smoothed_z    REAL NOT NULL,
			slope         REAL NOT NULL,
			phase         TEXT NOT NULL,
			sell_pct      REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id            TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			from_phase    TEXT NOT NULL,
			to_phase      TEXT NOT NULL,
			raw_z         REAL NOT NULL,
			smoothed_z    REAL NOT NULL,
			slope         REAL NOT NULL,
			sell_pct      REAL NOT NULL,
			advisory      INTEGER NOT NULL DEFAULT 1,
			detected_at   INTEGER NOT NULL,
			notified      INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_phase ON results(run_id, phase)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_run ON signals(run_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// StartRun records a new run, assigning an ID and start time when missing,
// and drops the oldest runs beyond the configured cap.
func (s *Storage) StartRun(run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO runs (id, source, ema_period, slope_period, started_at)
		VALUES (?,?,?,?,?)`,
		run.ID, run.Source, run.EMAPeriod, run.SlopePeriod, run.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns); err != nil {
		return fmt.Errorf("failed to enforce run cap: %w", err)
	}

	return tx.Commit()
}

// GetRun returns the run with the given ID.
func (s *Storage) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns all runs, newest first.
func (s *Storage) ListRuns() ([]*models.Run, error) {
	rows, err := s.db.Query(`SELECT ` + runCols + ` FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()
	runs := []*models.Run{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AddResult journals one analysis step of a run.
func (s *Storage) AddResult(rec *models.ResultRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO results
			(run_id, seq, observed_at, raw_z, price, smoothed_z, slope, phase, sell_pct)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.RunID, rec.Seq, timeToNano(rec.Reading.ObservedAt), rec.Reading.Z, rec.Reading.Price,
		rec.Result.SmoothedZ, rec.Result.Slope, string(rec.Result.Phase), rec.Result.SellPercentage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// Results returns the journaled results of a run in sequence order.
func (s *Storage) Results(runID string) ([]models.ResultRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seq, observed_at, raw_z, price, smoothed_z, slope, phase, sell_pct
		FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var records []models.ResultRecord
	for rows.Next() {
		var rec models.ResultRecord
		var observedAtNano int64
		var phase string

		err := rows.Scan(
			&rec.RunID, &rec.Seq, &observedAtNano, &rec.Reading.Z, &rec.Reading.Price,
			&rec.Result.SmoothedZ, &rec.Result.Slope, &phase, &rec.Result.SellPercentage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		rec.Reading.ObservedAt = nanoToTime(observedAtNano)
		rec.Result.Phase = models.Phase(phase)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// PhaseCounts returns the number of journaled samples per phase for a run.
func (s *Storage) PhaseCounts(runID string) (map[models.Phase]int, error) {
	rows, err := s.db.Query(`
		SELECT phase, COUNT(*) FROM results WHERE run_id = ? GROUP BY phase`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Phase]int)
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, fmt.Errorf("failed to scan phase count: %w", err)
		}
		counts[models.Phase(phase)] = n
	}
	return counts, rows.Err()
}

// AddSignal journals a phase-change signal, assigning an ID when missing.
func (s *Storage) AddSignal(sig *models.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO signals
			(id, run_id, seq, from_phase, to_phase, raw_z, smoothed_z, slope, sell_pct,
			 advisory, detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.ID, sig.RunID, sig.Seq, string(sig.From), string(sig.To), sig.Reading.Z,
		sig.Result.SmoothedZ, sig.Result.Slope, sig.Result.SellPercentage,
		boolToInt(sig.Advisory), sig.DetectedAt.UnixNano(), boolToInt(sig.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// MarkNotified flags a signal as delivered.
func (s *Storage) MarkNotified(signalID string) error {
	res, err := s.db.Exec(`UPDATE signals SET notified = 1 WHERE id = ?`, signalID)
	if err != nil {
		return fmt.Errorf("failed to mark signal notified: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("signal not found: %s", signalID)
	}
	return nil
}

// Signals returns the signals of a run in sequence order.
func (s *Storage) Signals(runID string) ([]models.Signal, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, seq, from_phase, to_phase, raw_z, smoothed_z, slope, sell_pct,
		       advisory, detected_at, notified
		FROM signals WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		var sig models.Signal
		var from, to string
		var advisory, notified int
		var detectedAtNano int64

		err := rows.Scan(
			&sig.ID, &sig.RunID, &sig.Seq, &from, &to, &sig.Reading.Z,
			&sig.Result.SmoothedZ, &sig.Result.Slope, &sig.Result.SellPercentage,
			&advisory, &detectedAtNano, &notified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.From = models.Phase(from)
		sig.To = models.Phase(to)
		sig.Result.Phase = sig.To
		sig.Advisory = advisory != 0
		sig.Notified = notified != 0
		sig.DetectedAt = time.Unix(0, detectedAtNano)
		signals = append(signals, sig)
	}

	return signals, rows.Err()
}

// RotateRuns keeps at most maxRuns newest runs by started_at.
// Cascading deletes remove associated results and signals.
func (s *Storage) RotateRuns() error {
	_, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate runs: %w", err)
	}
	return nil
}

const runCols = `id, source, ema_period, slope_period, started_at`

func scanRun(scan func(...any) error) (*models.Run, error) {
	var r models.Run
	var startedAtNano int64
	if err := scan(&r.ID, &r.Source, &r.EMAPeriod, &r.SlopePeriod, &startedAtNano); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedAtNano)
	return &r, nil
}

// Readings without a timestamp are stored as 0 and read back as the zero time.
func timeToNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanoToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
