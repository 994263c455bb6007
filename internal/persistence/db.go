// Package persistence provides SQLite-based storage of cascade runs.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/cascade/internal/cascade"
)

// ErrNotFound is returned when a run ID has no stored row.
var ErrNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// RunRow is one stored run summary.
type RunRow struct {
	ID             string  `db:"id" json:"id"`
	CreatedUnix    int64   `db:"created_unix" json:"-"`
	Alpha          float64 `db:"alpha" json:"alpha"`
	Layers         int     `db:"layers" json:"layers"`
	Phase          string  `db:"phase" json:"phase"`
	CascadeTotal   float64 `db:"cascade_total" json:"cascade_total"`
	TotalEffect    float64 `db:"total_effect" json:"total_effect"`
	ThresholdRatio float64 `db:"threshold_ratio" json:"threshold_ratio"`
	ReferenceRatio float64 `db:"reference_ratio" json:"reference_ratio"`
	Achieved       int     `db:"achieved" json:"-"`
	ElapsedNanos   int64   `db:"elapsed_ns" json:"elapsed_ns"`
}

// CreatedAt returns the run timestamp.
func (r RunRow) CreatedAt() time.Time {
	return time.Unix(0, r.CreatedUnix).UTC()
}

// IsAchieved reports the stored verdict.
func (r RunRow) IsAchieved() bool {
	return r.Achieved != 0
}

// SignatureRow is one stored layer signature.
type SignatureRow struct {
	Layer      int     `db:"layer" json:"layer"`
	Energy     float64 `db:"energy" json:"energy"`
	Phase      float64 `db:"phase" json:"phase"`
	Offset     float64 `db:"offset_value" json:"offset"`
	DelayNanos int64   `db:"delay_nanos" json:"delay_nanos"`
	Digest     []byte  `db:"digest" json:"digest"`
	Text       string  `db:"text" json:"text"`
}

// StoredRun is a run with its per-layer rows.
type StoredRun struct {
	Run        RunRow         `json:"run"`
	Signatures []SignatureRow `json:"signatures"`
	Records    [][]byte       `json:"records"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_unix INTEGER NOT NULL,
		alpha REAL NOT NULL,
		layers INTEGER NOT NULL,
		phase TEXT NOT NULL,
		cascade_total REAL NOT NULL,
		total_effect REAL NOT NULL,
		threshold_ratio REAL NOT NULL,
		reference_ratio REAL NOT NULL,
		achieved INTEGER NOT NULL,
		elapsed_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signatures (
		run_id TEXT NOT NULL,
		layer INTEGER NOT NULL,
		energy REAL NOT NULL,
		phase REAL NOT NULL,
		offset_value REAL NOT NULL,
		delay_nanos INTEGER NOT NULL,
		digest BLOB NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (run_id, layer)
	);

	CREATE TABLE IF NOT EXISTS records (
		run_id TEXT NOT NULL,
		layer INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (run_id, layer)
	);

	CREATE TABLE IF NOT EXISTS regions (
		run_id TEXT NOT NULL,
		layer INTEGER NOT NULL,
		start_idx INTEGER NOT NULL,
		end_idx INTEGER NOT NULL,
		pattern INTEGER NOT NULL,
		mask INTEGER NOT NULL,
		byte_sum INTEGER NOT NULL,
		PRIMARY KEY (run_id, layer)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_unix);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveReport writes a run and all of its layers in one transaction.
func (db *DB) SaveReport(r *cascade.Report) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	achieved := 0
	if r.Verdict.Achieved {
		achieved = 1
	}
	_, err = tx.Exec(`INSERT INTO runs
		(id, created_unix, alpha, layers, phase, cascade_total, total_effect,
		 threshold_ratio, reference_ratio, achieved, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.CreatedAt.UnixNano(), r.Params.Alpha, r.Params.Layers,
		r.Params.Phase.String(), r.Verdict.CascadeTotal, r.Verdict.TotalEffect,
		r.Verdict.ThresholdRatio, r.Verdict.ReferenceRatio, achieved, int64(r.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}

	sigStmt, err := tx.Preparex(`INSERT INTO signatures
		(run_id, layer, energy, phase, offset_value, delay_nanos, digest, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer sigStmt.Close()

	for _, s := range r.Signatures {
		if _, err := sigStmt.Exec(
			r.ID.String(), s.Layer, s.Energy, s.Phase, s.Offset,
			s.DelayNanos, s.Digest[:], s.String(),
		); err != nil {
			return fmt.Errorf("insert signature %d: %w", s.Layer, err)
		}
	}

	recStmt, err := tx.Preparex("INSERT INTO records (run_id, layer, data) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer recStmt.Close()

	for d, rec := range r.Records {
		if _, err := recStmt.Exec(r.ID.String(), d, rec); err != nil {
			return fmt.Errorf("insert record %d: %w", d, err)
		}
	}

	for _, reg := range r.Regions {
		_, err := tx.Exec(`INSERT INTO regions
			(run_id, layer, start_idx, end_idx, pattern, mask, byte_sum)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID.String(), reg.Layer, reg.Start, reg.End, reg.Pattern, reg.Mask, int64(reg.Sum),
		)
		if err != nil {
			return fmt.Errorf("insert region %d: %w", reg.Layer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("run saved", "run", r.ID, "layers", len(r.Records))
	return nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// RecentRuns returns the newest runs first.
func (db *DB) RecentRuns(limit int) ([]RunRow, error) {
	var runs []RunRow
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY created_unix DESC, rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// CountRuns returns the number of stored runs.
func (db *DB) CountRuns() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM runs")
	return n, err
}

// LoadRun loads a run with its signatures and records.
func (db *DB) LoadRun(id string) (*StoredRun, error) {
	var run RunRow
	if err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	out := &StoredRun{Run: run}
	err := db.conn.Select(&out.Signatures,
		`SELECT layer, energy, phase, offset_value, delay_nanos, digest, text
		 FROM signatures WHERE run_id = ? ORDER BY layer`, id)
	if err != nil {
		return nil, fmt.Errorf("load signatures %s: %w", id, err)
	}

	out.Records, err = db.LoadRecords(id)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadRecords returns the encoded records of a run in layer order.
func (db *DB) LoadRecords(id string) ([][]byte, error) {
	var records [][]byte
	err := db.conn.Select(&records,
		"SELECT data FROM records WHERE run_id = ? ORDER BY layer", id)
	if err != nil {
		return nil, fmt.Errorf("load records %s: %w", id, err)
	}
	return records, nil
}
