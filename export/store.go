package export

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pthm-cable/ecochamber/telemetry"
)

// Attribute describes a column of the observation collection.
type Attribute struct {
	Name      string
	Unit      string
	Precision int
	Dynamic   bool
}

// StaticAttributes is the data set template every run starts with.
var StaticAttributes = []Attribute{
	{Name: telemetry.FieldHour, Precision: 0},
	{Name: telemetry.FieldCO2, Unit: "mL", Precision: 0},
	{Name: telemetry.FieldO2, Unit: "mL", Precision: 0},
}

// Columns owned by the store; never ensured from records.
var reservedColumns = map[string]bool{
	"id":                      true,
	"run_id":                  true,
	telemetry.FieldExperiment: true,
}

const schema = `
CREATE TABLE IF NOT EXISTS experiment_runs (
  run_id            TEXT    NOT NULL,
  experiment_number INTEGER NOT NULL,
  created_at        INTEGER NOT NULL,
  PRIMARY KEY (run_id, experiment_number)
);
CREATE TABLE IF NOT EXISTS observations (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id            TEXT    NOT NULL,
  experiment_number INTEGER NOT NULL,
  hour              REAL,
  CO2               REAL,
  O2                REAL
);
CREATE TABLE IF NOT EXISTS attributes (
  name      TEXT    PRIMARY KEY,
  unit      TEXT    NOT NULL DEFAULT '',
  decimals  INTEGER NOT NULL DEFAULT 0,
  dynamic   INTEGER NOT NULL DEFAULT 0
);
`

// Store is a SQLite-backed Adapter. Observations are keyed by a run id
// (one per session) and the experiment number.
type Store struct {
	sqlDB *sql.DB
	runID string

	mu      sync.Mutex
	columns map[string]bool // lower-cased; SQLite column names are case-insensitive
}

// OpenStore opens or creates the database at path.
func OpenStore(path, runID string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{sqlDB: sqlDB, runID: runID, columns: make(map[string]bool)}
	if err := s.seedAttributes(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := s.loadColumns(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) seedAttributes() error {
	for _, a := range StaticAttributes {
		if _, err := s.sqlDB.Exec(
			`INSERT OR IGNORE INTO attributes (name, unit, decimals, dynamic) VALUES (?, ?, ?, 0)`,
			a.Name, a.Unit, a.Precision,
		); err != nil {
			return fmt.Errorf("seed attribute %s: %w", a.Name, err)
		}
	}
	return nil
}

func (s *Store) loadColumns() error {
	rows, err := s.sqlDB.Query(`SELECT name FROM pragma_table_info('observations')`)
	if err != nil {
		return fmt.Errorf("read observation columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		s.columns[strings.ToLower(name)] = true
	}
	return rows.Err()
}

// RunID returns the run this store writes under.
func (s *Store) RunID() string {
	return s.runID
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// EnsureColumn adds a REAL column to observations and records it as a
// dynamic attribute. Existing columns are left alone.
func (s *Store) EnsureColumn(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidColumn(name) || reservedColumns[strings.ToLower(name)] {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.columns[strings.ToLower(name)] {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// name is validated as a plain identifier above.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE observations ADD COLUMN "%s" REAL`, name)); err != nil {
		return fmt.Errorf("add column %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO attributes (name, unit, decimals, dynamic) VALUES (?, '', 0, 1)`, name,
	); err != nil {
		return fmt.Errorf("record attribute %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.columns[strings.ToLower(name)] = true
	return nil
}

// SendRecord inserts one observation under the record's experiment run.
// Every field must already be a column.
func (s *Store) SendRecord(ctx context.Context, rec telemetry.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cols := []string{"run_id", telemetry.FieldExperiment}
	args := []any{s.runID, rec.ExperimentNumber}
	s.mu.Lock()
	for _, v := range rec.Values {
		if !ValidColumn(v.Name) {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrInvalidColumn, v.Name)
		}
		if !s.columns[strings.ToLower(v.Name)] {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrUnknownColumn, v.Name)
		}
		cols = append(cols, `"`+v.Name+`"`)
		args = append(args, v.Value)
	}
	s.mu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO experiment_runs (run_id, experiment_number, created_at) VALUES (?, ?, ?)`,
		s.runID, rec.ExperimentNumber, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert experiment run: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf(`INSERT INTO observations (%s) VALUES (%s)`, strings.Join(cols, ", "), placeholders)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Experiments lists the experiment numbers recorded under this run.
func (s *Store) Experiments(ctx context.Context) ([]int, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT experiment_number FROM experiment_runs WHERE run_id = ? ORDER BY experiment_number`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Observations returns the rows of one experiment in insertion order. Each
// row maps column name to value; NULL columns are omitted.
func (s *Store) Observations(ctx context.Context, experiment int) ([]map[string]float64, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT * FROM observations WHERE run_id = ? AND experiment_number = ? ORDER BY id`,
		s.runID, experiment)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("observation columns: %w", err)
	}

	var out []map[string]float64
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		row := make(map[string]float64, len(names))
		for i, name := range names {
			if name == "id" || name == "run_id" {
				continue
			}
			switch v := raw[i].(type) {
			case float64:
				row[name] = v
			case int64:
				row[name] = float64(v)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Attributes returns the attribute metadata, static ones first.
func (s *Store) Attributes(ctx context.Context) ([]Attribute, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, unit, decimals, dynamic FROM attributes ORDER BY dynamic, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()

	var out []Attribute
	for rows.Next() {
		var a Attribute
		if err := rows.Scan(&a.Name, &a.Unit, &a.Precision, &a.Dynamic); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
