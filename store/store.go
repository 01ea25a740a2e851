// Package store persists experiment results in SQLite. Each saved result
// may point at a parent experiment; its version is one more than the
// parent's.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tabtrain/tabtrain/pipeline"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/pkg/log"
)

// ErrNotFound is returned when no experiment has the requested id.
var ErrNotFound = errors.New("store: experiment not found")

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	dataset_name TEXT NOT NULL,
	n_samples INTEGER NOT NULL,
	n_features INTEGER NOT NULL,
	task_type TEXT NOT NULL,
	target_column TEXT NOT NULL,
	model_name TEXT NOT NULL,
	hyperparams_json TEXT NOT NULL,
	metrics_json TEXT NOT NULL,
	feature_importance_json TEXT,
	artifact_path TEXT NOT NULL DEFAULT '',
	parent_experiment_id INTEGER,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	FOREIGN KEY (parent_experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_experiments_parent ON experiments(parent_experiment_id);
CREATE INDEX IF NOT EXISTS idx_experiments_dataset ON experiments(dataset_name);
`

// SaveOptions describe how a result is filed.
type SaveOptions struct {
	// Name defaults to "<dataset> / <model>".
	Name string

	// ParentID links the result to an earlier experiment.
	ParentID *int64

	// ArtifactPath is where the fitted pipeline was written, if anywhere.
	ArtifactPath string
}

// Store is a SQLite backed experiment store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger log.Logger
	clock  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store events.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock that stamps created_at.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// Writes are serialized by SQLite anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	s := &Store{db: db, logger: log.NewNopLogger(), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts res and returns a copy of it carrying the new id. res itself
// is left unchanged.
func (s *Store) Save(ctx context.Context, res *pipeline.ExperimentResult, opts SaveOptions) (*pipeline.ExperimentResult, error) {
	rec, err := NewRecord(res, opts)
	if err != nil {
		return nil, err
	}
	if rec.ParentID != nil {
		parent, err := s.Get(ctx, *rec.ParentID)
		if err != nil {
			return nil, errors.Wrapf(err, "parent experiment %d", *rec.ParentID)
		}
		rec.Version = parent.Version + 1
	}
	rec.CreatedAt = s.clock().UTC()

	var parent interface{}
	if rec.ParentID != nil {
		parent = *rec.ParentID
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (name, dataset_name, n_samples, n_features, task_type, target_column,
			model_name, hyperparams_json, metrics_json, feature_importance_json, artifact_path,
			parent_experiment_id, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.DatasetName, rec.NSamples, rec.NFeatures, rec.TaskType, rec.TargetColumn,
		rec.ModelName, rec.HyperparamsJSON, rec.MetricsJSON, rec.FeatureImportanceJSON, rec.ArtifactPath,
		parent, rec.Version, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save experiment")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read experiment id")
	}

	s.logger.Info("Saved experiment",
		"experiment.id", id,
		"experiment.version", rec.Version,
		log.DatasetKey, rec.DatasetName,
		log.ModelNameKey, rec.ModelName,
	)
	return res.WithID(id), nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM experiments WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get experiment")
	}
	return rec, nil
}

// List returns every record, newest first. A non-empty dataset restricts
// the list to that dataset.
func (s *Store) List(ctx context.Context, dataset string) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM experiments`
	var args []interface{}
	if dataset != "" {
		query += ` WHERE dataset_name = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list experiments")
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan experiment")
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "failed to list experiments")
}

// Lineage returns the record with the given id followed by its ancestors,
// nearest first.
func (s *Store) Lineage(ctx context.Context, id int64) ([]*Record, error) {
	var out []*Record
	seen := make(map[int64]bool)
	for next := &id; next != nil; {
		if seen[*next] {
			return nil, errors.Newf("store: parent cycle at experiment %d", *next)
		}
		seen[*next] = true
		rec, err := s.Get(ctx, *next)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		next = rec.ParentID
	}
	return out, nil
}

// Delete removes the record with the given id. A record that is the parent
// of another cannot be deleted.
func (s *Store) Delete(ctx context.Context, id int64) error {
	var children int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM experiments WHERE parent_experiment_id = ?`, id).Scan(&children); err != nil {
		return errors.Wrap(err, "failed to count child experiments")
	}
	if children > 0 {
		return errors.Newf("store: experiment %d has %d child experiments", id, children)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete experiment")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "id %d", id)
	}
	return nil
}
