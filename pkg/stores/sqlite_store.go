package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/contentkit/pkg/builder"
	"github.com/openfroyo/contentkit/pkg/buildlog"
	"github.com/openfroyo/contentkit/pkg/pipeline"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	cfg  Config
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const memoryPath = ":memory:"

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		cfg:  cfg,
		path: cfg.Path,
	}, nil
}

// Init opens the database and applies connection pragmas.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if s.path != memoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordBuild stores a finished build and its output in one transaction.
func (s *SQLiteStore) RecordBuild(ctx context.Context, r *builder.Result) error {
	items, err := json.Marshal(nonNil(r.Items))
	if err != nil {
		return fmt.Errorf("failed to encode build items: %w", err)
	}
	var errMsg *string
	if r.Err != nil {
		msg := r.Err.Error()
		errMsg = &msg
	}
	errorsCount, warnings := 0, 0
	if r.Collector != nil {
		errorsCount, warnings = r.Collector.Errors(), r.Collector.Warnings()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (id, project, mode, items, state, exit_code, errors, warnings, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Project,
		r.Mode.String(),
		string(items),
		r.State.String(),
		r.ExitCode,
		errorsCount,
		warnings,
		errMsg,
		r.Started,
		r.Finished,
	)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO build_events (build_id, seq, kind, path, severity, line, col, code, message, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range r.Events {
		_, err := stmt.ExecContext(ctx,
			r.ID,
			i,
			ev.Kind.String(),
			optString(ev.Path),
			optString(string(ev.Severity)),
			optInt(ev.Line),
			optString(ev.Column),
			optString(ev.Code),
			optString(ev.Message),
			ev.Raw,
		)
		if err != nil {
			return fmt.Errorf("failed to append build event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build: %w", err)
	}
	return nil
}

const buildColumns = `id, project, mode, items, state, exit_code, errors, warnings, error, started_at, finished_at`

// GetBuild retrieves a build by ID
func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*BuildRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	rec, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, fmt.Sprintf("build not found: %s", id), err).
			WithCode(pipeline.ErrCodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return rec, nil
}

// ListBuilds returns builds newest first.
func (s *SQLiteStore) ListBuilds(ctx context.Context, filter BuildFilter) ([]*BuildRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + buildColumns + `
		FROM builds
		WHERE (? = '' OR project = ?)
		  AND (? = '' OR state = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.Project, filter.Project,
		filter.State, filter.State,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	builds := []*BuildRecord{}
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}

	return builds, nil
}

// ListBuildEvents returns the output of a build in line order.
func (s *SQLiteStore) ListBuildEvents(ctx context.Context, buildID string) ([]*BuildEventRecord, error) {
	query := `
		SELECT id, build_id, seq, kind, path, severity, line, col, code, message, raw
		FROM build_events
		WHERE build_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list build events: %w", err)
	}
	defer rows.Close()

	events := []*BuildEventRecord{}
	for rows.Next() {
		ev := &BuildEventRecord{}
		err := rows.Scan(
			&ev.ID,
			&ev.BuildID,
			&ev.Seq,
			&ev.Kind,
			&ev.Path,
			&ev.Severity,
			&ev.Line,
			&ev.Column,
			&ev.Code,
			&ev.Message,
			&ev.Raw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating build events: %w", err)
	}

	return events, nil
}

// PruneBuilds keeps the newest keep builds of a project and deletes the
// rest with their events. It returns the number of builds deleted.
func (s *SQLiteStore) PruneBuilds(ctx context.Context, project string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	query := `
		DELETE FROM builds
		WHERE project = ?
		  AND id NOT IN (
			SELECT id FROM builds WHERE project = ? ORDER BY started_at DESC LIMIT ?
		  )
	`

	result, err := s.db.ExecContext(ctx, query, project, project, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune builds: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// HealthCheck verifies the database connection.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (*BuildRecord, error) {
	rec := &BuildRecord{}
	var items string
	err := row.Scan(
		&rec.ID,
		&rec.Project,
		&rec.Mode,
		&items,
		&rec.State,
		&rec.ExitCode,
		&rec.Errors,
		&rec.Warnings,
		&rec.Error,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
		return nil, fmt.Errorf("failed to decode build items: %w", err)
	}
	return rec, nil
}

// Event converts the record back into a buildlog event.
func (e *BuildEventRecord) Event() buildlog.Event {
	ev := buildlog.Event{Raw: e.Raw, Kind: parseKind(e.Kind)}
	if e.Path != nil {
		ev.Path = *e.Path
	}
	if e.Severity != nil {
		ev.Severity = buildlog.Severity(*e.Severity)
	}
	if e.Line != nil {
		ev.Line = *e.Line
	}
	if e.Column != nil {
		ev.Column = *e.Column
	}
	if e.Code != nil {
		ev.Code = *e.Code
	}
	if e.Message != nil {
		ev.Message = *e.Message
	}
	return ev
}

func parseKind(name string) buildlog.EventKind {
	for k := buildlog.EventUnrecognized; k <= buildlog.EventTerminated; k++ {
		if k.String() == name {
			return k
		}
	}
	return buildlog.EventUnrecognized
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

var _ Store = (*SQLiteStore)(nil)
var _ builder.History = (*SQLiteStore)(nil)
