package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/stagehand/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	labelsJSON, err := json.Marshal(run.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, engine_id, workflow, inputs, localized_inputs, target_kind, state, labels, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.EngineID, run.Workflow, run.Inputs, run.LocalizedInputs, run.TargetKind,
		string(run.State), string(labelsJSON),
		run.SubmittedAt.Format(time.RFC3339Nano), run.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)
	return s.getRun(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetRunByEngineID(ctx context.Context, engineID string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select_by_engine_id", "table", "runs", "engine_id", engineID)
	return s.getRun(ctx, "engine_id = ?", engineID)
}

func (s *SQLiteStore) getRun(ctx context.Context, where string, arg any) (*model.Run, error) {
	var run model.Run
	var state, labelsJSON string
	var submittedAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, engine_id, workflow, inputs, localized_inputs, target_kind, state, labels, submitted_at, updated_at
		 FROM runs WHERE `+where, arg,
	).Scan(&run.ID, &run.EngineID, &run.Workflow, &run.Inputs, &run.LocalizedInputs,
		&run.TargetKind, &state, &labelsJSON, &submittedAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.State = model.RunState(state)
	if err := json.Unmarshal([]byte(labelsJSON), &run.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	run.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)

	// Build WHERE clause dynamically based on filters.
	var whereClauses []string
	var countArgs []any

	if opts.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		countArgs = append(countArgs, string(opts.State))
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Count query.
	var total int
	countQuery := `SELECT COUNT(*) FROM runs` + whereSQL
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}

	// List query with pagination.
	listQuery := `SELECT id, engine_id, workflow, inputs, localized_inputs, target_kind, state, labels, submitted_at, updated_at
		FROM runs` + whereSQL + ` ORDER BY submitted_at DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var run model.Run
		var state, labelsJSON string
		var submittedAt, updatedAt string

		if err := rows.Scan(&run.ID, &run.EngineID, &run.Workflow, &run.Inputs, &run.LocalizedInputs,
			&run.TargetKind, &state, &labelsJSON, &submittedAt, &updatedAt); err != nil {
			return nil, 0, err
		}

		run.State = model.RunState(state)
		json.Unmarshal([]byte(labelsJSON), &run.Labels)
		run.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		run.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		runs = append(runs, &run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	labelsJSON, err := json.Marshal(run.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET engine_id = ?, workflow = ?, inputs = ?, localized_inputs = ?, target_kind = ?, state = ?, labels = ?, updated_at = ?
		 WHERE id = ?`,
		run.EngineID, run.Workflow, run.Inputs, run.LocalizedInputs, run.TargetKind,
		string(run.State), string(labelsJSON), run.UpdatedAt.Format(time.RFC3339Nano), run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "runs", "id", id)
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	return err
}
