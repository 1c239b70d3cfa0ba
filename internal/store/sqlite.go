package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/nodelet/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
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

func (s *SQLiteStore) CreateTask(ctx context.Context, task *model.Task) error {
	s.logger.Debug("sql", "op", "insert", "table", "tasks", "id", task.ID)

	argsJSON, err := json.Marshal(task.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	depsJSON, err := json.Marshal(task.Dependencies)
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}
	resourcesJSON, err := json.Marshal(task.Resources)
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, actor_id, actor_creation, function, args, dependencies, return_id, resources, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(task.ID), string(task.ActorID), boolToInt(task.ActorCreation), task.Function,
		string(argsJSON), string(depsJSON), string(task.ReturnID), string(resourcesJSON),
		task.State.String(), task.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetTask(ctx context.Context, id model.TaskID) (*model.Task, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor_id, actor_creation, function, args, dependencies, return_id, resources, state, result, error, created_at, started_at, completed_at
		 FROM tasks WHERE id = ?`, string(id))

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, opts model.ListOptions) ([]*model.Task, int, error) {
	opts.Clamp()
	s.logger.Debug("sql", "op", "select", "table", "tasks", "state", opts.State, "limit", opts.Limit, "offset", opts.Offset)

	where, args := "", []any{}
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, actor_creation, function, args, dependencies, return_id, resources, state, result, error, created_at, started_at, completed_at
		 FROM tasks`+where+` ORDER BY created_at LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

func (s *SQLiteStore) UpdateTaskState(ctx context.Context, id model.TaskID, next model.TaskState) error {
	s.logger.Debug("sql", "op", "update", "table", "tasks", "id", id, "state", next)

	current, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("task %s not found", id)
	}
	if !current.State.CanTransitionTo(next) {
		return &model.InvalidTransitionError{ID: id, From: current.State, To: next}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	switch {
	case next == model.TaskStateRunning && current.StartedAt == nil:
		_, err = s.db.ExecContext(ctx,
			"UPDATE tasks SET state = ?, started_at = ? WHERE id = ?", next.String(), now, string(id))
	case next.IsTerminal():
		_, err = s.db.ExecContext(ctx,
			"UPDATE tasks SET state = ?, completed_at = ? WHERE id = ?", next.String(), now, string(id))
	default:
		_, err = s.db.ExecContext(ctx,
			"UPDATE tasks SET state = ? WHERE id = ?", next.String(), string(id))
	}
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO task_transitions (task_id, from_state, to_state, at) VALUES (?, ?, ?, ?)",
		string(id), current.State.String(), next.String(), now)
	return err
}

func (s *SQLiteStore) SetTaskResult(ctx context.Context, id model.TaskID, state model.TaskState, result any, errMsg string) error {
	if !state.IsTerminal() {
		return fmt.Errorf("task %s: result state %s is not terminal", id, state)
	}
	if err := s.UpdateTaskState(ctx, id, state); err != nil {
		return err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE tasks SET result = ?, error = ? WHERE id = ?",
		string(resultJSON), errMsg, string(id))
	return err
}

func (s *SQLiteStore) Transitions(ctx context.Context, id model.TaskID) ([]Transition, error) {
	s.logger.Debug("sql", "op", "select", "table", "task_transitions", "task_id", id)

	rows, err := s.db.QueryContext(ctx,
		"SELECT task_id, from_state, to_state, at FROM task_transitions WHERE task_id = ? ORDER BY rowid", string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var tr Transition
		var taskID, from, to string
		if err := rows.Scan(&taskID, &from, &to, &tr.At); err != nil {
			return nil, err
		}
		tr.TaskID = model.TaskID(taskID)
		tr.From = model.TaskState(from)
		tr.To = model.TaskState(to)
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*model.Task, error) {
	var task model.Task
	var id, actorID, returnID string
	var actorCreation int
	var argsJSON, depsJSON, resourcesJSON, state, createdAt string
	var resultJSON, startedAt, completedAt sql.NullString

	err := row.Scan(&id, &actorID, &actorCreation, &task.Function,
		&argsJSON, &depsJSON, &returnID, &resourcesJSON,
		&state, &resultJSON, &task.Error, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	task.ID = model.TaskID(id)
	task.ActorID = model.ActorID(actorID)
	task.ActorCreation = actorCreation != 0
	task.ReturnID = model.ObjectID(returnID)
	task.State = model.TaskState(state)

	if err := json.Unmarshal([]byte(argsJSON), &task.Args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	if err := json.Unmarshal([]byte(depsJSON), &task.Dependencies); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(resourcesJSON), &task.Resources); err != nil {
		return nil, fmt.Errorf("unmarshal resources: %w", err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &task.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	if task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if startedAt.Valid {
		ts, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		task.StartedAt = &ts
	}
	if completedAt.Valid {
		ts, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		task.CompletedAt = &ts
	}

	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
