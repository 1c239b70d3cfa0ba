package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the task journal.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id             TEXT PRIMARY KEY,
		actor_id       TEXT NOT NULL DEFAULT '',
		actor_creation INTEGER NOT NULL DEFAULT 0,
		function       TEXT NOT NULL,
		args           TEXT NOT NULL DEFAULT '[]',
		dependencies   TEXT NOT NULL DEFAULT '[]',
		return_id      TEXT NOT NULL DEFAULT '',
		resources      TEXT NOT NULL DEFAULT '{}',
		state          TEXT NOT NULL,
		result         TEXT,
		error          TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL,
		started_at     TEXT,
		completed_at   TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS task_transitions (
		task_id    TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state   TEXT NOT NULL,
		at         TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_actor_id ON tasks(actor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_transitions_task_id ON task_transitions(task_id)`,
}

// migrate applies all schema statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
