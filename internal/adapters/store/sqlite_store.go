package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/core"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		action TEXT NOT NULL,
		category TEXT NOT NULL,
		priority TEXT NOT NULL,
		due_date TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		completed_at TEXT,
		subject TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		email_id TEXT NOT NULL DEFAULT '',
		thread_id TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		occurrences INTEGER NOT NULL DEFAULT 1,
		merged_email_ids TEXT NOT NULL DEFAULT '[]',
		informational BOOLEAN NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_category ON tasks(category);
	CREATE INDEX IF NOT EXISTS idx_tasks_email_id ON tasks(email_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);

	CREATE TABLE IF NOT EXISTS learning_examples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL,
		sender TEXT NOT NULL,
		body_snippet TEXT NOT NULL,
		category TEXT NOT NULL,
		confirmed_at TEXT NOT NULL
	);
`

// SQLiteStore is a SQLite implementation of the TaskRepository and
// CorpusRepository interfaces.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// creates the schema if needed.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Create stores a new task
func (s *SQLiteStore) Create(ctx context.Context, task *core.Task) error {
	row, err := rowFromTask(task)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertTaskQuery, insertArgs(row)...); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return taskFromRow(&row)
}

// Update replaces a stored task
func (s *SQLiteStore) Update(ctx context.Context, task *core.Task) error {
	row, err := rowFromTask(task)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, updateTaskQuery, updateArgs(row)...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return checkAffected(result)
}

// UpdateStatus transitions a task's status, stamping completed_at when
// the task moves to completed
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status core.TaskStatus) error {
	var completedAt interface{}
	if status == core.TaskStatusCompleted {
		completedAt = time.Now().UTC().Format(time.RFC3339)
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?",
		string(status), completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return checkAffected(result)
}

// Delete hard-deletes a task
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return checkAffected(result)
}

// List returns tasks matching the filter
func (s *SQLiteStore) List(ctx context.Context, filter core.TaskFilter) ([]*core.Task, error) {
	query, args := buildListQuery(filter)

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*core.Task, 0, len(rows))
	for i := range rows {
		task, err := taskFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Add appends a confirmed learning example
func (s *SQLiteStore) Add(ctx context.Context, example core.LearningExample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_examples (subject, sender, body_snippet, category, confirmed_at)
		VALUES (?, ?, ?, ?, ?)`,
		example.Subject, example.Sender, example.BodySnippet,
		string(example.Category), example.ConfirmedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert learning example: %w", err)
	}
	return nil
}

// Snapshot returns a versioned view of the corpus. The version is the
// highest example rowid, so any append bumps it.
func (s *SQLiteStore) Snapshot(ctx context.Context) (core.CorpusSnapshot, error) {
	var version sql.NullInt64
	if err := s.db.GetContext(ctx, &version, "SELECT MAX(id) FROM learning_examples"); err != nil {
		return core.CorpusSnapshot{}, fmt.Errorf("failed to read corpus version: %w", err)
	}

	var rows []exampleRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM learning_examples ORDER BY id")
	if err != nil {
		return core.CorpusSnapshot{}, fmt.Errorf("failed to list learning examples: %w", err)
	}

	examples := make([]core.LearningExample, 0, len(rows))
	for i := range rows {
		example, err := exampleFromRow(&rows[i])
		if err != nil {
			return core.CorpusSnapshot{}, err
		}
		examples = append(examples, example)
	}
	return core.CorpusSnapshot{Version: version.Int64, Examples: examples}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}
