package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/core"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id VARCHAR(64) PRIMARY KEY,
		title TEXT NOT NULL,
		action TEXT NOT NULL,
		category VARCHAR(64) NOT NULL,
		priority VARCHAR(16) NOT NULL,
		due_date VARCHAR(40),
		status VARCHAR(32) NOT NULL,
		created_at VARCHAR(40) NOT NULL,
		completed_at VARCHAR(40),
		subject TEXT NOT NULL,
		sender VARCHAR(255) NOT NULL DEFAULT '',
		email_id VARCHAR(255) NOT NULL DEFAULT '',
		thread_id VARCHAR(255) NOT NULL DEFAULT '',
		run_id VARCHAR(64) NOT NULL DEFAULT '',
		occurrences INT NOT NULL DEFAULT 1,
		merged_email_ids TEXT NOT NULL,
		informational BOOLEAN NOT NULL DEFAULT FALSE,
		INDEX idx_tasks_status (status),
		INDEX idx_tasks_category (category),
		INDEX idx_tasks_email_id (email_id),
		INDEX idx_tasks_due_date (due_date)
	)`,
	`CREATE TABLE IF NOT EXISTS learning_examples (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		subject TEXT NOT NULL,
		sender VARCHAR(255) NOT NULL,
		body_snippet TEXT NOT NULL,
		category VARCHAR(64) NOT NULL,
		confirmed_at VARCHAR(40) NOT NULL
	)`,
}

// MySQLStore is a MySQL implementation of the TaskRepository and
// CorpusRepository interfaces.
type MySQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL using the given DSN and creates the
// schema if needed.
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	for _, stmt := range mysqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// Create stores a new task
func (s *MySQLStore) Create(ctx context.Context, task *core.Task) error {
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
func (s *MySQLStore) Get(ctx context.Context, id string) (*core.Task, error) {
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
func (s *MySQLStore) Update(ctx context.Context, task *core.Task) error {
	row, err := rowFromTask(task)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, updateTaskQuery, updateArgs(row)...); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// UpdateStatus transitions a task's status, stamping completed_at when
// the task moves to completed
func (s *MySQLStore) UpdateStatus(ctx context.Context, id string, status core.TaskStatus) error {
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

	// MySQL reports zero affected rows for no-op updates too, so
	// verify existence separately.
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := s.db.GetContext(ctx, &exists,
			"SELECT COUNT(*) FROM tasks WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to verify task: %w", err)
		}
		if exists == 0 {
			return core.ErrTaskNotFound
		}
	}
	return nil
}

// Delete hard-deletes a task
func (s *MySQLStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return checkAffected(result)
}

// List returns tasks matching the filter
func (s *MySQLStore) List(ctx context.Context, filter core.TaskFilter) ([]*core.Task, error) {
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
func (s *MySQLStore) Add(ctx context.Context, example core.LearningExample) error {
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

// Snapshot returns a versioned view of the corpus
func (s *MySQLStore) Snapshot(ctx context.Context) (core.CorpusSnapshot, error) {
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
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
