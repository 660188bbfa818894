package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nfraser/mail-triage/internal/core"
)

// taskRow mirrors the tasks table. Timestamps are stored as RFC3339
// text so the same row mapping works across sqlite and mysql drivers.
type taskRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Action         string         `db:"action"`
	Category       string         `db:"category"`
	Priority       string         `db:"priority"`
	DueDate        sql.NullString `db:"due_date"`
	Status         string         `db:"status"`
	CreatedAt      string         `db:"created_at"`
	CompletedAt    sql.NullString `db:"completed_at"`
	Subject        string         `db:"subject"`
	Sender         string         `db:"sender"`
	EmailID        string         `db:"email_id"`
	ThreadID       string         `db:"thread_id"`
	RunID          string         `db:"run_id"`
	Occurrences    int            `db:"occurrences"`
	MergedEmailIDs string         `db:"merged_email_ids"`
	Informational  bool           `db:"informational"`
}

// exampleRow mirrors the learning_examples table.
type exampleRow struct {
	ID          int64  `db:"id"`
	Subject     string `db:"subject"`
	Sender      string `db:"sender"`
	BodySnippet string `db:"body_snippet"`
	Category    string `db:"category"`
	ConfirmedAt string `db:"confirmed_at"`
}

func rowFromTask(task *core.Task) (*taskRow, error) {
	merged, err := json.Marshal(task.MergedEmailIDs)
	if err != nil {
		return nil, fmt.Errorf("marshaling merged_email_ids for task %s: %w", task.ID, err)
	}

	row := &taskRow{
		ID:             task.ID,
		Title:          task.Title,
		Action:         task.Action,
		Category:       string(task.Category),
		Priority:       string(task.Priority),
		Status:         string(task.Status),
		CreatedAt:      task.CreatedAt.UTC().Format(time.RFC3339),
		Subject:        task.Subject,
		Sender:         task.Sender,
		EmailID:        task.EmailID,
		ThreadID:       task.ThreadID,
		RunID:          task.RunID,
		Occurrences:    task.Occurrences,
		MergedEmailIDs: string(merged),
		Informational:  task.Informational,
	}
	if task.DueDate != nil {
		row.DueDate = sql.NullString{String: task.DueDate.UTC().Format(time.RFC3339), Valid: true}
	}
	if task.CompletedAt != nil {
		row.CompletedAt = sql.NullString{String: task.CompletedAt.UTC().Format(time.RFC3339), Valid: true}
	}
	return row, nil
}

func taskFromRow(row *taskRow) (*core.Task, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for task %s: %w", row.ID, err)
	}

	task := &core.Task{
		ID:            row.ID,
		Title:         row.Title,
		Action:        row.Action,
		Category:      core.Category(row.Category),
		Priority:      core.Priority(row.Priority),
		Status:        core.TaskStatus(row.Status),
		CreatedAt:     createdAt,
		Subject:       row.Subject,
		Sender:        row.Sender,
		EmailID:       row.EmailID,
		ThreadID:      row.ThreadID,
		RunID:         row.RunID,
		Occurrences:   row.Occurrences,
		Informational: row.Informational,
	}

	if row.DueDate.Valid {
		due, err := time.Parse(time.RFC3339, row.DueDate.String)
		if err != nil {
			return nil, fmt.Errorf("parsing due_date for task %s: %w", row.ID, err)
		}
		task.DueDate = &due
	}
	if row.CompletedAt.Valid {
		completed, err := time.Parse(time.RFC3339, row.CompletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at for task %s: %w", row.ID, err)
		}
		task.CompletedAt = &completed
	}
	if row.MergedEmailIDs != "" {
		if err := json.Unmarshal([]byte(row.MergedEmailIDs), &task.MergedEmailIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling merged_email_ids for task %s: %w", row.ID, err)
		}
	}
	return task, nil
}

func exampleFromRow(row *exampleRow) (core.LearningExample, error) {
	confirmedAt, err := time.Parse(time.RFC3339, row.ConfirmedAt)
	if err != nil {
		return core.LearningExample{}, fmt.Errorf("parsing confirmed_at for example %d: %w", row.ID, err)
	}
	return core.LearningExample{
		Subject:     row.Subject,
		Sender:      row.Sender,
		BodySnippet: row.BodySnippet,
		Category:    core.Category(row.Category),
		ConfirmedAt: confirmedAt,
	}, nil
}

// buildListQuery assembles the WHERE clause for a task filter.
func buildListQuery(filter core.TaskFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, string(*filter.Category))
	}
	if filter.EmailID != nil {
		conditions = append(conditions, "email_id = ?")
		args = append(args, *filter.EmailID)
	}
	if filter.RunID != nil {
		conditions = append(conditions, "run_id = ?")
		args = append(args, *filter.RunID)
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, "due_date IS NOT NULL AND due_date <= ?")
		args = append(args, filter.DueBefore.UTC().Format(time.RFC3339))
	}
	if filter.DueAfter != nil {
		conditions = append(conditions, "due_date IS NOT NULL AND due_date >= ?")
		args = append(args, filter.DueAfter.UTC().Format(time.RFC3339))
	}

	query := "SELECT * FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"
	return query, args
}

const insertTaskQuery = `
	INSERT INTO tasks (
		id, title, action, category, priority,
		due_date, status, created_at, completed_at,
		subject, sender, email_id, thread_id, run_id,
		occurrences, merged_email_ids, informational
	) VALUES (
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?
	)`

const updateTaskQuery = `
	UPDATE tasks SET
		title = ?, action = ?, category = ?, priority = ?,
		due_date = ?, status = ?, created_at = ?, completed_at = ?,
		subject = ?, sender = ?, email_id = ?, thread_id = ?, run_id = ?,
		occurrences = ?, merged_email_ids = ?, informational = ?
	WHERE id = ?`

func insertArgs(row *taskRow) []interface{} {
	return []interface{}{
		row.ID, row.Title, row.Action, row.Category, row.Priority,
		row.DueDate, row.Status, row.CreatedAt, row.CompletedAt,
		row.Subject, row.Sender, row.EmailID, row.ThreadID, row.RunID,
		row.Occurrences, row.MergedEmailIDs, row.Informational,
	}
}

func updateArgs(row *taskRow) []interface{} {
	return []interface{}{
		row.Title, row.Action, row.Category, row.Priority,
		row.DueDate, row.Status, row.CreatedAt, row.CompletedAt,
		row.Subject, row.Sender, row.EmailID, row.ThreadID, row.RunID,
		row.Occurrences, row.MergedEmailIDs, row.Informational,
		row.ID,
	}
}
