package core

import (
	"context"
	"errors"
	"time"
)

// ErrTaskNotFound is returned by task repositories when no task exists
// for the requested identifier.
var ErrTaskNotFound = errors.New("task not found")

// CompletionClient defines the interface for the AI completion
// collaborator. It transports one prompt and returns the raw model
// text; all parsing happens in the classifier so that malformed output
// is handled in exactly one place.
type CompletionClient interface {
	// Complete sends a prompt and returns the model's text response.
	Complete(ctx context.Context, prompt string) (string, error)

	// ModelID identifies the underlying model for result provenance.
	ModelID() string
}

// TaskRepository defines durable, keyed storage for tasks.
// A single create/update/delete is atomic; readers see a consistent
// snapshot.
type TaskRepository interface {
	// Create stores a new task.
	Create(ctx context.Context, task *Task) error

	// Get retrieves a task by ID, or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*Task, error)

	// Update replaces a stored task.
	Update(ctx context.Context, task *Task) error

	// UpdateStatus transitions a task's status, stamping CompletedAt
	// when the new status is completed.
	UpdateStatus(ctx context.Context, id string, status TaskStatus) error

	// Delete hard-deletes a task. The source email is untouched.
	Delete(ctx context.Context, id string) error

	// List returns tasks matching the filter.
	List(ctx context.Context, filter TaskFilter) ([]*Task, error)

	// Close releases any underlying resources.
	Close() error
}

// CorpusRepository stores human-confirmed classifications used as
// few-shot context.
type CorpusRepository interface {
	// Add appends a confirmed example. It becomes visible to the next
	// snapshot, not to snapshots already taken.
	Add(ctx context.Context, example LearningExample) error

	// Snapshot returns an immutable, versioned view of the corpus.
	Snapshot(ctx context.Context) (CorpusSnapshot, error)

	// Close releases any underlying resources.
	Close() error
}

// MailFilter narrows a mailbox fetch.
type MailFilter struct {
	Since      time.Time
	UnreadOnly bool
	Limit      int
}

// MailGateway is the mail collaborator boundary. Calls are fallible
// remote operations; the pipeline records failures per item rather
// than failing the batch.
type MailGateway interface {
	FetchEmails(ctx context.Context, folder string, filter MailFilter) ([]Email, error)
	MoveEmail(ctx context.Context, id string, targetFolder string) error
	MarkRead(ctx context.Context, id string) error
}

// ReviewQueue receives manual-review items for the presentation layer.
type ReviewQueue interface {
	Enqueue(ctx context.Context, decision PendingDecision) error
}

// SenderRules resolves a sender address to a fixed category, bypassing
// the completion service entirely.
type SenderRules interface {
	// Match returns the configured category and a human-readable
	// reason when the sender's domain has a rule.
	Match(sender string) (Category, string, bool)
}

// ExampleSelector picks the few-shot examples most relevant to an
// email from a corpus snapshot.
type ExampleSelector interface {
	Select(email *Email, snapshot CorpusSnapshot) []LearningExample
}
