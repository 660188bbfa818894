package core

import (
	"fmt"
	"strings"
	"time"
)

// Category is the closed set of triage categories an email can be
// assigned. Any model output that does not map onto one of these is
// treated as unparseable, never as a new category.
type Category string

const (
	CategoryRequiredPersonalAction Category = "required_personal_action"
	CategoryTeamAction             Category = "team_action"
	CategoryOptionalAction         Category = "optional_action"
	CategoryJobListing             Category = "job_listing"
	CategoryOptionalEvent          Category = "optional_event"
	CategoryWorkRelevant           Category = "work_relevant"
	CategoryFYI                    Category = "fyi"
	CategoryNewsletter             Category = "newsletter"
	CategorySpamToDelete           Category = "spam_to_delete"
)

// AllCategories returns every valid category, in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryRequiredPersonalAction,
		CategoryTeamAction,
		CategoryOptionalAction,
		CategoryJobListing,
		CategoryOptionalEvent,
		CategoryWorkRelevant,
		CategoryFYI,
		CategoryNewsletter,
		CategorySpamToDelete,
	}
}

// ParseCategory normalizes a raw category token (as returned by an LLM
// or read from config) into a Category. Hyphens and spaces are folded
// to underscores and case is ignored.
func ParseCategory(raw string) (Category, error) {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.ReplaceAll(token, "-", "_")
	token = strings.ReplaceAll(token, " ", "_")

	for _, c := range AllCategories() {
		if token == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

// Priority represents a task priority level
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Email represents an email message as delivered by the mail
// collaborator. The pipeline never mutates an email; moves and flag
// changes go back through the MailGateway.
type Email struct {
	ID         string
	Subject    string
	From       string
	Body       string
	ReceivedAt time.Time
	ThreadID   string
	Folder     string
}

// ClassificationResult is the outcome of one classification attempt.
// It is immutable after creation; reclassification produces a new
// result rather than mutating an old one.
type ClassificationResult struct {
	EmailID     string
	Category    Category
	Explanation string
	// Confidence is nil when the model did not report one. The
	// confidence policy estimates a value in that case.
	Confidence   *float64
	ModelUsed    string
	ClassifiedAt time.Time
	// Fallback marks results produced by the local fallback path
	// (service failure or unparseable model output).
	Fallback       bool
	FallbackReason string
}

// ConfidenceDecision is the auto-approve verdict for one
// classification result. It is recomputed from the result and the
// current thresholds, never persisted.
type ConfidenceDecision struct {
	AutoApproved bool
	Confidence   float64
	Threshold    float64
	// Estimated is true when the confidence was derived from the
	// explanation rather than reported by the model.
	Estimated bool
	Reason    string
}

// LearningExample is a past human-confirmed classification used as
// few-shot context. Only classifications the human accepted without
// overriding the suggested category are admitted.
type LearningExample struct {
	Subject     string
	Sender      string
	BodySnippet string
	Category    Category
	ConfirmedAt time.Time
}

// CorpusSnapshot is an immutable view of the learning corpus captured
// at the start of a run. Examples confirmed during a run become
// visible to the next run's snapshot, not the current one.
type CorpusSnapshot struct {
	Version  int64
	Examples []LearningExample
}

// Task is a trackable unit of work derived from an email.
type Task struct {
	ID       string
	Title    string
	Action   string
	Category Category
	Priority Priority
	DueDate  *time.Time
	Status   TaskStatus

	CreatedAt   time.Time
	CompletedAt *time.Time

	// Subject and Sender are carried from the source email for
	// task-level duplicate matching.
	Subject  string
	Sender   string
	EmailID  string
	ThreadID string
	RunID    string

	// Occurrences counts how many times this task has been seen
	// across runs. MergedEmailIDs records every source email absorbed
	// by a merge; the original EmailID link is never rewritten.
	Occurrences    int
	MergedEmailIDs []string

	// Informational marks non-actionable fyi entries created when the
	// pipeline is configured to record them.
	Informational bool
}

// TaskFilter selects tasks in list queries. Nil fields match
// everything.
type TaskFilter struct {
	Status    *TaskStatus
	Category  *Category
	EmailID   *string
	RunID     *string
	DueBefore *time.Time
	DueAfter  *time.Time
}

// PendingDecision is a manual-review item surfaced to the presentation
// layer. It holds everything needed to finish the item once a human
// confirms or rejects the suggested category.
type PendingDecision struct {
	ID         string
	RunID      string
	Email      Email
	Result     ClassificationResult
	Decision   ConfidenceDecision
	EnqueuedAt time.Time
}

// BatchStatus is the state of one processing run.
type BatchStatus string

const (
	BatchIdle      BatchStatus = "idle"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
	BatchFailed    BatchStatus = "failed"
)

// ItemError records a per-email failure without failing the batch.
type ItemError struct {
	EmailID string
	Stage   string
	Err     string
}

// BatchReport is the final (or in-flight) accounting for one run.
// Partial success is always visible: counts and the error list are
// reported even when the run ends cancelled or failed.
type BatchReport struct {
	RunID  string
	Status BatchStatus

	Total        int
	Processed    int
	Classified   int
	Fallbacks    int
	Duplicates   int
	AutoApproved int
	ManualReview int
	TasksCreated int
	TasksMerged  int

	ByCategory map[Category]int
	Errors     []ItemError

	StartedAt time.Time
	EndedAt   time.Time
}

// Progress is emitted after each processed item.
type Progress struct {
	RunID       string
	Done        int
	Total       int
	Percent     float64
	LastEmailID string
}
