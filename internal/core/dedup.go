package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DedupKey builds the normalized identity used for email-level
// duplicate detection: trimmed, case-folded subject plus sender.
func DedupKey(subject, sender string) string {
	return strings.ToLower(strings.TrimSpace(subject)) + "\x00" +
		strings.ToLower(strings.TrimSpace(sender))
}

// RunDeduper tracks emails already seen within one processing run.
// The first email for a key wins; later ones are duplicates. Purely
// in-memory and deterministic: the same batch always yields the same
// duplicate set.
type RunDeduper struct {
	seen map[string]string
}

// NewRunDeduper creates an empty per-run deduper.
func NewRunDeduper() *RunDeduper {
	return &RunDeduper{seen: make(map[string]string)}
}

// Check records the email and reports whether it duplicates one
// already seen this run. For duplicates it returns the ID of the
// first occurrence.
func (d *RunDeduper) Check(email *Email) (firstID string, duplicate bool) {
	key := DedupKey(email.Subject, email.From)
	if first, ok := d.seen[key]; ok {
		return first, true
	}
	d.seen[key] = email.ID
	return "", false
}

// senderDomain extracts the domain part of an address, lowercased.
func senderDomain(address string) string {
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// FindMergeTarget returns the stored task a candidate duplicates, or
// nil. Two tasks match when they share a category and either the same
// conversation thread, the same source email, or the same normalized
// subject from the same sender domain.
func FindMergeTarget(candidate *Task, existing []*Task) *Task {
	for _, task := range existing {
		if task.Category != candidate.Category {
			continue
		}
		if candidate.ThreadID != "" && task.ThreadID == candidate.ThreadID {
			return task
		}
		if candidate.EmailID != "" && task.EmailID == candidate.EmailID {
			return task
		}
		if DedupKey(task.Subject, "") == DedupKey(candidate.Subject, "") &&
			senderDomain(task.Sender) != "" &&
			senderDomain(task.Sender) == senderDomain(candidate.Sender) {
			return task
		}
	}
	return nil
}

// TaskSink serializes merge-or-create decisions against a task
// repository. The read-then-write sequence runs under one lock so
// concurrent batches over overlapping emails cannot race a duplicate
// into existence.
type TaskSink struct {
	repo   TaskRepository
	logger *zap.Logger
	mu     sync.Mutex
}

// NewTaskSink creates a sink over the given repository.
func NewTaskSink(repo TaskRepository, logger *zap.Logger) *TaskSink {
	return &TaskSink{repo: repo, logger: logger}
}

// StoreOrMerge stores the candidate task, merging it into an existing
// duplicate instead when one is found. It returns the surviving task
// and whether a merge happened.
func (s *TaskSink) StoreOrMerge(ctx context.Context, candidate *Task) (*Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category := candidate.Category
	existing, err := s.repo.List(ctx, TaskFilter{Category: &category})
	if err != nil {
		return nil, false, fmt.Errorf("listing tasks for dedup: %w", err)
	}

	target := FindMergeTarget(candidate, existing)
	if target == nil {
		if err := s.repo.Create(ctx, candidate); err != nil {
			return nil, false, fmt.Errorf("creating task: %w", err)
		}
		s.logger.Debug("Task created",
			zap.String("task_id", candidate.ID),
			zap.String("email_id", candidate.EmailID),
			zap.String("category", string(candidate.Category)))
		return candidate, false, nil
	}

	// Merge: bump the occurrence counter and record which source
	// email was absorbed. The target's own EmailID link stays as-is.
	target.Occurrences++
	if candidate.EmailID != "" && candidate.EmailID != target.EmailID &&
		!containsString(target.MergedEmailIDs, candidate.EmailID) {
		target.MergedEmailIDs = append(target.MergedEmailIDs, candidate.EmailID)
	}
	if err := s.repo.Update(ctx, target); err != nil {
		return nil, false, fmt.Errorf("merging task: %w", err)
	}

	s.logger.Debug("Task merged into existing",
		zap.String("task_id", target.ID),
		zap.String("absorbed_email_id", candidate.EmailID),
		zap.Int("occurrences", target.Occurrences))
	return target, true, nil
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// newTaskDefaults fills creation-time fields shared by every task.
func newTaskDefaults(task *Task, now time.Time) {
	if task.Status == "" {
		task.Status = TaskStatusPending
	}
	if task.Occurrences == 0 {
		task.Occurrences = 1
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
}
