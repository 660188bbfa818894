package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/core"
)

// MemoryStore is an in-memory implementation of the TaskRepository and
// CorpusRepository interfaces, used for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*core.Task
	examples []core.LearningExample
	version  int64
	logger   *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]*core.Task),
		logger: logger,
	}
}

// Create stores a new task
func (s *MemoryStore) Create(_ context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// Get retrieves a task by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, core.ErrTaskNotFound
	}
	return copyTask(task), nil
}

// Update replaces a stored task
func (s *MemoryStore) Update(_ context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return core.ErrTaskNotFound
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// UpdateStatus transitions a task's status
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status core.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return core.ErrTaskNotFound
	}
	task.Status = status
	if status == core.TaskStatusCompleted {
		now := time.Now()
		task.CompletedAt = &now
	} else {
		task.CompletedAt = nil
	}
	return nil
}

// Delete hard-deletes a task
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return core.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// List returns tasks matching the filter
func (s *MemoryStore) List(_ context.Context, filter core.TaskFilter) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Task
	for _, task := range s.tasks {
		if matchesFilter(task, filter) {
			out = append(out, copyTask(task))
		}
	}
	return out, nil
}

func matchesFilter(task *core.Task, filter core.TaskFilter) bool {
	if filter.Status != nil && task.Status != *filter.Status {
		return false
	}
	if filter.Category != nil && task.Category != *filter.Category {
		return false
	}
	if filter.EmailID != nil && task.EmailID != *filter.EmailID {
		return false
	}
	if filter.RunID != nil && task.RunID != *filter.RunID {
		return false
	}
	if filter.DueBefore != nil {
		if task.DueDate == nil || task.DueDate.After(*filter.DueBefore) {
			return false
		}
	}
	if filter.DueAfter != nil {
		if task.DueDate == nil || task.DueDate.Before(*filter.DueAfter) {
			return false
		}
	}
	return true
}

// Add appends a confirmed learning example
func (s *MemoryStore) Add(_ context.Context, example core.LearningExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.examples = append(s.examples, example)
	s.version++
	return nil
}

// Snapshot returns an immutable view of the corpus
func (s *MemoryStore) Snapshot(_ context.Context) (core.CorpusSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.CorpusSnapshot{
		Version:  s.version,
		Examples: append([]core.LearningExample(nil), s.examples...),
	}, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

func copyTask(task *core.Task) *core.Task {
	out := *task
	if task.DueDate != nil {
		due := *task.DueDate
		out.DueDate = &due
	}
	if task.CompletedAt != nil {
		completed := *task.CompletedAt
		out.CompletedAt = &completed
	}
	out.MergedEmailIDs = append([]string(nil), task.MergedEmailIDs...)
	return &out
}
