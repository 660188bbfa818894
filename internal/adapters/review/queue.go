// Package review holds manual-review items until a human confirms or
// rejects the suggested classification.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/core"
)

// ErrDecisionNotFound is returned when no pending decision exists for
// the given identifier.
var ErrDecisionNotFound = errors.New("pending decision not found")

// Queue is an in-memory pending-decisions queue exposed to the
// presentation layer. Confirming an item finishes the pipeline for it:
// the task is extracted and stored, and — when the human accepted the
// suggestion unchanged — the classification is admitted to the
// learning corpus.
type Queue struct {
	mu    sync.Mutex
	items map[string]core.PendingDecision
	order []string

	extractor *core.Extractor
	sink      *core.TaskSink
	corpus    core.CorpusRepository
	logger    *zap.Logger
}

// NewQueue creates a review queue. corpus may be nil to disable
// example collection.
func NewQueue(extractor *core.Extractor, sink *core.TaskSink, corpus core.CorpusRepository, logger *zap.Logger) *Queue {
	return &Queue{
		items:     make(map[string]core.PendingDecision),
		extractor: extractor,
		sink:      sink,
		corpus:    corpus,
		logger:    logger,
	}
}

// Enqueue adds a manual-review item.
func (q *Queue) Enqueue(_ context.Context, decision core.PendingDecision) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.items[decision.ID]; exists {
		return fmt.Errorf("pending decision %s already queued", decision.ID)
	}
	q.items[decision.ID] = decision
	q.order = append(q.order, decision.ID)

	q.logger.Info("Classification queued for manual review",
		zap.String("decision_id", decision.ID),
		zap.String("email_id", decision.Email.ID),
		zap.String("category", string(decision.Result.Category)),
		zap.String("reason", decision.Decision.Reason))
	return nil
}

// Pending returns queued decisions in arrival order.
func (q *Queue) Pending() []core.PendingDecision {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]core.PendingDecision, 0, len(q.order))
	for _, id := range q.order {
		if item, ok := q.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Confirm accepts a pending decision. override, when non-nil, replaces
// the suggested category; overridden classifications are not admitted
// to the learning corpus since the suggestion was wrong. The stored or
// merged task is returned, or nil when the category produces none.
func (q *Queue) Confirm(ctx context.Context, id string, override *core.Category) (*core.Task, error) {
	item, err := q.take(id)
	if err != nil {
		return nil, err
	}

	result := item.Result
	if override != nil && *override != result.Category {
		// Supersede rather than mutate: a new result reflecting the
		// human's category.
		result = core.ClassificationResult{
			EmailID:      result.EmailID,
			Category:     *override,
			Explanation:  fmt.Sprintf("Manually classified as %s (suggested %s).", *override, result.Category),
			ModelUsed:    "manual_review",
			ClassifiedAt: time.Now(),
		}
	} else if q.corpus != nil && !item.Result.Fallback {
		example := core.LearningExample{
			Subject:     item.Email.Subject,
			Sender:      item.Email.From,
			BodySnippet: item.Email.Body,
			Category:    result.Category,
			ConfirmedAt: time.Now(),
		}
		if err := q.corpus.Add(ctx, example); err != nil {
			q.logger.Warn("Failed to admit confirmed example to corpus",
				zap.String("email_id", item.Email.ID),
				zap.Error(err))
		}
	}

	task, ok := q.extractor.Extract(&result, &item.Email, item.RunID)
	if !ok {
		q.logger.Info("Confirmed classification produced no task",
			zap.String("decision_id", id),
			zap.String("category", string(result.Category)))
		return nil, nil
	}

	stored, merged, err := q.sink.StoreOrMerge(ctx, task)
	if err != nil {
		// Put the item back so the confirmation can be retried.
		q.restore(item)
		return nil, fmt.Errorf("storing confirmed task: %w", err)
	}

	q.logger.Info("Manual review confirmed",
		zap.String("decision_id", id),
		zap.String("task_id", stored.ID),
		zap.Bool("merged", merged))
	return stored, nil
}

// Reject discards a pending decision without creating a task.
func (q *Queue) Reject(_ context.Context, id string) error {
	_, err := q.take(id)
	if err != nil {
		return err
	}
	q.logger.Info("Manual review rejected", zap.String("decision_id", id))
	return nil
}

// Len reports the number of queued decisions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) take(id string) (core.PendingDecision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return core.PendingDecision{}, ErrDecisionNotFound
	}
	delete(q.items, id)
	for i, queued := range q.order {
		if queued == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return item, nil
}

func (q *Queue) restore(item core.PendingDecision) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[item.ID] = item
	q.order = append(q.order, item.ID)
}
