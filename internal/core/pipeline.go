package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBatchRunning is returned when Run is called while a previous run
// on the same pipeline has not finished.
var ErrBatchRunning = errors.New("a batch run is already in progress")

// PipelineOptions tune batch behavior beyond the core stages.
type PipelineOptions struct {
	// MoveSpamToFolder, when non-empty, asks the mail gateway to move
	// auto-approved spam into this folder.
	MoveSpamToFolder string
	// ArchiveNewslettersTo, when non-empty, archives auto-approved
	// newsletters into this folder.
	ArchiveNewslettersTo string
	// OnProgress, when set, is invoked after every processed item.
	OnProgress func(Progress)
}

// Pipeline drives a batch of emails through dedup, classification,
// confidence policy, extraction, and storage. One logical worker per
// run; per-item failures are isolated, only a failing store aborts the
// batch.
type Pipeline struct {
	classifier *Classifier
	policy     *Policy
	extractor  *Extractor
	sink       *TaskSink
	review     ReviewQueue
	corpus     CorpusRepository
	selector   ExampleSelector
	mail       MailGateway
	logger     *zap.Logger
	opts       PipelineOptions

	mu      sync.Mutex
	running bool
	report  BatchReport

	progressCh chan Progress
}

// NewPipeline creates a pipeline orchestrator. mail may be nil when no
// mail gateway is wired (e.g. the one-shot CLI).
func NewPipeline(
	classifier *Classifier,
	policy *Policy,
	extractor *Extractor,
	sink *TaskSink,
	review ReviewQueue,
	corpus CorpusRepository,
	selector ExampleSelector,
	mail MailGateway,
	opts PipelineOptions,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		policy:     policy,
		extractor:  extractor,
		sink:       sink,
		review:     review,
		corpus:     corpus,
		selector:   selector,
		mail:       mail,
		logger:     logger,
		opts:       opts,
		report:     BatchReport{Status: BatchIdle},
		progressCh: make(chan Progress, 64),
	}
}

// Progress returns the channel progress updates are published on.
// Updates are dropped, never blocked on, when the consumer lags.
func (p *Pipeline) Progress() <-chan Progress {
	return p.progressCh
}

// Status returns a snapshot of the current (or most recent) run's
// report. Safe for concurrent polling.
func (p *Pipeline) Status() BatchReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshotReport(p.report)
}

func snapshotReport(r BatchReport) BatchReport {
	out := r
	out.ByCategory = make(map[Category]int, len(r.ByCategory))
	for k, v := range r.ByCategory {
		out.ByCategory[k] = v
	}
	out.Errors = append([]ItemError(nil), r.Errors...)
	return out
}

// Run processes one batch of emails, returning the final report.
// Cancellation via ctx is cooperative, checked between items; tasks
// already stored are kept. The returned error is non-nil only when the
// run could not proceed at all (busy pipeline, store failure).
func (p *Pipeline) Run(ctx context.Context, emails []Email) (*BatchReport, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrBatchRunning
	}
	p.running = true
	p.report = BatchReport{
		RunID:      uuid.NewString(),
		Status:     BatchRunning,
		Total:      len(emails),
		ByCategory: make(map[Category]int),
		StartedAt:  time.Now(),
	}
	runID := p.report.RunID
	p.mu.Unlock()

	p.logger.Info("Batch run started",
		zap.String("run_id", runID),
		zap.Int("total", len(emails)))

	snapshot := p.corpusSnapshot(ctx, runID)
	deduper := NewRunDeduper()

	var fatal error
	finalStatus := BatchCompleted

	for i := range emails {
		if ctx.Err() != nil {
			finalStatus = BatchCancelled
			break
		}

		email := emails[i]
		if err := p.processItem(ctx, &email, snapshot, deduper, runID); err != nil {
			fatal = err
			finalStatus = BatchFailed
			break
		}

		p.emitProgress(runID, i+1, len(emails), email.ID)
	}

	p.mu.Lock()
	p.running = false
	p.report.Status = finalStatus
	p.report.EndedAt = time.Now()
	report := snapshotReport(p.report)
	p.mu.Unlock()

	p.logger.Info("Batch run finished",
		zap.String("run_id", runID),
		zap.String("status", string(report.Status)),
		zap.Int("processed", report.Processed),
		zap.Int("classified", report.Classified),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("tasks_created", report.TasksCreated),
		zap.Int("tasks_merged", report.TasksMerged),
		zap.Int("errors", len(report.Errors)))

	return &report, fatal
}

// corpusSnapshot captures the few-shot corpus for this run. A corpus
// failure degrades to zero-shot classification rather than aborting.
func (p *Pipeline) corpusSnapshot(ctx context.Context, runID string) CorpusSnapshot {
	if p.corpus == nil {
		return CorpusSnapshot{}
	}
	snapshot, err := p.corpus.Snapshot(ctx)
	if err != nil {
		p.logger.Warn("Corpus snapshot unavailable, classifying without examples",
			zap.String("run_id", runID),
			zap.Error(err))
		return CorpusSnapshot{}
	}
	return snapshot
}

// processItem runs one email through the pipeline stages. The returned
// error is fatal to the batch (store unavailable); everything else is
// recorded in the report and swallowed.
func (p *Pipeline) processItem(
	ctx context.Context,
	email *Email,
	snapshot CorpusSnapshot,
	deduper *RunDeduper,
	runID string,
) (fatal error) {
	defer func() {
		if r := recover(); r != nil {
			p.recordError(email.ID, "pipeline", fmt.Sprintf("panic: %v", r))
			fatal = nil
		}
		p.mu.Lock()
		p.report.Processed++
		p.mu.Unlock()
	}()

	if email.ID == "" || email.From == "" {
		p.recordError(email.ID, "input", "email missing required fields")
		if email.ID != "" {
			p.markRead(ctx, email)
		}
		return nil
	}

	if firstID, duplicate := deduper.Check(email); duplicate {
		p.logger.Debug("Duplicate email skipped",
			zap.String("email_id", email.ID),
			zap.String("duplicate_of", firstID))
		p.mu.Lock()
		p.report.Duplicates++
		p.mu.Unlock()
		// Still flag the duplicate seen so unread-only polling does not
		// refetch it every cycle.
		p.markRead(ctx, email)
		return nil
	}

	var examples []LearningExample
	if p.selector != nil {
		examples = p.selector.Select(email, snapshot)
	}

	result := p.classifier.Classify(ctx, email, examples)

	p.mu.Lock()
	p.report.ByCategory[result.Category]++
	if result.Fallback {
		p.report.Fallbacks++
	} else {
		p.report.Classified++
	}
	p.mu.Unlock()

	// Fallback classifications are still routed through the policy,
	// but the underlying failure stays visible in the error list.
	if result.Fallback {
		p.recordError(email.ID, "classify", result.FallbackReason)
	}

	decision := p.policy.Decide(result)
	if !decision.AutoApproved {
		p.enqueueReview(ctx, email, result, decision, runID)
		p.markRead(ctx, email)
		return nil
	}

	p.mu.Lock()
	p.report.AutoApproved++
	p.mu.Unlock()

	task, ok := p.extractor.Extract(result, email, runID)
	if ok {
		_, merged, err := p.sink.StoreOrMerge(ctx, task)
		if err != nil {
			// Store failures abort the batch; partial results stay
			// committed.
			p.recordError(email.ID, "store", err.Error())
			return fmt.Errorf("task store unavailable: %w", err)
		}
		p.mu.Lock()
		if merged {
			p.report.TasksMerged++
		} else {
			p.report.TasksCreated++
		}
		p.mu.Unlock()
	}

	if !p.actOnMailbox(ctx, email, result) {
		p.markRead(ctx, email)
	}
	return nil
}

// enqueueReview pushes a manual-review item to the reviewing
// collaborator. Queue failures are item errors, not batch failures.
func (p *Pipeline) enqueueReview(ctx context.Context, email *Email, result *ClassificationResult, decision ConfidenceDecision, runID string) {
	p.mu.Lock()
	p.report.ManualReview++
	p.mu.Unlock()

	if p.review == nil {
		return
	}
	pending := PendingDecision{
		ID:         uuid.NewString(),
		RunID:      runID,
		Email:      *email,
		Result:     *result,
		Decision:   decision,
		EnqueuedAt: time.Now(),
	}
	if err := p.review.Enqueue(ctx, pending); err != nil {
		p.recordError(email.ID, "review", err.Error())
	}
}

// actOnMailbox applies folder moves for auto-approved spam and
// newsletters, reporting whether the message was moved away. Mail
// gateway failures are recorded per item.
func (p *Pipeline) actOnMailbox(ctx context.Context, email *Email, result *ClassificationResult) bool {
	if p.mail == nil {
		return false
	}

	var target string
	switch result.Category {
	case CategorySpamToDelete:
		target = p.opts.MoveSpamToFolder
	case CategoryNewsletter:
		target = p.opts.ArchiveNewslettersTo
	}
	if target == "" {
		return false
	}

	if err := p.mail.MoveEmail(ctx, email.ID, target); err != nil {
		p.recordError(email.ID, "mail", err.Error())
		return false
	}
	p.logger.Debug("Email moved",
		zap.String("email_id", email.ID),
		zap.String("folder", target))
	return true
}

// markRead flags a processed message seen so unread-only polling does
// not pick it up again next cycle.
func (p *Pipeline) markRead(ctx context.Context, email *Email) {
	if p.mail == nil {
		return
	}
	if err := p.mail.MarkRead(ctx, email.ID); err != nil {
		p.recordError(email.ID, "mail", err.Error())
	}
}

func (p *Pipeline) recordError(emailID, stage, message string) {
	p.logger.Warn("Pipeline item error",
		zap.String("email_id", emailID),
		zap.String("stage", stage),
		zap.String("error", message))
	p.mu.Lock()
	p.report.Errors = append(p.report.Errors, ItemError{
		EmailID: emailID,
		Stage:   stage,
		Err:     message,
	})
	p.mu.Unlock()
}

func (p *Pipeline) emitProgress(runID string, done, total int, lastEmailID string) {
	percent := 100.0
	if total > 0 {
		percent = float64(done) / float64(total) * 100.0
	}
	progress := Progress{
		RunID:       runID,
		Done:        done,
		Total:       total,
		Percent:     percent,
		LastEmailID: lastEmailID,
	}

	if p.opts.OnProgress != nil {
		p.opts.OnProgress(progress)
	}
	select {
	case p.progressCh <- progress:
	default:
	}
}
