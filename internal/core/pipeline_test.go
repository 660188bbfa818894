package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeReviewQueue struct {
	mu    sync.Mutex
	items []PendingDecision
	err   error
}

func (q *fakeReviewQueue) Enqueue(_ context.Context, decision PendingDecision) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, decision)
	return nil
}

func (q *fakeReviewQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type fakeMailGateway struct {
	mu      sync.Mutex
	moves   map[string]string
	read    map[string]bool
	moveErr error
}

func newFakeMailGateway() *fakeMailGateway {
	return &fakeMailGateway{moves: make(map[string]string), read: make(map[string]bool)}
}

func (g *fakeMailGateway) FetchEmails(_ context.Context, _ string, _ MailFilter) ([]Email, error) {
	return nil, nil
}

func (g *fakeMailGateway) MoveEmail(_ context.Context, id, targetFolder string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.moveErr != nil {
		return g.moveErr
	}
	g.moves[id] = targetFolder
	return nil
}

func (g *fakeMailGateway) MarkRead(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.read[id] = true
	return nil
}

func (g *fakeMailGateway) wasRead(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.read[id]
}

type fakeCorpus struct {
	snapshot    CorpusSnapshot
	snapshotErr error
	added       []LearningExample
}

func (c *fakeCorpus) Add(_ context.Context, example LearningExample) error {
	c.added = append(c.added, example)
	return nil
}

func (c *fakeCorpus) Snapshot(_ context.Context) (CorpusSnapshot, error) {
	if c.snapshotErr != nil {
		return CorpusSnapshot{}, c.snapshotErr
	}
	return c.snapshot, nil
}

func (c *fakeCorpus) Close() error { return nil }

type pipelineFixture struct {
	pipeline *Pipeline
	client   *scriptedClient
	repo     *fakeTaskRepo
	review   *fakeReviewQueue
	mail     *fakeMailGateway
}

func newPipelineFixture(client *scriptedClient, opts PipelineOptions) *pipelineFixture {
	logger := zap.NewNop()
	repo := newFakeTaskRepo()
	review := &fakeReviewQueue{}
	mail := newFakeMailGateway()

	pipeline := NewPipeline(
		newTestClassifier(client, nil),
		NewPolicy(nil, logger),
		NewExtractor(nil, false, logger),
		NewTaskSink(repo, logger),
		review,
		&fakeCorpus{},
		nil,
		mail,
		opts,
		logger,
	)
	return &pipelineFixture{pipeline: pipeline, client: client, repo: repo, review: review, mail: mail}
}

func batchEmails(n int) []Email {
	emails := make([]Email, n)
	for i := range emails {
		emails[i] = Email{
			ID:         fmt.Sprintf("msg-%d", i+1),
			Subject:    fmt.Sprintf("Proposal draft %d", i+1),
			From:       "alice@example.com",
			Body:       "Please have a look at the draft when you have time.",
			ReceivedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		}
	}
	return emails
}

const optionalActionJSON = `{"category": "optional_action", "explanation": "You may review the draft if you have time.", "confidence": 0.9}`

func scriptN(n int) []string {
	responses := make([]string, n)
	for i := range responses {
		responses[i] = optionalActionJSON
	}
	return responses
}

func TestRunIsolatesSingleItemFailure(t *testing.T) {
	responses := scriptN(10)
	errs := make([]error, 10)
	errs[3] = errors.New("request timed out")
	fx := newPipelineFixture(&scriptedClient{responses: responses, errs: errs}, PipelineOptions{})

	report, err := fx.pipeline.Run(context.Background(), batchEmails(10))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Status != BatchCompleted {
		t.Errorf("status = %q, want completed", report.Status)
	}
	if report.Processed != 10 {
		t.Errorf("processed = %d, want 10", report.Processed)
	}
	if report.Classified != 9 {
		t.Errorf("classified = %d, want 9", report.Classified)
	}
	if report.Fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", report.Fallbacks)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(report.Errors))
	}
	if report.Errors[0].EmailID != "msg-4" || report.Errors[0].Stage != "classify" {
		t.Errorf("unexpected item error: %+v", report.Errors[0])
	}

	// The failed item fell back to fyi and went to manual review; the
	// other nine were auto-approved into tasks.
	if report.AutoApproved != 9 {
		t.Errorf("auto approved = %d, want 9", report.AutoApproved)
	}
	if report.ManualReview != 1 {
		t.Errorf("manual review = %d, want 1", report.ManualReview)
	}
	if report.TasksCreated != 9 {
		t.Errorf("tasks created = %d, want 9", report.TasksCreated)
	}
	if fx.repo.count() != 9 {
		t.Errorf("repo holds %d tasks, want 9", fx.repo.count())
	}
	if report.ByCategory[CategoryOptionalAction] != 9 || report.ByCategory[CategoryFYI] != 1 {
		t.Errorf("unexpected category counts: %v", report.ByCategory)
	}
}

func TestRunCancellationKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newPipelineFixture(&scriptedClient{responses: scriptN(10)}, PipelineOptions{
		OnProgress: func(p Progress) {
			if p.Done == 3 {
				cancel()
			}
		},
	})

	report, err := fx.pipeline.Run(ctx, batchEmails(10))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Status != BatchCancelled {
		t.Errorf("status = %q, want cancelled", report.Status)
	}
	if report.Processed != 3 {
		t.Errorf("processed = %d, want 3", report.Processed)
	}
	if report.TasksCreated != 3 {
		t.Errorf("tasks created = %d, want 3 (already-stored tasks are kept)", report.TasksCreated)
	}
	if fx.repo.count() != 3 {
		t.Errorf("repo holds %d tasks, want 3", fx.repo.count())
	}
}

func TestRunSkipsDuplicatesWithinBatch(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: scriptN(1)}, PipelineOptions{})

	emails := []Email{
		{ID: "msg-1", Subject: "Budget Review", From: "alice@example.com", Body: "x"},
		{ID: "msg-2", Subject: "  budget review ", From: "ALICE@example.com", Body: "y"},
	}
	report, err := fx.pipeline.Run(context.Background(), emails)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", report.Duplicates)
	}
	if fx.client.calls != 1 {
		t.Errorf("classifier called %d times, want 1", fx.client.calls)
	}
	if report.TasksCreated != 1 {
		t.Errorf("tasks created = %d, want 1", report.TasksCreated)
	}
	if !fx.mail.wasRead("msg-2") {
		t.Error("duplicate message should still be flagged seen")
	}
}

func TestRunRerunMergesInsteadOfDuplicating(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: scriptN(1)}, PipelineOptions{})
	ctx := context.Background()

	email := Email{
		ID:       "msg-1",
		Subject:  "Proposal draft",
		From:     "alice@example.com",
		Body:     "Please have a look.",
		ThreadID: "<thread-1>",
	}

	first, err := fx.pipeline.Run(ctx, []Email{email})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.TasksCreated != 1 {
		t.Fatalf("first run created %d tasks, want 1", first.TasksCreated)
	}

	followUp := email
	followUp.ID = "msg-2"
	followUp.Subject = "Re: Proposal draft"

	second, err := fx.pipeline.Run(ctx, []Email{followUp})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.TasksCreated != 0 {
		t.Errorf("second run created %d tasks, want 0", second.TasksCreated)
	}
	if second.TasksMerged != 1 {
		t.Errorf("second run merged %d tasks, want 1", second.TasksMerged)
	}
	if fx.repo.count() != 1 {
		t.Errorf("repo holds %d tasks, want 1", fx.repo.count())
	}

	tasks, err := fx.repo.List(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if tasks[0].Occurrences != 2 {
		t.Errorf("occurrences = %d, want 2", tasks[0].Occurrences)
	}
}

func TestRunRoutesLowConfidenceToReview(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: []string{
		`{"category": "required_personal_action", "explanation": "You must respond.", "confidence": 0.99}`,
	}}, PipelineOptions{})

	report, err := fx.pipeline.Run(context.Background(), batchEmails(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.ManualReview != 1 {
		t.Errorf("manual review = %d, want 1", report.ManualReview)
	}
	if report.AutoApproved != 0 {
		t.Errorf("auto approved = %d, want 0", report.AutoApproved)
	}
	if fx.review.len() != 1 {
		t.Errorf("review queue holds %d items, want 1", fx.review.len())
	}
	if got := fx.review.items[0].RunID; got != report.RunID {
		t.Errorf("pending decision run id = %q, want batch run id %q", got, report.RunID)
	}
	if fx.repo.count() != 0 {
		t.Errorf("repo holds %d tasks, want 0 before confirmation", fx.repo.count())
	}
}

func TestRunMovesAutoApprovedSpam(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: []string{
		`{"category": "spam_to_delete", "explanation": "Unsolicited bulk offer.", "confidence": 0.9}`,
	}}, PipelineOptions{MoveSpamToFolder: "Junk"})

	report, err := fx.pipeline.Run(context.Background(), batchEmails(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.TasksCreated != 0 {
		t.Errorf("spam must not create tasks, got %d", report.TasksCreated)
	}
	if folder := fx.mail.moves["msg-1"]; folder != "Junk" {
		t.Errorf("msg-1 moved to %q, want Junk", folder)
	}
	if fx.mail.wasRead("msg-1") {
		t.Error("moved message should not also be flagged seen")
	}
	if len(report.Errors) != 0 {
		t.Errorf("unexpected errors: %v", report.Errors)
	}
}

func TestRunMarksProcessedMailRead(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: scriptN(1)}, PipelineOptions{})

	if _, err := fx.pipeline.Run(context.Background(), batchEmails(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !fx.mail.wasRead("msg-1") {
		t.Error("processed message should be flagged seen")
	}
}

func TestRunMailFailureIsItemError(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: []string{
		`{"category": "newsletter", "explanation": "Weekly digest.", "confidence": 0.9}`,
	}}, PipelineOptions{ArchiveNewslettersTo: "Archive"})
	fx.mail.moveErr = errors.New("mailbox unavailable")

	report, err := fx.pipeline.Run(context.Background(), batchEmails(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Status != BatchCompleted {
		t.Errorf("status = %q, want completed", report.Status)
	}
	if len(report.Errors) != 1 || report.Errors[0].Stage != "mail" {
		t.Errorf("expected one mail-stage error, got %v", report.Errors)
	}
}

func TestRunStoreFailureAbortsBatch(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: scriptN(5)}, PipelineOptions{})
	fx.repo.listErr = errors.New("database is locked")

	report, err := fx.pipeline.Run(context.Background(), batchEmails(5))
	if err == nil {
		t.Fatal("expected a fatal error when the store is unavailable")
	}
	if report == nil {
		t.Fatal("partial report must still be returned")
	}
	if report.Status != BatchFailed {
		t.Errorf("status = %q, want failed", report.Status)
	}
	if len(report.Errors) == 0 || report.Errors[0].Stage != "store" {
		t.Errorf("expected a store-stage error, got %v", report.Errors)
	}
}

func TestRunRecordsInvalidInput(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: scriptN(1)}, PipelineOptions{})

	emails := []Email{
		{ID: "msg-1", Subject: "No sender", Body: "x"},
		{ID: "msg-2", Subject: "Fine", From: "alice@example.com", Body: "y"},
	}
	report, err := fx.pipeline.Run(context.Background(), emails)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Processed != 2 {
		t.Errorf("processed = %d, want 2", report.Processed)
	}
	if len(report.Errors) != 1 || report.Errors[0].Stage != "input" {
		t.Errorf("expected one input-stage error, got %v", report.Errors)
	}
	if report.TasksCreated != 1 {
		t.Errorf("tasks created = %d, want 1", report.TasksCreated)
	}
	if !fx.mail.wasRead("msg-1") {
		t.Error("malformed message with an ID should still be flagged seen")
	}
}

func TestRunRejectsConcurrentBatches(t *testing.T) {
	var nested error
	var fx *pipelineFixture
	fx = newPipelineFixture(&scriptedClient{responses: scriptN(2)}, PipelineOptions{
		OnProgress: func(p Progress) {
			if p.Done == 1 && nested == nil {
				_, nested = fx.pipeline.Run(context.Background(), batchEmails(1))
			}
		},
	})

	if _, err := fx.pipeline.Run(context.Background(), batchEmails(2)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(nested, ErrBatchRunning) {
		t.Errorf("nested run error = %v, want ErrBatchRunning", nested)
	}
}

func TestRunDegradesWhenCorpusUnavailable(t *testing.T) {
	logger := zap.NewNop()
	repo := newFakeTaskRepo()
	client := &scriptedClient{responses: scriptN(1)}
	pipeline := NewPipeline(
		newTestClassifier(client, nil),
		NewPolicy(nil, logger),
		NewExtractor(nil, false, logger),
		NewTaskSink(repo, logger),
		&fakeReviewQueue{},
		&fakeCorpus{snapshotErr: errors.New("corpus offline")},
		nil,
		nil,
		PipelineOptions{},
		logger,
	)

	report, err := pipeline.Run(context.Background(), batchEmails(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != BatchCompleted {
		t.Errorf("status = %q, want completed (zero-shot degradation)", report.Status)
	}
	if report.Classified != 1 {
		t.Errorf("classified = %d, want 1", report.Classified)
	}
}

func TestStatusSnapshotAfterRun(t *testing.T) {
	fx := newPipelineFixture(&scriptedClient{responses: scriptN(2)}, PipelineOptions{})

	if status := fx.pipeline.Status(); status.Status != BatchIdle {
		t.Errorf("initial status = %q, want idle", status.Status)
	}

	if _, err := fx.pipeline.Run(context.Background(), batchEmails(2)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	status := fx.pipeline.Status()
	if status.Status != BatchCompleted {
		t.Errorf("status = %q, want completed", status.Status)
	}
	if status.Processed != 2 {
		t.Errorf("processed = %d, want 2", status.Processed)
	}
	if status.EndedAt.IsZero() {
		t.Error("ended timestamp must be set")
	}
}

func TestRunEmitsProgress(t *testing.T) {
	var seen []Progress
	fx := newPipelineFixture(&scriptedClient{responses: scriptN(3)}, PipelineOptions{
		OnProgress: func(p Progress) { seen = append(seen, p) },
	})

	if _, err := fx.pipeline.Run(context.Background(), batchEmails(3)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("progress callbacks = %d, want 3", len(seen))
	}
	for i, p := range seen {
		if p.Done != i+1 || p.Total != 3 {
			t.Errorf("progress[%d] = %d/%d", i, p.Done, p.Total)
		}
	}
	if seen[2].Percent != 100.0 {
		t.Errorf("final percent = %.1f, want 100", seen[2].Percent)
	}
}
