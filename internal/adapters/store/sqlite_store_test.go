package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nfraser/mail-triage/internal/core"
	"github.com/nfraser/mail-triage/internal/testutil"
)

func timePtr(t time.Time) *time.Time { return &t }

func sampleTask(id string) *core.Task {
	due := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	return &core.Task{
		ID:          id,
		Title:       "Review the budget",
		Action:      "Sign off on the Q2 budget before Friday.",
		Category:    core.CategoryRequiredPersonalAction,
		Priority:    core.PriorityHigh,
		DueDate:     &due,
		Status:      core.TaskStatusPending,
		CreatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Subject:     "Quarterly budget review",
		Sender:      "alice@example.com",
		EmailID:     "msg-" + id,
		ThreadID:    "<thread-" + id + ">",
		RunID:       "run-1",
		Occurrences: 1,
	}
}

func TestSQLiteTaskRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	task := sampleTask("t1")
	task.MergedEmailIDs = []string{"msg-x", "msg-y"}
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != task.Title || got.Action != task.Action {
		t.Errorf("round trip lost text fields: %+v", got)
	}
	if got.Category != core.CategoryRequiredPersonalAction {
		t.Errorf("category = %q", got.Category)
	}
	if got.Priority != core.PriorityHigh {
		t.Errorf("priority = %q", got.Priority)
	}
	if got.DueDate == nil || !got.DueDate.Equal(*task.DueDate) {
		t.Errorf("due date = %v, want %v", got.DueDate, task.DueDate)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, task.CreatedAt)
	}
	if got.CompletedAt != nil {
		t.Errorf("completed at should be nil, got %v", got.CompletedAt)
	}
	if len(got.MergedEmailIDs) != 2 || got.MergedEmailIDs[0] != "msg-x" {
		t.Errorf("merged email ids = %v", got.MergedEmailIDs)
	}
	if got.Occurrences != 1 {
		t.Errorf("occurrences = %d", got.Occurrences)
	}
}

func TestSQLiteGetMissing(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, core.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestSQLiteUpdate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	task := sampleTask("t1")
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	task.Occurrences = 3
	task.MergedEmailIDs = []string{"msg-2", "msg-3"}
	if err := s.Update(ctx, task); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Occurrences != 3 || len(got.MergedEmailIDs) != 2 {
		t.Errorf("update lost merge state: %+v", got)
	}

	missing := sampleTask("ghost")
	if err := s.Update(ctx, missing); !errors.Is(err, core.ErrTaskNotFound) {
		t.Errorf("updating missing task: err = %v, want ErrTaskNotFound", err)
	}
}

func TestSQLiteUpdateStatusStampsCompletion(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.UpdateStatus(ctx, "t1", core.TaskStatusInProgress); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := s.Get(ctx, "t1")
	if got.Status != core.TaskStatusInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("in_progress must not stamp completed_at")
	}

	if err := s.UpdateStatus(ctx, "t1", core.TaskStatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ = s.Get(ctx, "t1")
	if got.Status != core.TaskStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed status must stamp completed_at")
	}

	if err := s.UpdateStatus(ctx, "ghost", core.TaskStatusCompleted); !errors.Is(err, core.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestSQLiteDelete(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "t1"); !errors.Is(err, core.ErrTaskNotFound) {
		t.Errorf("deleted task still readable: %v", err)
	}
	if err := s.Delete(ctx, "t1"); !errors.Is(err, core.ErrTaskNotFound) {
		t.Errorf("double delete err = %v, want ErrTaskNotFound", err)
	}
}

func TestSQLiteListFilters(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	a := sampleTask("a")
	a.CreatedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	b := sampleTask("b")
	b.Category = core.CategoryTeamAction
	b.Status = core.TaskStatusCompleted
	b.RunID = "run-2"
	b.CreatedAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b.DueDate = timePtr(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	c := sampleTask("c")
	c.DueDate = nil
	c.CreatedAt = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	for _, task := range []*core.Task{a, b, c} {
		if err := s.Create(ctx, task); err != nil {
			t.Fatalf("Create(%s): %v", task.ID, err)
		}
	}

	all, err := s.List(ctx, core.TaskFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d tasks, want 3", len(all))
	}
	// Creation order is the list order.
	if all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Errorf("order = %s,%s,%s", all[0].ID, all[1].ID, all[2].ID)
	}

	category := core.CategoryTeamAction
	byCategory, err := s.List(ctx, core.TaskFilter{Category: &category})
	if err != nil {
		t.Fatalf("List by category: %v", err)
	}
	if len(byCategory) != 1 || byCategory[0].ID != "b" {
		t.Errorf("category filter returned %d tasks", len(byCategory))
	}

	status := core.TaskStatusPending
	pending, err := s.List(ctx, core.TaskFilter{Status: &status})
	if err != nil {
		t.Fatalf("List by status: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("status filter returned %d tasks, want 2", len(pending))
	}

	runID := "run-2"
	byRun, err := s.List(ctx, core.TaskFilter{RunID: &runID})
	if err != nil {
		t.Fatalf("List by run: %v", err)
	}
	if len(byRun) != 1 || byRun[0].ID != "b" {
		t.Errorf("run filter returned %d tasks", len(byRun))
	}

	dueBefore := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	dueSoon, err := s.List(ctx, core.TaskFilter{DueBefore: &dueBefore})
	if err != nil {
		t.Fatalf("List due before: %v", err)
	}
	if len(dueSoon) != 1 || dueSoon[0].ID != "a" {
		t.Errorf("due-before filter returned %d tasks", len(dueSoon))
	}
}

func TestSQLiteCorpus(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	empty, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if empty.Version != 0 || len(empty.Examples) != 0 {
		t.Errorf("empty corpus: version=%d examples=%d", empty.Version, len(empty.Examples))
	}

	first := core.LearningExample{
		Subject:     "Weekly digest",
		Sender:      "news@example.com",
		BodySnippet: "This week's updates.",
		Category:    core.CategoryNewsletter,
		ConfirmedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	if err := s.Add(ctx, first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Examples) != 1 {
		t.Fatalf("examples = %d, want 1", len(snap.Examples))
	}
	got := snap.Examples[0]
	if got.Subject != first.Subject || got.Category != first.Category {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.ConfirmedAt.Equal(first.ConfirmedAt) {
		t.Errorf("confirmed at = %v, want %v", got.ConfirmedAt, first.ConfirmedAt)
	}

	// Appending bumps the version so new snapshots are distinguishable.
	if err := s.Add(ctx, first); err != nil {
		t.Fatalf("Add: %v", err)
	}
	next, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if next.Version <= snap.Version {
		t.Errorf("version did not advance: %d then %d", snap.Version, next.Version)
	}
}
