package mirror

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/optimistic"
	"github.com/teamboard/boardsync/internal/schema"
)

func openTestMirror(t *testing.T) *Mirror {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "mirror.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return m
}

func TestApplyTasksRoundTrip(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()

	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	tasks := []schema.Task{
		{
			ID: "t1", SprintID: "s1", BoardColumnID: "c1",
			Title: "Fix login bug", Priority: schema.PriorityHigh,
			StoryPoints: 3, DueDate: &due, Labels: []string{"bug"},
			UpdatedAt: time.Now().UTC(),
		},
		{
			ID: "t2", SprintID: "s1", BoardColumnID: "c2",
			Title: "Write docs", Priority: schema.PriorityLow,
			UpdatedAt: time.Now().UTC(),
		},
	}
	if err := m.Apply(ctx, cache.TasksKey("s1"), tasks); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err := m.TasksForSprint(ctx, "s1")
	if err != nil {
		t.Fatalf("TasksForSprint failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	if got[0].ID != "t1" || got[0].Priority != schema.PriorityHigh {
		t.Errorf("unexpected first task: %+v", got[0])
	}
	if got[0].DueDate == nil || !got[0].DueDate.Equal(due) {
		t.Errorf("due date lost: %v", got[0].DueDate)
	}
	if len(got[0].Labels) != 1 || got[0].Labels[0] != "bug" {
		t.Errorf("labels lost: %v", got[0].Labels)
	}
}

func TestApplySkipsTemporaryIDs(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()

	tasks := []schema.Task{
		{ID: optimistic.TempID(), SprintID: "s1", BoardColumnID: "c1", Title: "pending"},
		{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "confirmed"},
	}
	if err := m.Apply(ctx, cache.TasksKey("s1"), tasks); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err := m.TasksForSprint(ctx, "s1")
	if err != nil {
		t.Fatalf("TasksForSprint failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Errorf("expected only confirmed task, got %+v", got)
	}
}

func TestApplyReplacesPerScope(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()

	first := []schema.Task{{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "one"}}
	other := []schema.Task{{ID: "t9", SprintID: "s2", BoardColumnID: "c9", Title: "other sprint"}}
	if err := m.Apply(ctx, cache.TasksKey("s1"), first); err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(ctx, cache.TasksKey("s2"), other); err != nil {
		t.Fatal(err)
	}

	// A new snapshot for s1 replaces s1 rows but leaves s2 alone.
	second := []schema.Task{{ID: "t2", SprintID: "s1", BoardColumnID: "c1", Title: "two"}}
	if err := m.Apply(ctx, cache.TasksKey("s1"), second); err != nil {
		t.Fatal(err)
	}

	s1, _ := m.TasksForSprint(ctx, "s1")
	if len(s1) != 1 || s1[0].ID != "t2" {
		t.Errorf("s1 not replaced: %+v", s1)
	}
	s2, _ := m.TasksForSprint(ctx, "s2")
	if len(s2) != 1 || s2[0].ID != "t9" {
		t.Errorf("s2 disturbed: %+v", s2)
	}
}

func TestApplyColumnsAndMessages(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()

	columns := []schema.BoardColumn{
		{ID: "c2", SprintID: "s1", Title: "Done", Position: 1, TaskIDs: []string{"t2"}},
		{ID: "c1", SprintID: "s1", Title: "To Do", Position: 0, TaskIDs: []string{"t1", optimistic.TempID()}},
	}
	if err := m.Apply(ctx, cache.ColumnsKey("s1"), columns); err != nil {
		t.Fatal(err)
	}
	gotCols, err := m.ColumnsForSprint(ctx, "s1")
	if err != nil {
		t.Fatalf("ColumnsForSprint failed: %v", err)
	}
	if len(gotCols) != 2 || gotCols[0].ID != "c1" {
		t.Errorf("columns not in position order: %+v", gotCols)
	}
	if len(gotCols[0].TaskIDs) != 1 || gotCols[0].TaskIDs[0] != "t1" {
		t.Errorf("temporary task id leaked into mirror: %v", gotCols[0].TaskIDs)
	}

	messages := []schema.Message{
		{ID: "m1", ProjectID: "p1", SenderID: "u1", SenderName: "Alice",
			Content: "hello", CreatedAt: time.Now().UTC()},
		{ID: "m2", ProjectID: "p1", SenderID: "u2", SenderName: "Bob",
			Content: schema.DeletedMessagePlaceholder, IsDeleted: true,
			CreatedAt: time.Now().UTC().Add(time.Second)},
	}
	if err := m.Apply(ctx, cache.MessagesKey("p1"), messages); err != nil {
		t.Fatal(err)
	}
	gotMsgs, err := m.MessagesForProject(ctx, "p1")
	if err != nil {
		t.Fatalf("MessagesForProject failed: %v", err)
	}
	if len(gotMsgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(gotMsgs))
	}
	if !gotMsgs[1].IsDeleted || gotMsgs[1].Content != schema.DeletedMessagePlaceholder {
		t.Errorf("deletion flag lost: %+v", gotMsgs[1])
	}
}

func TestFollowMirrorsStoreWrites(t *testing.T) {
	m := openTestMirror(t)
	store := cache.New(nil)
	t.Cleanup(store.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Follow(ctx, store)
	}()

	store.Write(cache.TasksKey("s1"), []schema.Task{
		{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "followed"},
	})

	deadline := time.After(5 * time.Second)
	for {
		got, err := m.TasksForSprint(context.Background(), "s1")
		if err != nil {
			t.Fatalf("TasksForSprint failed: %v", err)
		}
		if len(got) == 1 && got[0].ID == "t1" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("mirror never observed the write")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop on cancel")
	}
}

func TestCounts(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()

	if err := m.Apply(ctx, cache.TasksKey("s1"), []schema.Task{
		{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "x"},
	}); err != nil {
		t.Fatal(err)
	}

	counts, err := m.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts["tasks"] != 1 {
		t.Errorf("expected 1 task, got %d", counts["tasks"])
	}
	if counts["messages"] != 0 {
		t.Errorf("expected 0 messages, got %d", counts["messages"])
	}
}
