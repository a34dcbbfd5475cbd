package board

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/gateway"
	"github.com/teamboard/boardsync/internal/optimistic"
	"github.com/teamboard/boardsync/internal/schema"
)

// fakeGateway records mutation calls and answers with scripted results.
type fakeGateway struct {
	mu        sync.Mutex
	moveCalls []string // "taskID->columnID"
	creates   []gateway.TaskDraft
	deletes   []string
	updates   []map[string]any
	failWith  error
}

func (f *fakeGateway) CreateTask(ctx context.Context, draft gateway.TaskDraft) (*schema.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, draft)
	if f.failWith != nil {
		return nil, f.failWith
	}
	task := schema.Task{
		ID: "t-created", SprintID: draft.SprintID, BoardColumnID: draft.BoardColumnID,
		Title: draft.Title, Priority: schema.PriorityMedium,
	}
	return &task, nil
}

func (f *fakeGateway) UpdateTask(ctx context.Context, taskID string, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, patch)
	return f.failWith
}

func (f *fakeGateway) MoveTask(ctx context.Context, taskID, columnID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveCalls = append(f.moveCalls, taskID+"->"+columnID)
	return f.failWith
}

func (f *fakeGateway) DeleteTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, taskID)
	return f.failWith
}

func (f *fakeGateway) moveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moveCalls)
}

// recordingNotifier captures mutation outcomes.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func memberProject() *schema.Project {
	return &schema.Project{
		ID:   "p1",
		Name: "Apollo",
		Members: []schema.Member{
			{UserID: "owner", Role: schema.RoleOwner, Status: schema.MemberActive},
			{UserID: "editor", Role: schema.RoleMember, Status: schema.MemberActive},
			{UserID: "viewer", Role: schema.RoleViewer, Status: schema.MemberActive},
		},
	}
}

type fixture struct {
	svc      *Service
	store    *cache.Store
	gw       *fakeGateway
	notifier *recordingNotifier
}

func newFixture(t *testing.T, userID string) *fixture {
	t.Helper()
	store := cache.New(log.New(os.Stderr, "[test] ", 0))
	t.Cleanup(store.Close)

	notifier := &recordingNotifier{}
	coord := optimistic.New(store, notifier, log.New(os.Stderr, "[test] ", 0))
	gw := &fakeGateway{}
	svc := NewService(coord, gw, memberProject(), userID, log.New(os.Stderr, "[test] ", 0))

	store.Write(cache.ColumnsKey("s1"), []schema.BoardColumn{
		{ID: "c1", SprintID: "s1", Title: "To Do", Position: 0, TaskIDs: []string{"t1"}},
		{ID: "c2", SprintID: "s1", Title: "Done", Position: 1},
	})
	store.Write(cache.TasksKey("s1"), []schema.Task{
		{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "Fix login bug", Priority: schema.PriorityHigh},
	})

	return &fixture{svc: svc, store: store, gw: gw, notifier: notifier}
}

// TestCreateTaskOptimisticLifecycle covers the create flow end to end: the
// task list immediately gains an entry with a temporary ID, and after the
// server confirms, the refetched list holds exactly the authoritative task.
func TestCreateTaskOptimisticLifecycle(t *testing.T) {
	fx := newFixture(t, "editor")

	// Authoritative post-create state.
	fx.store.Register(cache.KindTasks, func(ctx context.Context, k cache.Key) (any, error) {
		return []schema.Task{
			{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "Fix login bug"},
			{ID: "t-created", SprintID: "s1", BoardColumnID: "c1", Title: "Add logout button"},
		}, nil
	})

	sawTemp := false
	ch, cancelSub := fx.store.Subscribe()
	defer cancelSub()

	err := fx.svc.CreateTask(context.Background(), gateway.TaskDraft{
		SprintID: "s1",
		Title:    "Add logout button",
		// BoardColumnID left empty: defaults to the first column.
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// Drain events until the refetch lands, checking for the temp entry.
	deadline := time.After(5 * time.Second)
drain:
	for {
		tasks, _ := cache.ReadAs[[]schema.Task](fx.store, cache.TasksKey("s1"))
		for _, task := range tasks {
			if optimistic.IsTempID(task.ID) && task.BoardColumnID == "c1" {
				sawTemp = true
			}
		}
		if _, state := fx.store.Read(cache.TasksKey("s1")); state == cache.StateFresh && len(tasks) == 2 && tasks[1].ID == "t-created" {
			break drain
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatal("timed out waiting for reconciliation")
		}
	}

	if !sawTemp {
		// The synchronous patch ran before CreateTask returned, so the
		// temp entry must have been visible at least once.
		t.Error("optimistic temporary task never appeared in cache")
	}

	tasks, _ := cache.ReadAs[[]schema.Task](fx.store, cache.TasksKey("s1"))
	for _, task := range tasks {
		if optimistic.IsTempID(task.ID) {
			t.Errorf("temporary ID %s survived reconciliation", task.ID)
		}
	}

	// The draft sent to the server carried the defaulted column and no
	// temporary ID field at all.
	fx.gw.mu.Lock()
	defer fx.gw.mu.Unlock()
	if len(fx.gw.creates) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(fx.gw.creates))
	}
	if fx.gw.creates[0].BoardColumnID != "c1" {
		t.Errorf("expected defaulted column c1, got %s", fx.gw.creates[0].BoardColumnID)
	}
}

// TestMoveTaskRollbackOnServerFailure is the drop-then-500 path: one
// mutation call with only the column reference, full rollback, one error
// notification.
func TestMoveTaskRollbackOnServerFailure(t *testing.T) {
	fx := newFixture(t, "editor")
	fx.gw.failWith = fmt.Errorf("500 internal server error")

	err := fx.svc.MoveTask(context.Background(), "s1", "t1", "c2")
	if err == nil {
		t.Fatal("expected move to fail")
	}

	if got := fx.gw.moveCount(); got != 1 {
		t.Errorf("expected exactly 1 move call, got %d", got)
	}
	fx.gw.mu.Lock()
	if fx.gw.moveCalls[0] != "t1->c2" {
		t.Errorf("unexpected move call %s", fx.gw.moveCalls[0])
	}
	fx.gw.mu.Unlock()

	tasks, _ := cache.ReadAs[[]schema.Task](fx.store, cache.TasksKey("s1"))
	if tasks[0].BoardColumnID != "c1" {
		t.Errorf("task not rolled back to c1, in %s", tasks[0].BoardColumnID)
	}

	columns, _ := cache.ReadAs[[]schema.BoardColumn](fx.store, cache.ColumnsKey("s1"))
	if len(columns[0].TaskIDs) != 1 || columns[0].TaskIDs[0] != "t1" {
		t.Errorf("column membership not rolled back: %+v", columns)
	}

	if fx.notifier.errorCount() != 1 {
		t.Errorf("expected 1 error notification, got %d", fx.notifier.errorCount())
	}
}

func TestMoveTaskSameColumnIsNoOp(t *testing.T) {
	fx := newFixture(t, "editor")

	if err := fx.svc.MoveTask(context.Background(), "s1", "t1", "c1"); err != nil {
		t.Fatalf("same-column move errored: %v", err)
	}
	if got := fx.gw.moveCount(); got != 0 {
		t.Errorf("same-column move issued %d mutation calls", got)
	}
}

func TestViewerCannotMutate(t *testing.T) {
	fx := newFixture(t, "viewer")

	err := fx.svc.MoveTask(context.Background(), "s1", "t1", "c2")
	if err != ErrNoEditPermission {
		t.Errorf("expected ErrNoEditPermission, got %v", err)
	}
	err = fx.svc.CreateTask(context.Background(), gateway.TaskDraft{SprintID: "s1", Title: "x"})
	if err != ErrNoEditPermission {
		t.Errorf("expected ErrNoEditPermission, got %v", err)
	}
	if got := fx.gw.moveCount(); got != 0 {
		t.Errorf("viewer caused %d mutation calls", got)
	}
}

func TestViewerGetsNoDragSensors(t *testing.T) {
	fx := newFixture(t, "viewer")

	if _, err := fx.svc.NewDrag("s1"); err != ErrNoEditPermission {
		t.Errorf("expected ErrNoEditPermission, got %v", err)
	}
}

func TestDragDropOntoOtherColumn(t *testing.T) {
	fx := newFixture(t, "editor")
	drag, err := fx.svc.NewDrag("s1")
	if err != nil {
		t.Fatalf("NewDrag failed: %v", err)
	}
	drag.Refresh()

	if err := drag.PickUp("t1"); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	if drag.State() != Dragging {
		t.Fatal("expected Dragging state after pick up")
	}

	moved, err := drag.Drop(context.Background(), "c2")
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if !moved {
		t.Error("expected a mutation for a cross-column drop")
	}
	if drag.State() != DragIdle {
		t.Error("expected Idle state after drop")
	}
	if got := fx.gw.moveCount(); got != 1 {
		t.Errorf("expected 1 move call, got %d", got)
	}
}

// TestDragDropOntoOwnColumn: dropping a task onto its current column issues
// zero mutation calls.
func TestDragDropOntoOwnColumn(t *testing.T) {
	fx := newFixture(t, "editor")
	drag, _ := fx.svc.NewDrag("s1")
	drag.Refresh()

	if err := drag.PickUp("t1"); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	moved, err := drag.Drop(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if moved {
		t.Error("same-column drop must not mutate")
	}
	if got := fx.gw.moveCount(); got != 0 {
		t.Errorf("expected 0 move calls, got %d", got)
	}
}

func TestDragDropOntoTaskResolvesParentColumn(t *testing.T) {
	fx := newFixture(t, "editor")
	// Add a task sitting in c2 to act as the drop target.
	fx.store.Write(cache.TasksKey("s1"), []schema.Task{
		{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "Fix login bug"},
		{ID: "t2", SprintID: "s1", BoardColumnID: "c2", Title: "Ship it"},
	})

	drag, _ := fx.svc.NewDrag("s1")
	drag.Refresh()

	if err := drag.PickUp("t1"); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	moved, err := drag.Drop(context.Background(), "t2")
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if !moved {
		t.Error("drop onto a task in another column should move")
	}
	fx.gw.mu.Lock()
	defer fx.gw.mu.Unlock()
	if fx.gw.moveCalls[0] != "t1->c2" {
		t.Errorf("expected move to t2's parent column, got %s", fx.gw.moveCalls[0])
	}
}

func TestDragDropOutsideBoardCancels(t *testing.T) {
	fx := newFixture(t, "editor")
	drag, _ := fx.svc.NewDrag("s1")
	drag.Refresh()

	if err := drag.PickUp("t1"); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	moved, err := drag.Drop(context.Background(), "somewhere-else")
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if moved {
		t.Error("drop outside targets must not mutate")
	}
	if drag.State() != DragIdle {
		t.Error("expected Idle state after cancel-drop")
	}
	if got := fx.gw.moveCount(); got != 0 {
		t.Errorf("expected 0 move calls, got %d", got)
	}
}

func TestDragPickUpGuards(t *testing.T) {
	fx := newFixture(t, "editor")
	drag, _ := fx.svc.NewDrag("s1")
	drag.Refresh()

	if err := drag.PickUp("no-such-task"); err == nil {
		t.Error("expected error picking up unknown task")
	}

	if err := drag.PickUp("t1"); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	if err := drag.PickUp("t1"); err == nil {
		t.Error("expected error picking up while dragging")
	}

	drag.Cancel()
	if drag.State() != DragIdle {
		t.Error("expected Idle after Cancel")
	}
	if _, err := drag.Drop(context.Background(), "c2"); err == nil {
		t.Error("expected error dropping with no drag in progress")
	}
}

func TestDeleteTaskRemovesEverywhere(t *testing.T) {
	fx := newFixture(t, "owner")

	if err := fx.svc.DeleteTask(context.Background(), "s1", "t1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	tasks, _ := cache.ReadAs[[]schema.Task](fx.store, cache.TasksKey("s1"))
	if len(tasks) != 0 {
		t.Errorf("task still in list: %+v", tasks)
	}
	columns, _ := cache.ReadAs[[]schema.BoardColumn](fx.store, cache.ColumnsKey("s1"))
	if len(columns[0].TaskIDs) != 0 {
		t.Errorf("task still in column membership: %+v", columns[0].TaskIDs)
	}
}
