package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/schema"
)

// DragState is the drag gesture's state.
type DragState int

const (
	// DragIdle means no gesture is in progress.
	DragIdle DragState = iota

	// Dragging means a task has been picked up and not yet dropped.
	Dragging
)

// Drag tracks one in-progress drag gesture over the droppable targets of a
// sprint board. Targets are either columns (direct containers) or tasks
// (which resolve to their parent column).
//
// A Drag can only be constructed through Service.NewDrag, which refuses to
// attach sensors for users without edit rights; without a Drag value the
// Dragging state is unreachable for them.
type Drag struct {
	svc      *Service
	sprintID string

	mu      sync.Mutex
	state   DragState
	taskID  string
	targets map[string]string // droppable ID -> column ID
}

// NewDrag attaches drag sensors to a sprint board. Returns
// ErrNoEditPermission when the acting user may not edit the board.
func (s *Service) NewDrag(sprintID string) (*Drag, error) {
	if err := s.canEdit(); err != nil {
		return nil, err
	}
	return &Drag{
		svc:      s,
		sprintID: sprintID,
		targets:  make(map[string]string),
	}, nil
}

// Refresh rebuilds the droppable registry from the cached board state.
// Call after the column or task lists change.
func (d *Drag) Refresh() {
	store := d.svc.coord.Store()
	columns, _ := cache.ReadAs[[]schema.BoardColumn](store, cache.ColumnsKey(d.sprintID))
	tasks, _ := cache.ReadAs[[]schema.Task](store, cache.TasksKey(d.sprintID))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = make(map[string]string, len(columns)+len(tasks))
	for _, column := range columns {
		d.targets[column.ID] = column.ID
	}
	for _, task := range tasks {
		d.targets[task.ID] = task.BoardColumnID
	}
}

// State returns the current gesture state.
func (d *Drag) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// PickUp enters Dragging for taskID. Picking up while already dragging is
// rejected; picking up a task that is not a registered target is rejected.
func (d *Drag) PickUp(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != DragIdle {
		return fmt.Errorf("already dragging %s", d.taskID)
	}
	if _, ok := d.targets[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	d.state = Dragging
	d.taskID = taskID
	return nil
}

// Cancel abandons the gesture with no mutation.
func (d *Drag) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = DragIdle
	d.taskID = ""
}

// Drop ends the gesture over targetID. The target resolves to a column
// either directly or via another task's parent column. A drop outside any
// registered target is a cancel. A drop on the task's current column issues
// no mutation. Only a resolved, different column triggers a move.
//
// The returned bool reports whether a mutation was issued.
func (d *Drag) Drop(ctx context.Context, targetID string) (bool, error) {
	d.mu.Lock()
	if d.state != Dragging {
		d.mu.Unlock()
		return false, fmt.Errorf("no drag in progress")
	}
	taskID := d.taskID
	currentColumn := d.targets[taskID]
	destColumn, validTarget := d.targets[targetID]
	d.state = DragIdle
	d.taskID = ""
	d.mu.Unlock()

	if !validTarget {
		// Dropped outside the board.
		return false, nil
	}
	if destColumn == currentColumn {
		return false, nil
	}

	if err := d.svc.MoveTask(ctx, d.sprintID, taskID, destColumn); err != nil {
		return false, err
	}
	return true, nil
}
