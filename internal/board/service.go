// Package board turns user intents (create, edit, move, delete tasks) into
// optimistic mutations, and owns the drag-interaction state machine that
// produces move intents.
//
// Every entry point checks edit capability through internal/permission before
// touching the cache or the wire; permission logic has one source of truth.
package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/gateway"
	"github.com/teamboard/boardsync/internal/optimistic"
	"github.com/teamboard/boardsync/internal/permission"
	"github.com/teamboard/boardsync/internal/schema"
)

// ErrNoEditPermission is returned when the acting user lacks board edit
// rights. No mutation is attempted and drag sensors stay detached.
var ErrNoEditPermission = errors.New("board: no edit permission")

// ErrUnknownTask is returned when an operation names a task that is not in
// the cached sprint.
var ErrUnknownTask = errors.New("board: unknown task")

// Gateway is the slice of the remote gateway the board needs.
type Gateway interface {
	CreateTask(ctx context.Context, draft gateway.TaskDraft) (*schema.Task, error)
	UpdateTask(ctx context.Context, taskID string, patch map[string]any) error
	MoveTask(ctx context.Context, taskID, columnID string) error
	DeleteTask(ctx context.Context, taskID string) error
}

// Service executes board mutations for one user in one project.
type Service struct {
	coord   *optimistic.Coordinator
	gw      Gateway
	project *schema.Project
	userID  string
	logger  *log.Logger
}

// NewService creates a board service. If logger is nil, a default logger
// writing to stderr is used.
func NewService(coord *optimistic.Coordinator, gw Gateway, project *schema.Project, userID string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[board] ", log.LstdFlags)
	}
	return &Service{coord: coord, gw: gw, project: project, userID: userID, logger: logger}
}

// canEdit gates every mutation entry point.
func (s *Service) canEdit() error {
	if !permission.CanEditBoard(s.project, s.userID) {
		return ErrNoEditPermission
	}
	return nil
}

// CreateTask creates a task optimistically. When draft.BoardColumnID is
// empty, the first column of the sprint (by position) is used. The cache
// immediately shows the task under a temporary ID; the refetch after server
// confirmation swaps in the real one.
func (s *Service) CreateTask(ctx context.Context, draft gateway.TaskDraft) error {
	if err := s.canEdit(); err != nil {
		return err
	}
	if draft.SprintID == "" {
		return fmt.Errorf("sprint is required")
	}

	if draft.BoardColumnID == "" {
		columns, ok := cache.ReadAs[[]schema.BoardColumn](s.coord.Store(), cache.ColumnsKey(draft.SprintID))
		if !ok || len(columns) == 0 {
			return fmt.Errorf("no columns loaded for sprint %s", draft.SprintID)
		}
		draft.BoardColumnID = columns[0].ID
	}

	tasksKey := cache.TasksKey(draft.SprintID)
	tempID := optimistic.TempID()

	return s.coord.Run(ctx, optimistic.Mutation{
		Name: fmt.Sprintf("create task %q", draft.Title),
		Keys: []cache.Key{tasksKey},
		Patch: func(store *cache.Store) {
			tasks, _ := cache.ReadAs[[]schema.Task](store, tasksKey)
			updated := make([]schema.Task, len(tasks), len(tasks)+1)
			copy(updated, tasks)
			optimisticTask := schema.Task{
				ID:            tempID,
				SprintID:      draft.SprintID,
				BoardColumnID: draft.BoardColumnID,
				Title:         draft.Title,
				Description:   draft.Description,
				Priority:      draft.Priority,
				StoryPoints:   draft.StoryPoints,
				Labels:        draft.Labels,
				AssigneeIDs:   draft.AssigneeIDs,
			}
			optimisticTask.SetDefaults()
			store.Write(tasksKey, append(updated, optimisticTask))
		},
		Dispatch: func(ctx context.Context) error {
			_, err := s.gw.CreateTask(ctx, draft)
			return err
		},
	})
}

// MoveTask reassigns a task to another column, patching both the task list
// and the column membership lists. Moving to the current column is a no-op
// and issues no mutation.
func (s *Service) MoveTask(ctx context.Context, sprintID, taskID, columnID string) error {
	if err := s.canEdit(); err != nil {
		return err
	}

	tasksKey := cache.TasksKey(sprintID)
	columnsKey := cache.ColumnsKey(sprintID)

	tasks, ok := cache.ReadAs[[]schema.Task](s.coord.Store(), tasksKey)
	if !ok {
		return fmt.Errorf("tasks not loaded for sprint %s", sprintID)
	}
	var current *schema.Task
	for i := range tasks {
		if tasks[i].ID == taskID {
			current = &tasks[i]
			break
		}
	}
	if current == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if current.BoardColumnID == columnID {
		return nil
	}
	fromColumn := current.BoardColumnID

	return s.coord.Run(ctx, optimistic.Mutation{
		Name: fmt.Sprintf("move task %s", taskID),
		Keys: []cache.Key{tasksKey, columnsKey},
		Patch: func(store *cache.Store) {
			tasks, _ := cache.ReadAs[[]schema.Task](store, tasksKey)
			updated := make([]schema.Task, len(tasks))
			copy(updated, tasks)
			for i := range updated {
				if updated[i].ID == taskID {
					updated[i].BoardColumnID = columnID
					break
				}
			}
			store.Write(tasksKey, updated)

			columns, ok := cache.ReadAs[[]schema.BoardColumn](store, columnsKey)
			if !ok {
				return
			}
			moved := make([]schema.BoardColumn, len(columns))
			copy(moved, columns)
			for i := range moved {
				switch moved[i].ID {
				case fromColumn:
					moved[i].TaskIDs = removeID(moved[i].TaskIDs, taskID)
				case columnID:
					moved[i].TaskIDs = appendID(moved[i].TaskIDs, taskID)
				}
			}
			store.Write(columnsKey, moved)
		},
		Dispatch: func(ctx context.Context) error {
			return s.gw.MoveTask(ctx, taskID, columnID)
		},
	})
}

// UpdateTask applies a partial edit optimistically. Only fields present in
// patch change; the cache patch mirrors the fields the backend understands.
func (s *Service) UpdateTask(ctx context.Context, sprintID, taskID string, patch map[string]any) error {
	if err := s.canEdit(); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	tasksKey := cache.TasksKey(sprintID)
	return s.coord.Run(ctx, optimistic.Mutation{
		Name: fmt.Sprintf("update task %s", taskID),
		Keys: []cache.Key{tasksKey},
		Patch: func(store *cache.Store) {
			tasks, ok := cache.ReadAs[[]schema.Task](store, tasksKey)
			if !ok {
				return
			}
			updated := make([]schema.Task, len(tasks))
			copy(updated, tasks)
			for i := range updated {
				if updated[i].ID != taskID {
					continue
				}
				applyTaskPatch(&updated[i], patch)
				break
			}
			store.Write(tasksKey, updated)
		},
		Dispatch: func(ctx context.Context) error {
			return s.gw.UpdateTask(ctx, taskID, patch)
		},
	})
}

// DeleteTask removes a task optimistically.
func (s *Service) DeleteTask(ctx context.Context, sprintID, taskID string) error {
	if err := s.canEdit(); err != nil {
		return err
	}

	tasksKey := cache.TasksKey(sprintID)
	columnsKey := cache.ColumnsKey(sprintID)
	return s.coord.Run(ctx, optimistic.Mutation{
		Name: fmt.Sprintf("delete task %s", taskID),
		Keys: []cache.Key{tasksKey, columnsKey},
		Patch: func(store *cache.Store) {
			tasks, ok := cache.ReadAs[[]schema.Task](store, tasksKey)
			if ok {
				updated := make([]schema.Task, 0, len(tasks))
				for _, task := range tasks {
					if task.ID != taskID {
						updated = append(updated, task)
					}
				}
				store.Write(tasksKey, updated)
			}

			columns, ok := cache.ReadAs[[]schema.BoardColumn](store, columnsKey)
			if ok {
				trimmed := make([]schema.BoardColumn, len(columns))
				copy(trimmed, columns)
				for i := range trimmed {
					trimmed[i].TaskIDs = removeID(trimmed[i].TaskIDs, taskID)
				}
				store.Write(columnsKey, trimmed)
			}
		},
		Dispatch: func(ctx context.Context) error {
			return s.gw.DeleteTask(ctx, taskID)
		},
	})
}

// applyTaskPatch mirrors a backend partial update onto a cached task.
func applyTaskPatch(task *schema.Task, patch map[string]any) {
	if v, ok := patch["title"].(string); ok {
		task.Title = v
	}
	if v, ok := patch["description"].(string); ok {
		task.Description = v
	}
	if v, ok := patch["priority"].(string); ok {
		task.Priority = schema.Priority(v)
	}
	if v, ok := patch["boardColumnId"].(string); ok {
		task.BoardColumnID = v
	}
	if v, ok := patch["storyPoints"].(int); ok {
		task.StoryPoints = v
	}
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func appendID(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	out := make([]string, len(ids), len(ids)+1)
	copy(out, ids)
	return append(out, id)
}
