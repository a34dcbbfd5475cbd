package schema

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency bucket of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Comment is a single task comment.
type Comment struct {
	ID        string    `json:"_id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachment is a file reference attached to a task. Upload handling is
// the backend's concern; the client only carries the metadata.
type Attachment struct {
	ID       string `json:"_id"`
	FileName string `json:"fileName"`
	URL      string `json:"url"`
	Size     int64  `json:"size,omitempty"`
}

// Task is a single card on the kanban board.
//
// A task belongs to exactly one column at a time. Moving a task is a
// reassignment of BoardColumnID, never a copy.
type Task struct {
	ID            string       `json:"_id"`
	SprintID      string       `json:"sprintId"`
	BoardColumnID string       `json:"boardColumnId"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	Priority      Priority     `json:"priority"`
	StoryPoints   int          `json:"storyPoints,omitempty"`
	DueDate       *time.Time   `json:"dueDate,omitempty"`
	Labels        []string     `json:"labels,omitempty"`
	AssigneeIDs   []string     `json:"assigneeIds,omitempty"`
	Comments      []Comment    `json:"comments,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Validate checks the task fields the client depends on.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.SprintID == "" {
		return fmt.Errorf("task sprintId is required")
	}
	if t.BoardColumnID == "" {
		return fmt.Errorf("task boardColumnId is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("task title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown task priority %q", t.Priority)
	}
	if t.StoryPoints < 0 {
		return fmt.Errorf("story points cannot be negative (got %d)", t.StoryPoints)
	}
	return nil
}

// SetDefaults fills optional fields so omitted values behave consistently.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}
