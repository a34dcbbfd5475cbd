package schema

import (
	"fmt"
	"time"
)

// SprintStatus is the lifecycle state of a sprint.
type SprintStatus string

const (
	SprintPlanned   SprintStatus = "planned"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
)

// Sprint is a time-boxed iteration within a project.
//
// A project should carry at most one sprint in planned status at a time;
// the backend owns that rule, the client only surfaces it.
type Sprint struct {
	ID        string       `json:"_id"`
	ProjectID string       `json:"projectId"`
	Name      string       `json:"name"`
	Goal      string       `json:"goal,omitempty"`
	Capacity  int          `json:"capacity,omitempty"` // max story points
	StartDate *time.Time   `json:"startDate,omitempty"`
	EndDate   *time.Time   `json:"endDate,omitempty"`
	Status    SprintStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Validate checks required fields and date ordering.
func (s *Sprint) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("sprint id is required")
	}
	if s.ProjectID == "" {
		return fmt.Errorf("sprint projectId is required")
	}
	if s.Name == "" {
		return fmt.Errorf("sprint name is required")
	}
	switch s.Status {
	case SprintPlanned, SprintActive, SprintCompleted:
	default:
		return fmt.Errorf("unknown sprint status %q", s.Status)
	}
	if s.Capacity < 0 {
		return fmt.Errorf("sprint capacity cannot be negative (got %d)", s.Capacity)
	}
	if s.StartDate != nil && s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return fmt.Errorf("sprint end date %s is before start date %s",
			s.EndDate.Format(time.DateOnly), s.StartDate.Format(time.DateOnly))
	}
	return nil
}

// BoardColumn is one ordered column of a sprint's kanban board.
// Position values define a total order among the columns of a sprint.
type BoardColumn struct {
	ID        string    `json:"_id"`
	SprintID  string    `json:"sprintId"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	TaskIDs   []string  `json:"taskIds,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks required column fields.
func (c *BoardColumn) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("column id is required")
	}
	if c.SprintID == "" {
		return fmt.Errorf("column sprintId is required")
	}
	if c.Title == "" {
		return fmt.Errorf("column title is required")
	}
	if c.Position < 0 {
		return fmt.Errorf("column position cannot be negative (got %d)", c.Position)
	}
	return nil
}

// SortColumns orders columns by position in place. Ties break on ID so the
// order is stable even if the backend ever hands back duplicate positions.
func SortColumns(cols []BoardColumn) {
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0; j-- {
			a, b := &cols[j-1], &cols[j]
			if a.Position < b.Position || (a.Position == b.Position && a.ID <= b.ID) {
				break
			}
			cols[j-1], cols[j] = cols[j], cols[j-1]
		}
	}
}
