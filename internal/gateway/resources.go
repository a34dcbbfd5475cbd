package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/teamboard/boardsync/internal/schema"
)

// ListProjects returns the session user's projects.
func (c *Client) ListProjects(ctx context.Context) ([]schema.Project, error) {
	var projects []schema.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject returns one project with its member list.
func (c *Client) GetProject(ctx context.Context, projectID string) (*schema.Project, error) {
	var project schema.Project
	path := fmt.Sprintf("/api/projects/%s", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListSprints returns a project's sprints.
func (c *Client) ListSprints(ctx context.Context, projectID string) ([]schema.Sprint, error) {
	var sprints []schema.Sprint
	path := fmt.Sprintf("/api/projects/%s/sprints", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &sprints); err != nil {
		return nil, err
	}
	return sprints, nil
}

// ListColumns returns a sprint's board columns in position order.
func (c *Client) ListColumns(ctx context.Context, sprintID string) ([]schema.BoardColumn, error) {
	var columns []schema.BoardColumn
	path := fmt.Sprintf("/api/sprints/%s/columns", sprintID)
	if err := c.do(ctx, http.MethodGet, path, nil, &columns); err != nil {
		return nil, err
	}
	schema.SortColumns(columns)
	return columns, nil
}

// ListTasks returns a sprint's tasks.
func (c *Client) ListTasks(ctx context.Context, sprintID string) ([]schema.Task, error) {
	var tasks []schema.Task
	path := fmt.Sprintf("/api/sprints/%s/tasks", sprintID)
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// TaskDraft is the client-supplied part of a new task. The backend assigns
// the ID and timestamps; temporary IDs never appear in the request.
type TaskDraft struct {
	SprintID      string          `json:"sprintId"`
	BoardColumnID string          `json:"boardColumnId"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Priority      schema.Priority `json:"priority,omitempty"`
	StoryPoints   int             `json:"storyPoints,omitempty"`
	DueDate       string          `json:"dueDate,omitempty"`
	Labels        []string        `json:"labels,omitempty"`
	AssigneeIDs   []string        `json:"assigneeIds,omitempty"`
}

// CreateTask creates a task and returns the backend's authoritative record.
func (c *Client) CreateTask(ctx context.Context, draft TaskDraft) (*schema.Task, error) {
	var task schema.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", draft, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies a partial update. Only the supplied fields change.
func (c *Client) UpdateTask(ctx context.Context, taskID string, patch map[string]any) error {
	path := fmt.Sprintf("/api/tasks/%s", taskID)
	return c.do(ctx, http.MethodPatch, path, patch, nil)
}

// MoveTask reassigns a task to another column. The request carries only the
// new column reference; position within the column is the backend's concern.
func (c *Client) MoveTask(ctx context.Context, taskID, columnID string) error {
	return c.UpdateTask(ctx, taskID, map[string]any{"boardColumnId": columnID})
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	path := fmt.Sprintf("/api/tasks/%s", taskID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ChatHistory returns a project room's messages, oldest first.
func (c *Client) ChatHistory(ctx context.Context, projectID string) ([]schema.Message, error) {
	var messages []schema.Message
	path := fmt.Sprintf("/api/projects/%s/messages", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Invite sends a project invitation to an email address.
func (c *Client) Invite(ctx context.Context, projectID, email string) error {
	path := fmt.Sprintf("/api/projects/%s/invitations", projectID)
	return c.do(ctx, http.MethodPost, path, map[string]string{"email": email}, nil)
}

// AcceptInvitation redeems an invitation token for the session user.
func (c *Client) AcceptInvitation(ctx context.Context, token string) error {
	path := fmt.Sprintf("/api/invitations/%s/accept", token)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Login opens a session with the backend. The session cookie lands in the
// client's jar; subsequent calls carry it automatically.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/login", body, nil)
}

// Logout tears the server-side session down. Local cache teardown is the
// caller's job.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}
