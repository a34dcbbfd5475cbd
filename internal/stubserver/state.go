package stubserver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamboard/boardsync/internal/schema"
)

// state is the in-memory dataset behind the stub API. All access goes
// through the mutex; handlers copy values out before releasing it.
type state struct {
	mu          sync.RWMutex
	projects    map[string]*schema.Project
	sprints     map[string][]schema.Sprint      // projectID -> sprints
	columns     map[string][]schema.BoardColumn // sprintID -> columns
	tasks       map[string][]schema.Task        // sprintID -> tasks
	messages    map[string][]schema.Message     // projectID -> messages
	invitations map[string]invitation           // token -> invitation
}

type invitation struct {
	ProjectID string
	Email     string
}

func newState() *state {
	return &state{
		projects:    make(map[string]*schema.Project),
		sprints:     make(map[string][]schema.Sprint),
		columns:     make(map[string][]schema.BoardColumn),
		tasks:       make(map[string][]schema.Task),
		messages:    make(map[string][]schema.Message),
		invitations: make(map[string]invitation),
	}
}

func newTaskID() string { return uuid.NewString() }

// userIDFor derives a stable user ID from an email so separate sessions for
// the same address share an identity.
func userIDFor(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(email))).String()
}

// displayNameFor is the part of the address before the @.
func displayNameFor(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

func (s *state) projectsForUser(userID string) []schema.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schema.Project
	for _, p := range s.projects {
		for _, m := range p.Members {
			if m.UserID == userID && m.Status != schema.MemberLeft {
				out = append(out, *p)
				break
			}
		}
	}
	return out
}

func (s *state) project(projectID string) (*schema.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, false
	}
	copied := *p
	copied.Members = append([]schema.Member(nil), p.Members...)
	return &copied, true
}

func (s *state) createProject(ownerID, ownerEmail, name, description string) schema.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := &schema.Project{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Members: []schema.Member{{
			UserID:   ownerID,
			Email:    ownerEmail,
			Role:     schema.RoleOwner,
			Status:   schema.MemberActive,
			JoinedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.projects[p.ID] = p
	return *p
}

func (s *state) memberRole(projectID, userID string) (schema.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return "", false
	}
	for _, m := range p.Members {
		if m.UserID == userID && m.Status == schema.MemberActive {
			return m.Role, true
		}
	}
	return "", false
}

func (s *state) createSprint(projectID, name string) schema.Sprint {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sprint := schema.Sprint{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Status:    schema.SprintPlanned,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sprints[projectID] = append(s.sprints[projectID], sprint)

	// Every sprint starts with the default three columns.
	for i, title := range []string{"To Do", "In Progress", "Done"} {
		s.columns[sprint.ID] = append(s.columns[sprint.ID], schema.BoardColumn{
			ID:       uuid.NewString(),
			SprintID: sprint.ID,
			Title:    title,
			Position: i,
		})
	}
	return sprint
}

func (s *state) sprintsForProject(projectID string) []schema.Sprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.Sprint(nil), s.sprints[projectID]...)
}

func (s *state) columnsForSprint(sprintID string) []schema.BoardColumn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.BoardColumn, len(s.columns[sprintID]))
	for i, col := range s.columns[sprintID] {
		out[i] = col
		out[i].TaskIDs = append([]string(nil), col.TaskIDs...)
	}
	return out
}

func (s *state) tasksForSprint(sprintID string) []schema.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.Task(nil), s.tasks[sprintID]...)
}

// projectForSprint resolves which project a sprint belongs to.
func (s *state) projectForSprint(sprintID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for projectID, sprints := range s.sprints {
		for _, sprint := range sprints {
			if sprint.ID == sprintID {
				return projectID, true
			}
		}
	}
	return "", false
}

func (s *state) createTask(task schema.Task) (schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	columns := s.columns[task.SprintID]
	if len(columns) == 0 {
		return schema.Task{}, fmt.Errorf("sprint %s has no board", task.SprintID)
	}
	if task.BoardColumnID == "" {
		task.BoardColumnID = columns[0].ID
	}
	found := false
	for i := range columns {
		if columns[i].ID == task.BoardColumnID {
			columns[i].TaskIDs = append(columns[i].TaskIDs, task.ID)
			found = true
			break
		}
	}
	if !found {
		return schema.Task{}, fmt.Errorf("column %s not on sprint %s board", task.BoardColumnID, task.SprintID)
	}

	s.tasks[task.SprintID] = append(s.tasks[task.SprintID], task)
	return task, nil
}

// findTask locates a task by ID across sprints.
func (s *state) findTask(taskID string) (schema.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tasks := range s.tasks {
		for _, task := range tasks {
			if task.ID == taskID {
				return task, true
			}
		}
	}
	return schema.Task{}, false
}

// patchTask applies a partial update, moving column membership when
// boardColumnId changes.
func (s *state) patchTask(taskID string, patch map[string]any) (schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sprintID, tasks := range s.tasks {
		for i := range tasks {
			if tasks[i].ID != taskID {
				continue
			}
			task := &s.tasks[sprintID][i]
			if v, ok := patch["title"].(string); ok {
				task.Title = v
			}
			if v, ok := patch["description"].(string); ok {
				task.Description = v
			}
			if v, ok := patch["priority"].(string); ok {
				task.Priority = schema.Priority(v)
			}
			if v, ok := patch["storyPoints"].(float64); ok {
				task.StoryPoints = int(v)
			}
			if v, ok := patch["boardColumnId"].(string); ok && v != task.BoardColumnID {
				if err := s.moveTaskLocked(sprintID, task, v); err != nil {
					return schema.Task{}, err
				}
			}
			task.UpdatedAt = time.Now().UTC()
			return *task, nil
		}
	}
	return schema.Task{}, fmt.Errorf("task %s not found", taskID)
}

func (s *state) moveTaskLocked(sprintID string, task *schema.Task, columnID string) error {
	columns := s.columns[sprintID]
	target := -1
	for i := range columns {
		if columns[i].ID == columnID {
			target = i
			break
		}
	}
	if target < 0 {
		return fmt.Errorf("column %s not on sprint %s board", columnID, sprintID)
	}
	for i := range columns {
		columns[i].TaskIDs = removeString(columns[i].TaskIDs, task.ID)
	}
	columns[target].TaskIDs = append(columns[target].TaskIDs, task.ID)
	task.BoardColumnID = columnID
	return nil
}

func (s *state) deleteTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sprintID, tasks := range s.tasks {
		for i := range tasks {
			if tasks[i].ID != taskID {
				continue
			}
			s.tasks[sprintID] = append(tasks[:i:i], tasks[i+1:]...)
			for j := range s.columns[sprintID] {
				s.columns[sprintID][j].TaskIDs = removeString(s.columns[sprintID][j].TaskIDs, taskID)
			}
			return true
		}
	}
	return false
}

func (s *state) messagesForProject(projectID string) []schema.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.Message(nil), s.messages[projectID]...)
}

func (s *state) appendMessage(projectID, senderID, senderName, content string) schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := schema.Message{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	s.messages[projectID] = append(s.messages[projectID], msg)
	return msg
}

// softDeleteMessage blanks the content in place; list position is preserved.
func (s *state) softDeleteMessage(projectID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[projectID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].SoftDelete()
			return true
		}
	}
	return false
}

func (s *state) createInvitation(projectID, email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.invitations[token] = invitation{ProjectID: projectID, Email: email}

	if p, ok := s.projects[projectID]; ok {
		p.Members = append(p.Members, schema.Member{
			UserID: userIDFor(email),
			Email:  email,
			Role:   schema.RoleMember,
			Status: schema.MemberPending,
		})
	}
	return token
}

func (s *state) acceptInvitation(token, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[token]
	if !ok {
		return fmt.Errorf("invitation not found")
	}
	delete(s.invitations, token)

	p, ok := s.projects[inv.ProjectID]
	if !ok {
		return fmt.Errorf("project %s gone", inv.ProjectID)
	}
	for i := range p.Members {
		if p.Members[i].UserID == userID && p.Members[i].Status == schema.MemberPending {
			p.Members[i].Status = schema.MemberActive
			p.Members[i].JoinedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("no pending membership for this user")
}

func removeString(xs []string, x string) []string {
	out := xs[:0]
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}
