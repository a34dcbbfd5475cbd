package schema

import (
	"strings"
	"testing"
	"time"
)

func validTask() *Task {
	now := time.Now()
	return &Task{
		ID:            "t1",
		SprintID:      "s1",
		BoardColumnID: "c1",
		Title:         "Fix login bug",
		Priority:      PriorityHigh,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr string
	}{
		{"valid", func(*Task) {}, ""},
		{"missing id", func(tk *Task) { tk.ID = "" }, "id is required"},
		{"missing sprint", func(tk *Task) { tk.SprintID = "" }, "sprintId is required"},
		{"missing column", func(tk *Task) { tk.BoardColumnID = "" }, "boardColumnId is required"},
		{"blank title", func(tk *Task) { tk.Title = "   " }, "title is required"},
		{"title too long", func(tk *Task) { tk.Title = strings.Repeat("x", 501) }, "500 characters"},
		{"bad priority", func(tk *Task) { tk.Priority = "urgent" }, "unknown task priority"},
		{"negative points", func(tk *Task) { tk.StoryPoints = -1 }, "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(task)
			err := task.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestTaskSetDefaults(t *testing.T) {
	task := &Task{ID: "t1", SprintID: "s1", BoardColumnID: "c1", Title: "x"}
	task.SetDefaults()

	if task.Priority != PriorityMedium {
		t.Errorf("expected default priority medium, got %s", task.Priority)
	}
	if task.Labels == nil {
		t.Error("expected labels to default to empty slice")
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if err := task.Validate(); err != nil {
		t.Errorf("task invalid after SetDefaults: %v", err)
	}
}

func TestProjectValidateOwnerCount(t *testing.T) {
	now := time.Now()
	proj := &Project{
		ID:   "p1",
		Name: "Apollo",
		Members: []Member{
			{UserID: "u1", Email: "a@example.com", Role: RoleOwner, Status: MemberActive, JoinedAt: now},
			{UserID: "u2", Email: "b@example.com", Role: RoleMember, Status: MemberActive, JoinedAt: now},
		},
	}
	if err := proj.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	proj.Members[1].Role = RoleOwner
	if err := proj.Validate(); err == nil {
		t.Error("expected error for two owners")
	}

	proj.Members[1].Role = "admin"
	if err := proj.Validate(); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestRoleCanEdit(t *testing.T) {
	if !RoleOwner.CanEdit() || !RoleMember.CanEdit() {
		t.Error("owner and member should have edit rights")
	}
	if RoleViewer.CanEdit() {
		t.Error("viewer must not have edit rights")
	}
}

func TestSprintValidateDates(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -7)
	sprint := &Sprint{
		ID:        "s1",
		ProjectID: "p1",
		Name:      "Sprint 1",
		Status:    SprintPlanned,
		StartDate: &start,
		EndDate:   &end,
	}
	if err := sprint.Validate(); err == nil {
		t.Error("expected error for end before start")
	}

	end = start.AddDate(0, 0, 14)
	sprint.EndDate = &end
	if err := sprint.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestSortColumns(t *testing.T) {
	cols := []BoardColumn{
		{ID: "c3", SprintID: "s1", Title: "Done", Position: 2},
		{ID: "c1", SprintID: "s1", Title: "To Do", Position: 0},
		{ID: "c2", SprintID: "s1", Title: "In Progress", Position: 1},
	}
	SortColumns(cols)

	want := []string{"c1", "c2", "c3"}
	for i, id := range want {
		if cols[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, cols[i].ID)
		}
	}
}

func TestMessageSoftDelete(t *testing.T) {
	msg := &Message{
		ID:        "m1",
		ProjectID: "p1",
		SenderID:  "u1",
		Content:   "hello",
		CreatedAt: time.Now(),
	}

	msg.SoftDelete()
	if !msg.IsDeleted {
		t.Error("expected IsDeleted to be true")
	}
	if msg.Content != DeletedMessagePlaceholder {
		t.Errorf("expected placeholder content, got %q", msg.Content)
	}

	// Idempotent.
	msg.SoftDelete()
	if msg.Content != DeletedMessagePlaceholder {
		t.Error("second SoftDelete changed content")
	}
}
