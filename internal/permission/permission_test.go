package permission

import (
	"testing"
	"time"

	"github.com/teamboard/boardsync/internal/schema"
)

func testProject() *schema.Project {
	now := time.Now()
	return &schema.Project{
		ID:   "p1",
		Name: "Apollo",
		Members: []schema.Member{
			{UserID: "owner", Role: schema.RoleOwner, Status: schema.MemberActive, JoinedAt: now},
			{UserID: "member", Role: schema.RoleMember, Status: schema.MemberActive, JoinedAt: now},
			{UserID: "viewer", Role: schema.RoleViewer, Status: schema.MemberActive, JoinedAt: now},
			{UserID: "pending", Role: schema.RoleMember, Status: schema.MemberPending, JoinedAt: now},
			{UserID: "gone", Role: schema.RoleMember, Status: schema.MemberLeft, JoinedAt: now},
		},
	}
}

func TestCheck(t *testing.T) {
	project := testProject()

	tests := []struct {
		user string
		cap  Capability
		want bool
	}{
		{"owner", CapEditBoard, true},
		{"owner", CapManageProject, true},
		{"owner", CapInvite, true},
		{"member", CapEditBoard, true},
		{"member", CapManageProject, false},
		{"member", CapInvite, true},
		{"member", CapChat, true},
		{"viewer", CapEditBoard, false},
		{"viewer", CapChat, false},
		{"viewer", CapInvite, false},
		{"pending", CapEditBoard, false},
		{"gone", CapEditBoard, false},
		{"stranger", CapEditBoard, false},
	}

	for _, tt := range tests {
		if got := Check(project, tt.user, tt.cap); got != tt.want {
			t.Errorf("Check(%s, %s) = %v, want %v", tt.user, tt.cap, got, tt.want)
		}
	}
}

func TestCheckNilProject(t *testing.T) {
	if Check(nil, "owner", CapEditBoard) {
		t.Error("nil project must grant nothing")
	}
}
