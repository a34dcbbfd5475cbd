package schema

import (
	"fmt"
	"strings"
	"time"
)

// Role determines what a member may do inside a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleMember, RoleViewer:
		return true
	}
	return false
}

// CanEdit reports whether the role carries write permission.
// Viewers are read-only; owners and members may mutate board state.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleMember
}

// MemberStatus tracks a member's lifecycle inside a project.
type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberPending MemberStatus = "pending"
	MemberLeft    MemberStatus = "left"
)

// Member is one entry in a project's member list.
type Member struct {
	UserID   string       `json:"userId"`
	Email    string       `json:"email"`
	Role     Role         `json:"role"`
	Status   MemberStatus `json:"status"`
	JoinedAt time.Time    `json:"joinedAt"`
}

// Project is the top-level container for sprints, boards and chat.
type Project struct {
	ID          string    `json:"_id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Members     []Member  `json:"members,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the project invariants the client relies on.
// Exactly one member must hold the owner role.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name is required")
	}
	owners := 0
	for i := range p.Members {
		m := &p.Members[i]
		if !m.Role.Valid() {
			return fmt.Errorf("member %s has unknown role %q", m.UserID, m.Role)
		}
		if m.Role == RoleOwner {
			owners++
		}
	}
	if len(p.Members) > 0 && owners != 1 {
		return fmt.Errorf("project must have exactly one owner (got %d)", owners)
	}
	return nil
}

// MemberByUser returns the member entry for userID, or nil if the user
// is not part of the project.
func (p *Project) MemberByUser(userID string) *Member {
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}
