// Package permission is the single source of truth for capability checks.
// Every mutation entry point (drag sensors, form submits, CLI commands)
// consults this package instead of re-deriving rights from member lists.
package permission

import "github.com/teamboard/boardsync/internal/schema"

// Capability names one user-facing right inside a project.
type Capability string

const (
	// CapEditBoard covers creating, updating, moving and deleting tasks
	// and columns.
	CapEditBoard Capability = "edit-board"

	// CapInvite covers sending project invitations.
	CapInvite Capability = "invite"

	// CapManageProject covers renaming, re-describing or deleting the
	// project itself.
	CapManageProject Capability = "manage-project"

	// CapChat covers sending chat messages and typing signals.
	CapChat Capability = "chat"
)

// Check reports whether userID holds cap in project. Unknown users, users
// who left, and pending invitees hold no capabilities.
func Check(project *schema.Project, userID string, cap Capability) bool {
	if project == nil {
		return false
	}
	member := project.MemberByUser(userID)
	if member == nil || member.Status != schema.MemberActive {
		return false
	}

	switch cap {
	case CapEditBoard, CapChat:
		return member.Role.CanEdit()
	case CapInvite:
		return member.Role == schema.RoleOwner || member.Role == schema.RoleMember
	case CapManageProject:
		return member.Role == schema.RoleOwner
	}
	return false
}

// CanEditBoard is shorthand for the check every board mutation performs.
func CanEditBoard(project *schema.Project, userID string) bool {
	return Check(project, userID, CapEditBoard)
}
