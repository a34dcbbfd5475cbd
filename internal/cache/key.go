package cache

// Kind identifies a resource family held in the store.
type Kind string

const (
	// KindProjects is the session user's project list. Scope is empty.
	KindProjects Kind = "projects"

	// KindProject is a single project. Scope is the project ID.
	KindProject Kind = "project"

	// KindSprints is the sprint list of a project. Scope is the project ID.
	KindSprints Kind = "sprints"

	// KindColumns is the column list of a sprint. Scope is the sprint ID.
	KindColumns Kind = "columns"

	// KindTasks is the task list of a sprint. Scope is the sprint ID.
	KindTasks Kind = "tasks"

	// KindMessages is the chat history of a project room. Scope is the
	// project ID.
	KindMessages Kind = "messages"

	// KindRoomSummary is the last-message digest of a project room.
	// Scope is the project ID.
	KindRoomSummary Kind = "roomSummary"
)

// Key addresses one cached value: a resource kind plus the identifier that
// scopes it (e.g. "tasks of sprint X").
type Key struct {
	Kind  Kind
	Scope string
}

// String renders the key as "kind/scope" for logs and mirror storage.
func (k Key) String() string {
	if k.Scope == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + "/" + k.Scope
}

// TasksKey returns the key for a sprint's task list.
func TasksKey(sprintID string) Key { return Key{Kind: KindTasks, Scope: sprintID} }

// ColumnsKey returns the key for a sprint's column list.
func ColumnsKey(sprintID string) Key { return Key{Kind: KindColumns, Scope: sprintID} }

// SprintsKey returns the key for a project's sprint list.
func SprintsKey(projectID string) Key { return Key{Kind: KindSprints, Scope: projectID} }

// MessagesKey returns the key for a project room's chat history.
func MessagesKey(projectID string) Key { return Key{Kind: KindMessages, Scope: projectID} }

// RoomSummaryKey returns the key for a project room's last-message digest.
func RoomSummaryKey(projectID string) Key { return Key{Kind: KindRoomSummary, Scope: projectID} }

// ProjectKey returns the key for a single project.
func ProjectKey(projectID string) Key { return Key{Kind: KindProject, Scope: projectID} }
