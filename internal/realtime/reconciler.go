package realtime

import (
	"log"
	"os"
	"sync"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/schema"
)

// Reconciler folds incoming events into the cache store. Each event kind has
// one pure fold; none of them issues a network call. Cached slices are
// treated as read-only snapshots: folds copy, modify the copy, and write it
// back whole.
type Reconciler struct {
	store  *cache.Store
	logger *log.Logger

	// typing is ephemeral client state, never part of the server cache.
	typingMu sync.Mutex
	typing   map[string]map[string]string // projectID -> userID -> userName
}

// NewReconciler creates a Reconciler over store. If logger is nil, a default
// logger writing to stderr is used.
func NewReconciler(store *cache.Store, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}
	return &Reconciler{
		store:  store,
		logger: logger,
		typing: make(map[string]map[string]string),
	}
}

// Apply folds one event into local state. The switch is total over the
// Incoming set; Decode guarantees no other type reaches this point.
func (r *Reconciler) Apply(ev Incoming) {
	switch ev := ev.(type) {
	case NewMessage:
		r.applyNewMessage(ev)
	case UserTyping:
		r.applyTyping(ev)
	case UserStopTyping:
		r.applyStopTyping(ev)
	case MessageDeleted:
		r.applyMessageDeleted(ev)
	case ProjectNotification:
		r.applyNotification(ev)
	}
}

// applyNewMessage appends to the room's history and refreshes the room's
// last-message summary.
func (r *Reconciler) applyNewMessage(ev NewMessage) {
	key := cache.MessagesKey(ev.Message.ProjectID)

	messages, _ := cache.ReadAs[[]schema.Message](r.store, key)
	updated := make([]schema.Message, len(messages), len(messages)+1)
	copy(updated, messages)
	updated = append(updated, ev.Message)
	r.store.Write(key, updated)

	r.store.Write(cache.RoomSummaryKey(ev.Message.ProjectID), schema.RoomSummary{
		ProjectID:   ev.Message.ProjectID,
		LastMessage: ev.Message.Content,
		LastSender:  ev.Message.SenderName,
		LastAt:      ev.Message.CreatedAt,
	})
}

// applyTyping adds (user, room) to the typing set if not already present.
func (r *Reconciler) applyTyping(ev UserTyping) {
	r.typingMu.Lock()
	defer r.typingMu.Unlock()

	room := r.typing[ev.ProjectID]
	if room == nil {
		room = make(map[string]string)
		r.typing[ev.ProjectID] = room
	}
	room[ev.UserID] = ev.UserName
}

// applyStopTyping removes (user, room) from the typing set.
func (r *Reconciler) applyStopTyping(ev UserStopTyping) {
	r.typingMu.Lock()
	defer r.typingMu.Unlock()

	if room := r.typing[ev.ProjectID]; room != nil {
		delete(room, ev.UserID)
		if len(room) == 0 {
			delete(r.typing, ev.ProjectID)
		}
	}
}

// applyMessageDeleted soft-deletes the identified message in place. The list
// keeps its length and ordering; only the one message's content changes.
func (r *Reconciler) applyMessageDeleted(ev MessageDeleted) {
	key := cache.MessagesKey(ev.ProjectID)

	messages, ok := cache.ReadAs[[]schema.Message](r.store, key)
	if !ok {
		// Room history not loaded; nothing to patch. The next fetch
		// returns the deleted form anyway.
		return
	}

	updated := make([]schema.Message, len(messages))
	copy(updated, messages)
	found := false
	for i := range updated {
		if updated[i].ID == ev.MessageID {
			updated[i].SoftDelete()
			found = true
			break
		}
	}
	if !found {
		r.logger.Printf("message-deleted for unknown message %s in %s", ev.MessageID, ev.ProjectID)
		return
	}
	r.store.Write(key, updated)
}

// applyNotification invalidates the board slices the notification names.
// The event carries scope, not data; authoritative state comes from the
// refetch.
func (r *Reconciler) applyNotification(ev ProjectNotification) {
	if ev.SprintID != "" {
		if err := r.store.Invalidate(cache.TasksKey(ev.SprintID)); err != nil && err != cache.ErrNoFetcher {
			r.logger.Printf("invalidate tasks/%s: %v", ev.SprintID, err)
		}
		if err := r.store.Invalidate(cache.ColumnsKey(ev.SprintID)); err != nil && err != cache.ErrNoFetcher {
			r.logger.Printf("invalidate columns/%s: %v", ev.SprintID, err)
		}
		return
	}
	if err := r.store.Invalidate(cache.ProjectKey(ev.ProjectID)); err != nil && err != cache.ErrNoFetcher {
		r.logger.Printf("invalidate project/%s: %v", ev.ProjectID, err)
	}
}

// TypingUsers returns the users currently typing in a room, as a userID to
// display-name map copy.
func (r *Reconciler) TypingUsers(projectID string) map[string]string {
	r.typingMu.Lock()
	defer r.typingMu.Unlock()

	room := r.typing[projectID]
	if len(room) == 0 {
		return nil
	}
	out := make(map[string]string, len(room))
	for id, name := range room {
		out[id] = name
	}
	return out
}

// ClearTyping drops the typing set for a room. Called on leave.
func (r *Reconciler) ClearTyping(projectID string) {
	r.typingMu.Lock()
	defer r.typingMu.Unlock()
	delete(r.typing, projectID)
}
