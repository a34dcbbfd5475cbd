// Package optimistic implements the mutation protocol that makes writes feel
// instantaneous while staying correct when the server rejects them:
//
//  1. Snapshot the cached value of every key the mutation touches.
//  2. Patch the cache synchronously with the expected outcome.
//  3. Dispatch the network call.
//  4. On success, invalidate the touched keys so the next read pulls
//     authoritative data (replacing any temporary IDs).
//  5. On failure, write every snapshot back (full rollback, not a merge)
//     and surface the error.
//
// One generic Coordinator is shared by every resource type; callers supply
// the keys, the patch and the dispatch per mutation.
package optimistic

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/teamboard/boardsync/internal/cache"
)

// TempIDPrefix marks identifiers invented during an optimistic patch.
// They exist only in the local cache and must never be sent to the server.
const TempIDPrefix = "temp-"

// TempID returns a fresh temporary identifier for an optimistically created
// resource. The invalidation-triggered refetch supersedes it.
func TempID() string {
	return fmt.Sprintf("%s%d", TempIDPrefix, time.Now().UnixNano())
}

// IsTempID reports whether id was invented locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Notifier receives the user-visible outcome of a mutation. Implementations
// render toasts, CLI lines, or record outcomes in tests.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Error(string)   {}

// Mutation describes one optimistic write.
type Mutation struct {
	// Name is used in logs and notifications, e.g. "move task".
	Name string

	// Keys are the cache keys the patch touches. Each is snapshotted
	// before Patch runs and restored verbatim on failure.
	Keys []cache.Key

	// Patch applies the expected outcome to the store synchronously.
	// It must only write the keys listed above.
	Patch func(s *cache.Store)

	// Dispatch issues the network call. A nil error confirms the
	// mutation; any error triggers rollback.
	Dispatch func(ctx context.Context) error
}

type snapshot struct {
	key     cache.Key
	value   any
	present bool
}

// Coordinator runs mutations against one store. Safe for concurrent use;
// concurrent mutations touching the same key each capture their own
// snapshot, and the later write or rollback wins. That looser model is
// deliberate: the backend remains the system of record and invalidation
// reconverges the cache.
type Coordinator struct {
	store    *cache.Store
	notifier Notifier
	logger   *log.Logger
}

// New creates a Coordinator. A nil notifier discards notifications; a nil
// logger falls back to stderr.
func New(store *cache.Store, notifier Notifier, logger *log.Logger) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[mutate] ", log.LstdFlags)
	}
	return &Coordinator{store: store, notifier: notifier, logger: logger}
}

// Store returns the coordinator's cache store.
func (c *Coordinator) Store() *cache.Store {
	return c.store
}

// Run executes the full optimistic protocol for m. The returned error is
// the dispatch error, so callers that await the outcome can branch on it
// (e.g. keep a form open); it has already been rolled back and notified by
// the time Run returns.
func (c *Coordinator) Run(ctx context.Context, m Mutation) error {
	if len(m.Keys) == 0 {
		return fmt.Errorf("mutation %q touches no keys", m.Name)
	}

	// 1. Snapshot.
	snaps := make([]snapshot, 0, len(m.Keys))
	for _, key := range m.Keys {
		value, state := c.store.Read(key)
		snaps = append(snaps, snapshot{key: key, value: value, present: state != cache.StateMissing})
	}

	// 2. Patch.
	if m.Patch != nil {
		m.Patch(c.store)
	}

	// 3. Dispatch.
	if err := m.Dispatch(ctx); err != nil {
		// 5. Rollback.
		c.rollback(snaps)
		c.logger.Printf("%s failed, rolled back %d key(s): %v", m.Name, len(snaps), err)
		c.notifier.Error(fmt.Sprintf("%s failed: %v", m.Name, err))
		return err
	}

	// 4. Reconcile with authoritative state.
	for _, key := range m.Keys {
		if err := c.store.Invalidate(key); err != nil && err != cache.ErrNoFetcher {
			c.logger.Printf("invalidate %s after %s: %v", key, m.Name, err)
		}
	}
	c.notifier.Success(fmt.Sprintf("%s succeeded", m.Name))
	return nil
}

// rollback restores every snapshot exactly as captured.
func (c *Coordinator) rollback(snaps []snapshot) {
	for _, snap := range snaps {
		if snap.present {
			c.store.Write(snap.key, snap.value)
		} else {
			c.store.Drop(snap.key)
		}
	}
}
