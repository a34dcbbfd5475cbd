// Package cache implements the key-addressed, in-memory store of server
// resources that every other boardsync component reads from and writes to.
//
// Each entry is the last-known snapshot of one (kind, scope) pair plus a
// freshness state. Reads never block. Writes replace the value atomically and
// notify subscribers. Invalidation marks the entry stale and schedules a
// background refetch through the fetcher registered for the entry's kind;
// readers keep seeing the stale value until the refetch lands
// (stale-while-revalidate).
package cache

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the freshness of a cached entry.
type State int

const (
	// StateMissing means the key has never been loaded.
	StateMissing State = iota

	// StateFresh means the value reflects the last successful fetch or write.
	StateFresh

	// StateStale means the entry was invalidated; the value is still served
	// while a refetch is pending or failed.
	StateStale
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "missing"
	}
}

// ErrNoFetcher is returned by Invalidate when no fetcher is registered for
// the key's kind. The entry is still marked stale.
var ErrNoFetcher = errors.New("cache: no fetcher registered for kind")

// Fetcher loads the authoritative value for a key from the backend.
// Registered per kind via Store.Register.
type Fetcher func(ctx context.Context, key Key) (any, error)

// Event describes one observable store change.
type Event struct {
	Key   Key
	State State
}

type entry struct {
	value     any
	state     State
	fetchedAt time.Time
}

// Store is the process-wide cache. It is safe for concurrent use.
// Construct per test with New and tear down with Close.
type Store struct {
	mu       sync.RWMutex
	entries  map[Key]*entry
	fetchers map[Kind]Fetcher
	subs     map[int]chan Event
	nextSub  int

	refetch singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// New creates an empty store. If logger is nil, a default logger writing
// to stderr is used.
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		entries:  make(map[Key]*entry),
		fetchers: make(map[Kind]Fetcher),
		subs:     make(map[int]chan Event),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Register installs the fetcher used to revalidate entries of the given kind.
// Registering again replaces the previous fetcher.
func (s *Store) Register(kind Kind, fetch Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[kind] = fetch
}

// Read returns the current cached value and its state. It never blocks.
// A StateMissing result means the key has not been loaded yet; the returned
// value is nil in that case.
func (s *Store) Read(key Key) (any, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, StateMissing
	}
	return e.value, e.state
}

// Write replaces the cached value for key and marks it fresh. All
// subscribers observe the full new value; there is no partial-write
// visibility.
func (s *Store) Write(key Key, value any) {
	s.mu.Lock()
	s.entries[key] = &entry{value: value, state: StateFresh, fetchedAt: time.Now()}
	s.notifyLocked(Event{Key: key, State: StateFresh})
	s.mu.Unlock()
}

// Invalidate marks the entry stale and schedules a background refetch via
// the kind's registered fetcher. Invalidating the same key again while a
// refetch is already in flight joins the existing flight, so repeated
// invalidation converges on a single fetch.
//
// Returns ErrNoFetcher when the kind has no fetcher; the entry is still
// marked stale so the next registered fetch can pick it up.
func (s *Store) Invalidate(key Key) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		e.state = StateStale
	} else {
		s.entries[key] = &entry{state: StateStale}
	}
	fetch, haveFetcher := s.fetchers[key.Kind]
	s.notifyLocked(Event{Key: key, State: StateStale})
	s.mu.Unlock()

	if !haveFetcher {
		return ErrNoFetcher
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.revalidate(key, fetch)
	}()
	return nil
}

// revalidate runs the fetch for key, coalescing concurrent invalidations of
// the same key into one flight.
func (s *Store) revalidate(key Key, fetch Fetcher) {
	_, err, _ := s.refetch.Do(key.String(), func() (any, error) {
		value, err := fetch(s.ctx, key)
		if err != nil {
			return nil, err
		}
		s.Write(key, value)
		return value, nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Printf("refetch failed for %s: %v", key, err)
	}
}

// Subscribe returns a channel that receives an Event for every write and
// invalidation, plus a cancel function that must be called when done.
// Slow consumers lose events rather than blocking writers.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// notifyLocked fans an event out to subscribers. Caller holds s.mu.
func (s *Store) notifyLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block writes.
		}
	}
}

// Drop removes the entry for key entirely, returning the store to the
// not-yet-loaded state for that key. Used by rollback when the pre-mutation
// snapshot was missing.
func (s *Store) Drop(key Key) {
	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.notifyLocked(Event{Key: key, State: StateMissing})
	}
	s.mu.Unlock()
}

// Keys returns all keys currently present, in no particular order.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// StaleKeys returns the keys currently marked stale.
func (s *Store) StaleKeys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []Key
	for k, e := range s.entries {
		if e.state == StateStale {
			keys = append(keys, k)
		}
	}
	return keys
}

// Reset discards every entry. Used on logout/session teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[Key]*entry)
}

// Close stops background refetches and waits for them to finish.
// The store must not be used after Close.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// ReadAs reads key and type-asserts the value to T. The second return is
// false when the entry is missing or holds a different type.
func ReadAs[T any](s *Store, key Key) (T, bool) {
	var zero T
	value, state := s.Read(key)
	if state == StateMissing {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
