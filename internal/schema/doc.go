// Package schema defines the resource types exchanged with the boardsync
// backend: projects, sprints, board columns, tasks and chat messages.
//
// All server-owned resources are identified by opaque string IDs assigned by
// the backend. The client never invents a server ID; optimistic temporary IDs
// (prefix "temp-") exist only inside the local cache and are replaced by the
// refetch that follows a successful mutation.
//
// Types in this package are plain data carriers with JSON tags matching the
// wire format, plus Validate and SetDefaults helpers. They hold no behavior
// beyond field-level checks; synchronization logic lives in internal/cache,
// internal/optimistic and internal/realtime.
package schema
