package gateway

import (
	"context"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/schema"
)

// BindStore registers a fetcher for every cache kind this gateway can load,
// turning Invalidate calls into authoritative refetches.
func (c *Client) BindStore(store *cache.Store) {
	store.Register(cache.KindProjects, func(ctx context.Context, _ cache.Key) (any, error) {
		return c.ListProjects(ctx)
	})
	store.Register(cache.KindProject, func(ctx context.Context, key cache.Key) (any, error) {
		return c.GetProject(ctx, key.Scope)
	})
	store.Register(cache.KindSprints, func(ctx context.Context, key cache.Key) (any, error) {
		return c.ListSprints(ctx, key.Scope)
	})
	store.Register(cache.KindColumns, func(ctx context.Context, key cache.Key) (any, error) {
		return c.ListColumns(ctx, key.Scope)
	})
	store.Register(cache.KindTasks, func(ctx context.Context, key cache.Key) (any, error) {
		return c.ListTasks(ctx, key.Scope)
	})
	store.Register(cache.KindMessages, func(ctx context.Context, key cache.Key) (any, error) {
		return c.ChatHistory(ctx, key.Scope)
	})
	store.Register(cache.KindRoomSummary, func(ctx context.Context, key cache.Key) (any, error) {
		messages, err := c.ChatHistory(ctx, key.Scope)
		if err != nil {
			return nil, err
		}
		return SummarizeRoom(key.Scope, messages), nil
	})
}

// SummarizeRoom derives the last-message digest from a room's history.
func SummarizeRoom(projectID string, messages []schema.Message) schema.RoomSummary {
	summary := schema.RoomSummary{ProjectID: projectID}
	if len(messages) == 0 {
		return summary
	}
	last := messages[len(messages)-1]
	summary.LastMessage = last.Content
	summary.LastSender = last.SenderName
	summary.LastAt = last.CreatedAt
	return summary
}
