package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrNotJoined is returned when a room-scoped send is attempted without the
// room being active.
var ErrNotJoined = errors.New("realtime: room not joined")

// writeTimeout bounds every outgoing frame.
const writeTimeout = 5 * time.Second

// Client is the WebSocket side of the sync engine. It maintains at most one
// active room at a time; joining a room implicitly leaves the previous one.
//
// The client does not reconnect. When the transport drops, the Joined state
// is lost and the disconnect callback fires; re-selecting a room is the
// caller's move, matching the explicit join/leave model.
type Client struct {
	conn       *websocket.Conn
	reconciler *Reconciler
	logger     *log.Logger

	mu   sync.Mutex
	room string // active room's project ID, "" when unjoined

	onDisconnect func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DialConfig holds client options.
type DialConfig struct {
	// URL of the realtime endpoint, e.g. "ws://localhost:4000/ws".
	URL string

	// Reconciler receives every decoded event.
	Reconciler *Reconciler

	// OnDisconnect fires once when the read loop exits. May be nil.
	OnDisconnect func(error)

	// Logger for transport activity. Default: stderr.
	Logger *log.Logger
}

// Dial connects and starts the read loop. The caller owns the returned
// client and must Close it.
func Dial(ctx context.Context, config DialConfig) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("realtime URL is required")
	}
	if config.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}
	if config.OnDisconnect == nil {
		config.OnDisconnect = func(error) {}
	}

	conn, _, err := websocket.Dial(ctx, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.URL, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:         conn,
		reconciler:   config.Reconciler,
		logger:       config.Logger,
		onDisconnect: config.OnDisconnect,
		ctx:          runCtx,
		cancel:       cancel,
	}

	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// readLoop decodes frames and hands them to the reconciler, in arrival
// order. Malformed frames are logged and skipped; a read error ends the
// loop and drops the Joined state.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			room := c.room
			c.room = ""
			c.mu.Unlock()
			if room != "" {
				c.reconciler.ClearTyping(room)
			}
			if c.ctx.Err() == nil {
				c.logger.Printf("connection lost: %v", err)
			}
			c.onDisconnect(err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Printf("skipping malformed frame: %v", err)
			continue
		}

		ev, err := Decode(frame)
		if err != nil {
			c.logger.Printf("skipping event: %v", err)
			continue
		}
		c.reconciler.Apply(ev)
	}
}

// send writes one frame with the fixed write timeout.
func (c *Client) send(ctx context.Context, event string, data any) error {
	payload, err := EncodeFrame(event, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

type roomPayload struct {
	ProjectID string `json:"projectId"`
}

// JoinRoom makes projectID the active room, leaving any previous room
// first. Joining the already-active room is a no-op.
func (c *Client) JoinRoom(ctx context.Context, projectID string) error {
	c.mu.Lock()
	previous := c.room
	c.mu.Unlock()

	if previous == projectID {
		return nil
	}
	if previous != "" {
		if err := c.send(ctx, EventLeaveRoom, roomPayload{ProjectID: previous}); err != nil {
			return err
		}
		c.reconciler.ClearTyping(previous)
	}

	if err := c.send(ctx, EventJoinRoom, roomPayload{ProjectID: projectID}); err != nil {
		return err
	}

	c.mu.Lock()
	c.room = projectID
	c.mu.Unlock()
	return nil
}

// LeaveRoom leaves the active room. No-op when unjoined.
func (c *Client) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == "" {
		return nil
	}

	if err := c.send(ctx, EventLeaveRoom, roomPayload{ProjectID: room}); err != nil {
		return err
	}

	c.mu.Lock()
	c.room = ""
	c.mu.Unlock()
	c.reconciler.ClearTyping(room)
	return nil
}

// Room returns the active room's project ID, or "" when unjoined.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// requireRoom checks that projectID is the active room.
func (c *Client) requireRoom(projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != projectID {
		return fmt.Errorf("%w: %s", ErrNotJoined, projectID)
	}
	return nil
}

type sendMessagePayload struct {
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
}

// SendMessage posts a chat message to the active room. The backend assigns
// the message ID and echoes it back as a new-message event to every member
// of the room, including this client.
func (c *Client) SendMessage(ctx context.Context, projectID, content string) error {
	if err := c.requireRoom(projectID); err != nil {
		return err
	}
	if content == "" {
		return fmt.Errorf("message content is required")
	}
	return c.send(ctx, EventSendMessage, sendMessagePayload{ProjectID: projectID, Content: content})
}

// TypingStart signals that the session user started typing.
func (c *Client) TypingStart(ctx context.Context, projectID string) error {
	if err := c.requireRoom(projectID); err != nil {
		return err
	}
	return c.send(ctx, EventTypingStart, roomPayload{ProjectID: projectID})
}

// TypingStop signals that the session user stopped typing.
func (c *Client) TypingStop(ctx context.Context, projectID string) error {
	if err := c.requireRoom(projectID); err != nil {
		return err
	}
	return c.send(ctx, EventTypingStop, roomPayload{ProjectID: projectID})
}

type deleteMessagePayload struct {
	ProjectID string `json:"projectId"`
	MessageID string `json:"messageId"`
}

// DeleteMessage asks the backend to soft-delete a message. The local fold
// happens when the message-deleted event comes back.
func (c *Client) DeleteMessage(ctx context.Context, projectID, messageID string) error {
	if err := c.requireRoom(projectID); err != nil {
		return err
	}
	return c.send(ctx, EventDeleteMessage, deleteMessagePayload{ProjectID: projectID, MessageID: messageID})
}

// Close ends the connection and waits for the read loop to stop.
func (c *Client) Close() error {
	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	c.wg.Wait()
	return nil
}
