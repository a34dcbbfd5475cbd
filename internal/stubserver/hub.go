package stubserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/teamboard/boardsync/internal/realtime"
)

const hubWriteTimeout = 5 * time.Second

// hub fans websocket events out to project rooms. Each connection sits in at
// most one room at a time, mirroring the client's explicit join/leave model.
type hub struct {
	state  *state
	logger *log.Logger

	mu      sync.Mutex
	clients map[*hubClient]bool
	closed  bool
}

type hubClient struct {
	conn     *websocket.Conn
	userID   string
	userName string

	mu   sync.Mutex
	room string
}

func newHub(st *state, logger *log.Logger) *hub {
	return &hub{
		state:   st,
		logger:  logger,
		clients: make(map[*hubClient]bool),
	}
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// serveWS upgrades the connection and runs its read loop. The client's
// identity comes from the user and name query parameters; an anonymous
// connection gets a generated ID.
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Printf("websocket accept failed: %v", err)
		return
	}

	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = uuid.NewString()
	}
	userName := r.URL.Query().Get("name")

	client := &hubClient{conn: conn, userID: userID, userName: userName}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[client] = true
	h.mu.Unlock()

	h.readLoop(client)

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (h *hub) readLoop(client *hubClient) {
	ctx := context.Background()
	for {
		_, data, err := client.conn.Read(ctx)
		if err != nil {
			return
		}

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Printf("skipping malformed frame: %v", err)
			continue
		}
		h.dispatch(client, frame)
	}
}

type wirePayload struct {
	ProjectID string `json:"projectId"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

func (h *hub) dispatch(client *hubClient, frame realtime.Frame) {
	var payload wirePayload
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			h.logger.Printf("skipping %s: %v", frame.Event, err)
			return
		}
	}
	if payload.ProjectID == "" {
		return
	}

	switch frame.Event {
	case realtime.EventJoinRoom:
		client.mu.Lock()
		client.room = payload.ProjectID
		client.mu.Unlock()

	case realtime.EventLeaveRoom:
		client.mu.Lock()
		if client.room == payload.ProjectID {
			client.room = ""
		}
		client.mu.Unlock()

	case realtime.EventSendMessage:
		if payload.Content == "" {
			return
		}
		msg := h.state.appendMessage(payload.ProjectID, client.userID, client.userName, payload.Content)
		h.broadcast(payload.ProjectID, realtime.EventNewMessage, msg)

	case realtime.EventTypingStart:
		h.broadcastExcept(client, payload.ProjectID, realtime.EventUserTyping, map[string]string{
			"projectId": payload.ProjectID,
			"userId":    client.userID,
			"userName":  client.userName,
		})

	case realtime.EventTypingStop:
		h.broadcastExcept(client, payload.ProjectID, realtime.EventUserStopTyping, map[string]string{
			"projectId": payload.ProjectID,
			"userId":    client.userID,
		})

	case realtime.EventDeleteMessage:
		if payload.MessageID == "" {
			return
		}
		if h.state.softDeleteMessage(payload.ProjectID, payload.MessageID) {
			h.broadcast(payload.ProjectID, realtime.EventMessageDeleted, map[string]string{
				"projectId": payload.ProjectID,
				"messageId": payload.MessageID,
			})
		}

	default:
		h.logger.Printf("ignoring unknown event %q", frame.Event)
	}
}

// notifyProject pushes a board-change notification to everyone in the
// project's room. REST handlers call this after mutations.
func (h *hub) notifyProject(projectID, sprintID, text string) {
	h.broadcast(projectID, realtime.EventProjectNotification, map[string]string{
		"projectId": projectID,
		"sprintId":  sprintID,
		"text":      text,
	})
}

func (h *hub) broadcast(projectID, event string, data any) {
	h.broadcastExcept(nil, projectID, event, data)
}

// broadcastExcept sends an event to every room member except the given
// client. A nil exception sends to the whole room, sender included.
func (h *hub) broadcastExcept(except *hubClient, projectID, event string, data any) {
	payload, err := realtime.EncodeFrame(event, data)
	if err != nil {
		h.logger.Printf("failed to encode %s: %v", event, err)
		return
	}

	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		if c == except {
			continue
		}
		c.mu.Lock()
		inRoom := c.room == projectID
		c.mu.Unlock()
		if inRoom {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), hubWriteTimeout)
		if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
			h.logger.Printf("dropping slow client: %v", err)
		}
		cancel()
	}
}
