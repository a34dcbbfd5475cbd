// Package realtime keeps the local cache consistent with events pushed from
// other sessions, without a full refetch.
//
// The wire protocol is a small set of named JSON events over one WebSocket
// connection. Payloads are decoded into a closed set of typed variants at the
// ingestion boundary; the reconciler's fold is total over that set and never
// sees loose maps.
//
// Events carry no sequence numbers. An event racing an optimistic patch can
// be overwritten by it; the backend remains the system of record and the
// next refetch reconverges the cache. This best-effort model is deliberate.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/teamboard/boardsync/internal/schema"
)

// Event names sent client-to-server.
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventSendMessage   = "send-message"
	EventTypingStart   = "typing-start"
	EventTypingStop    = "typing-stop"
	EventDeleteMessage = "delete-message"
)

// Event names pushed server-to-client.
const (
	EventNewMessage          = "new-message"
	EventUserTyping          = "user-typing"
	EventUserStopTyping      = "user-stop-typing"
	EventMessageDeleted      = "message-deleted"
	EventProjectNotification = "project-notification"
)

// Frame is the wire shape of every event in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Incoming is one decoded server-to-client event. The concrete types below
// are the full set; the reconciler switches over them exhaustively.
type Incoming interface {
	incoming()
}

// NewMessage announces a message posted to a joined room.
type NewMessage struct {
	Message schema.Message
}

// UserTyping announces that a user started typing in a room.
type UserTyping struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
}

// UserStopTyping announces that a user stopped typing in a room.
type UserStopTyping struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

// MessageDeleted announces a soft delete. The message stays in the list with
// its content replaced; only content and the deleted flag change.
type MessageDeleted struct {
	ProjectID string `json:"projectId"`
	MessageID string `json:"messageId"`
}

// ProjectNotification announces a board-relevant change made elsewhere
// (task created/updated/moved). It names the scope to invalidate rather
// than carrying the data.
type ProjectNotification struct {
	ProjectID string `json:"projectId"`
	SprintID  string `json:"sprintId,omitempty"`
	Text      string `json:"text,omitempty"`
}

func (NewMessage) incoming()          {}
func (UserTyping) incoming()          {}
func (UserStopTyping) incoming()      {}
func (MessageDeleted) incoming()      {}
func (ProjectNotification) incoming() {}

// Decode validates a raw frame into its typed variant. Unknown event names
// and structurally invalid payloads are rejected here so downstream code
// only handles well-formed events.
func Decode(frame Frame) (Incoming, error) {
	switch frame.Event {
	case EventNewMessage:
		var msg schema.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		if err := msg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", frame.Event, err)
		}
		return NewMessage{Message: msg}, nil

	case EventUserTyping:
		var ev UserTyping
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		if ev.ProjectID == "" || ev.UserID == "" {
			return nil, fmt.Errorf("%s requires projectId and userId", frame.Event)
		}
		return ev, nil

	case EventUserStopTyping:
		var ev UserStopTyping
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		if ev.ProjectID == "" || ev.UserID == "" {
			return nil, fmt.Errorf("%s requires projectId and userId", frame.Event)
		}
		return ev, nil

	case EventMessageDeleted:
		var ev MessageDeleted
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		if ev.ProjectID == "" || ev.MessageID == "" {
			return nil, fmt.Errorf("%s requires projectId and messageId", frame.Event)
		}
		return ev, nil

	case EventProjectNotification:
		var ev ProjectNotification
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Event, err)
		}
		if ev.ProjectID == "" {
			return nil, fmt.Errorf("%s requires projectId", frame.Event)
		}
		return ev, nil
	}

	return nil, fmt.Errorf("unknown event %q", frame.Event)
}

// EncodeFrame marshals an outgoing event into its wire frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		raw = payload
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
