package realtime

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeKnownEvents(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		check func(t *testing.T, ev Incoming)
	}{
		{
			name: "new message",
			frame: Frame{
				Event: EventNewMessage,
				Data:  json.RawMessage(`{"_id":"m1","projectId":"p1","senderId":"u1","content":"hello","createdAt":"2026-02-01T10:00:00Z"}`),
			},
			check: func(t *testing.T, ev Incoming) {
				msg, ok := ev.(NewMessage)
				if !ok {
					t.Fatalf("expected NewMessage, got %T", ev)
				}
				if msg.Message.Content != "hello" {
					t.Errorf("unexpected content %q", msg.Message.Content)
				}
			},
		},
		{
			name: "user typing",
			frame: Frame{
				Event: EventUserTyping,
				Data:  json.RawMessage(`{"projectId":"p1","userId":"u1","userName":"ann"}`),
			},
			check: func(t *testing.T, ev Incoming) {
				typing, ok := ev.(UserTyping)
				if !ok {
					t.Fatalf("expected UserTyping, got %T", ev)
				}
				if typing.UserName != "ann" {
					t.Errorf("unexpected user name %q", typing.UserName)
				}
			},
		},
		{
			name: "message deleted",
			frame: Frame{
				Event: EventMessageDeleted,
				Data:  json.RawMessage(`{"projectId":"p1","messageId":"m1"}`),
			},
			check: func(t *testing.T, ev Incoming) {
				if _, ok := ev.(MessageDeleted); !ok {
					t.Fatalf("expected MessageDeleted, got %T", ev)
				}
			},
		},
		{
			name: "project notification",
			frame: Frame{
				Event: EventProjectNotification,
				Data:  json.RawMessage(`{"projectId":"p1","sprintId":"s1","text":"task moved"}`),
			},
			check: func(t *testing.T, ev Incoming) {
				note, ok := ev.(ProjectNotification)
				if !ok {
					t.Fatalf("expected ProjectNotification, got %T", ev)
				}
				if note.SprintID != "s1" {
					t.Errorf("unexpected sprint %q", note.SprintID)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.frame)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr string
	}{
		{
			name:    "unknown event",
			frame:   Frame{Event: "task-exploded", Data: json.RawMessage(`{}`)},
			wantErr: "unknown event",
		},
		{
			name:    "malformed payload",
			frame:   Frame{Event: EventUserTyping, Data: json.RawMessage(`"not an object"`)},
			wantErr: "malformed",
		},
		{
			name:    "typing without user",
			frame:   Frame{Event: EventUserTyping, Data: json.RawMessage(`{"projectId":"p1"}`)},
			wantErr: "requires projectId and userId",
		},
		{
			name:    "delete without message id",
			frame:   Frame{Event: EventMessageDeleted, Data: json.RawMessage(`{"projectId":"p1"}`)},
			wantErr: "requires projectId and messageId",
		},
		{
			name:    "message missing sender",
			frame:   Frame{Event: EventNewMessage, Data: json.RawMessage(`{"_id":"m1","projectId":"p1","content":"x"}`)},
			wantErr: "invalid",
		},
		{
			name:    "notification without project",
			frame:   Frame{Event: EventProjectNotification, Data: json.RawMessage(`{"text":"x"}`)},
			wantErr: "requires projectId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	raw, err := EncodeFrame(EventSendMessage, sendMessagePayload{ProjectID: "p1", Content: "hello"})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("failed to unmarshal frame: %v", err)
	}
	if frame.Event != EventSendMessage {
		t.Errorf("unexpected event %q", frame.Event)
	}

	var payload sendMessagePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload.Content != "hello" {
		t.Errorf("unexpected content %q", payload.Content)
	}
}
