package schema

import (
	"fmt"
	"time"
)

// DeletedMessagePlaceholder replaces the content of a soft-deleted message.
// The record stays in the list so ordering and reply context survive.
const DeletedMessagePlaceholder = "This message was deleted"

// Message is one chat message in a project's room.
type Message struct {
	ID         string    `json:"_id"`
	ProjectID  string    `json:"projectId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Content    string    `json:"content"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks required message fields.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if m.ProjectID == "" {
		return fmt.Errorf("message projectId is required")
	}
	if m.SenderID == "" {
		return fmt.Errorf("message senderId is required")
	}
	if m.Content == "" && !m.IsDeleted {
		return fmt.Errorf("message content is required")
	}
	return nil
}

// SoftDelete marks the message deleted in place, swapping the content for
// the fixed placeholder. It is idempotent.
func (m *Message) SoftDelete() {
	m.Content = DeletedMessagePlaceholder
	m.IsDeleted = true
}

// RoomSummary is the per-room chat digest shown in project lists.
type RoomSummary struct {
	ProjectID   string    `json:"projectId"`
	LastMessage string    `json:"lastMessage,omitempty"`
	LastSender  string    `json:"lastSender,omitempty"`
	LastAt      time.Time `json:"lastAt,omitempty"`
	Unread      int       `json:"unread,omitempty"`
}
