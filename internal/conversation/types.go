// Package conversation stores question/answer turns as one JSON file per
// conversation plus a denormalized index used for listing.
package conversation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned for unknown, unreadable or corrupt conversations.
	ErrNotFound = errors.New("conversation not found")
	// ErrValidation is returned for malformed messages.
	ErrValidation = errors.New("invalid message")
	// ErrUnsupportedFormat is returned by Export for unknown formats.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrIndexWrite reports that a conversation file was written but the index
	// could not be updated. The entry is repaired on the next List.
	ErrIndexWrite = errors.New("conversation index update failed")
)

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// Message is one immutable turn.
type Message struct {
	ID             string         `json:"id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	ProcessingTime *float64       `json:"processing_time,omitempty"`
	ChartData      map[string]any `json:"chart_data,omitempty"`
}

// NewMessage is the caller-supplied part of a Message.
type NewMessage struct {
	Role           Role
	Content        string
	ProcessingTime *float64
	ChartData      map[string]any
}

// Conversation is the full contents of one conversation file.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DatasetID string    `json:"dataset_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// IndexEntry summarizes a conversation for listing.
type IndexEntry struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DatasetID    string    `json:"dataset_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

func (c *Conversation) entry() IndexEntry {
	return IndexEntry{
		ID:           c.ID,
		Title:        c.Title,
		DatasetID:    c.DatasetID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}

// indexFile is the on-disk index.
type indexFile struct {
	Conversations []IndexEntry `json:"conversations"`
	Current       *string      `json:"current_conversation"`
}

func (ix indexFile) clone() indexFile {
	out := indexFile{Conversations: append([]IndexEntry(nil), ix.Conversations...)}
	if ix.Current != nil {
		cur := *ix.Current
		out.Current = &cur
	}
	if out.Conversations == nil {
		out.Conversations = []IndexEntry{}
	}
	return out
}

func (ix indexFile) find(id string) int {
	for i, e := range ix.Conversations {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (ix *indexFile) upsert(e IndexEntry) {
	if i := ix.find(e.ID); i >= 0 {
		ix.Conversations[i] = e
		return
	}
	ix.Conversations = append(ix.Conversations, e)
}

// remove drops id and moves the current pointer to the first remaining entry
// when id was current.
func (ix *indexFile) remove(id string) bool {
	i := ix.find(id)
	if i < 0 {
		return false
	}
	ix.Conversations = append(ix.Conversations[:i], ix.Conversations[i+1:]...)
	if ix.Current != nil && *ix.Current == id {
		ix.Current = nil
		if len(ix.Conversations) > 0 {
			first := ix.Conversations[0].ID
			ix.Current = &first
		}
	}
	return true
}
