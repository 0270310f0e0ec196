// Package conversation owns the chat conversation collection, the live
// message view of the current conversation, and its durable persistence.
package conversation

import (
	"encoding/json"
	"fmt"
	"time"
)

// SentinelTitle is the title of a conversation that has no user message yet.
const SentinelTitle = "新对话"

// DefaultStorageKey is the durable-storage key the collection is written under.
const DefaultStorageKey = "wisestar_conversations"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MetadataType tags the shape of Metadata.Data.
type MetadataType string

const (
	MetadataSolve      MetadataType = "solve_result"
	MetadataGenerate   MetadataType = "generate_result"
	MetadataStatistics MetadataType = "statistics"
	MetadataError      MetadataType = "error"
)

// Metadata describes a rich result attached to a message. Data is kept as
// raw JSON so the collection round-trips through storage byte for byte.
type Metadata struct {
	Type MetadataType    `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMetadata marshals data into a Metadata of the given type.
func NewMetadata(t MetadataType, data any) (*Metadata, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s metadata: %w", t, err)
	}
	return &Metadata{Type: t, Data: raw}, nil
}

// Message is one entry of a conversation. ID and Timestamp are assigned by
// the Store on append; values supplied by the caller are overwritten.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Image     string    `json:"image,omitempty"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// MessagePatch carries the fields UpdateMessage merges into a message.
// Nil fields are left untouched.
type MessagePatch struct {
	Content  *string   `json:"content,omitempty"`
	Image    *string   `json:"image,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Conversation is a titled, ordered sequence of messages.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Messages  []Message  `json:"messages"`
}

func (c Conversation) clone() Conversation {
	out := c
	if c.UpdatedAt != nil {
		t := *c.UpdatedAt
		out.UpdatedAt = &t
	}
	out.Messages = cloneMessages(c.Messages)
	return out
}

func cloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.clone()
	}
	return out
}

func (m Message) clone() Message {
	if m.Metadata != nil {
		md := *m.Metadata
		m.Metadata = &md
	}
	return m
}

func (m *Message) apply(p MessagePatch) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Image != nil {
		m.Image = *p.Image
	}
	if p.Metadata != nil {
		md := *p.Metadata
		m.Metadata = &md
	}
}
