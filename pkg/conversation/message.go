package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

// InlineData carries a binary attachment (images, for now) that is sent
// alongside the message text.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// MessagePart is one element of the multimodal payload sent to the
// generation service. Exactly one of Text or InlineData is set.
type MessagePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

func NewTextPart(text string) MessagePart {
	return MessagePart{Text: text}
}

func NewInlineDataPart(mimeType string, data []byte) MessagePart {
	return MessagePart{InlineData: &InlineData{MIMEType: mimeType, Data: data}}
}

// Message is a single entry in a chat thread. Content is the authoritative
// display text; Parts carries the richer payload sent to the generation
// client. For an assistant message that is still streaming, Content only
// ever grows (the orchestrator applies a monotonic accumulator).
type Message struct {
	ID      NodeID        `json:"id"`
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Time    time.Time     `json:"time"`
	Parts   []MessagePart `json:"parts,omitempty"`
	IsError bool          `json:"isError,omitempty"`
}

type MessageOption func(*Message)

func WithID(id NodeID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func WithParts(parts ...MessagePart) MessageOption {
	return func(m *Message) {
		m.Parts = parts
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      NewNodeID(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Parts != nil {
		out.Parts = make([]MessagePart, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	return &out
}
