package conversation

import (
	"time"
)

// ChatThread is one persisted conversation: an ordered, append-only list of
// messages plus metadata. The model is fixed at creation time.
type ChatThread struct {
	ID        NodeID     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Model     string     `json:"model"`
	CreatedAt time.Time  `json:"createdAt"`
}

func NewChatThread(model string, title string) *ChatThread {
	return &ChatThread{
		ID:        NewNodeID(),
		Title:     title,
		Messages:  []*Message{},
		Model:     model,
		CreatedAt: time.Now(),
	}
}

func (t *ChatThread) Clone() *ChatThread {
	if t == nil {
		return nil
	}
	out := *t
	out.Messages = make([]*Message, len(t.Messages))
	for i, m := range t.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// LastMessage returns the final message of the thread, or nil if empty.
func (t *ChatThread) LastMessage() *Message {
	if t == nil || len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}
