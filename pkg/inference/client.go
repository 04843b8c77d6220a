package inference

import (
	"context"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/profiles"
)

// Sampling defaults sent with every streamed chat request.
const (
	DefaultTemperature float32 = 0.7
	DefaultTopP        float32 = 0.95
	DefaultTopK        int32   = 40
)

// FallbackTitle is returned by GenerateTitle when the service fails.
const FallbackTitle = "New Chat"

// ChatRequest describes one streamed generation turn. History is the
// thread's messages prior to the new exchange; UserInput and Attachments
// form the new user turn.
type ChatRequest struct {
	Model       string
	History     []*conversation.Message
	UserInput   string
	Profile     profiles.UserProfile
	Attachments []conversation.InlineData
}

// Stream is a finite, non-restartable, ordered sequence of text fragments.
// Recv returns io.EOF after the final fragment. Consumers drain it exactly
// once and call Close when done.
type Stream interface {
	Recv() (string, error)
	Close()
}

// Client is the typed facade toward the generation service. StreamChat may
// fail; the caller converts failures into the in-conversation error notice.
// GenerateTitle and UpdateMemory are best-effort and never fail: they fall
// back to FallbackTitle and the unchanged current profile respectively.
type Client interface {
	StreamChat(ctx context.Context, req ChatRequest) (Stream, error)
	GenerateTitle(ctx context.Context, firstUserMessage string) string
	UpdateMemory(ctx context.Context, messages []*conversation.Message, current profiles.UserProfile) profiles.UserProfile
}
