package chat

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/inference"
	"github.com/go-go-golems/parley/pkg/profiles"
)

type fakeStream struct {
	fragments []string
	idx       int
	failAfter int // fail once this many fragments were delivered, -1 = never
	err       error
	unblock   chan struct{} // if set, Recv blocks until closed
}

func (s *fakeStream) Recv() (string, error) {
	if s.unblock != nil {
		<-s.unblock
	}
	if s.failAfter >= 0 && s.idx == s.failAfter {
		return "", s.err
	}
	if s.idx >= len(s.fragments) {
		return "", io.EOF
	}
	frag := s.fragments[s.idx]
	s.idx++
	return frag, nil
}

func (s *fakeStream) Close() {}

type fakeClient struct {
	mu sync.Mutex

	fragments []string
	openErr   error
	failAfter int
	streamErr error
	unblock   chan struct{}

	title      string
	titleCalls int

	memoryResult   profiles.UserProfile
	memoryCalls    int
	memoryExchange []*conversation.Message
}

func newFakeClient(fragments ...string) *fakeClient {
	return &fakeClient{
		fragments: fragments,
		failAfter: -1,
		title:     "Tides Explained",
	}
}

func (c *fakeClient) StreamChat(_ context.Context, _ inference.ChatRequest) (inference.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	return &fakeStream{
		fragments: c.fragments,
		failAfter: c.failAfter,
		err:       c.streamErr,
		unblock:   c.unblock,
	}, nil
}

func (c *fakeClient) GenerateTitle(_ context.Context, _ string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titleCalls++
	return c.title
}

func (c *fakeClient) UpdateMemory(_ context.Context, messages []*conversation.Message, current profiles.UserProfile) profiles.UserProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryCalls++
	c.memoryExchange = messages
	if c.memoryResult.IsZero() {
		return current
	}
	return profiles.Merge(c.memoryResult, current)
}

var _ inference.Client = (*fakeClient)(nil)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) PublishEvent(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) completions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if p, ok := e.(*events.EventPartialCompletion); ok {
			out = append(out, p.Completion)
		}
	}
	return out
}

func (s *recordingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.EventType
	for _, e := range s.events {
		out = append(out, e.Type())
	}
	return out
}

func newTestOrchestrator(client inference.Client, sink events.EventSink) (*Orchestrator, *conversation.ThreadStore, *profiles.ProfileStore) {
	store := conversation.NewThreadStore()
	profileStore := profiles.NewProfileStore()
	orch := NewOrchestrator(store, profileStore, client,
		WithDefaultModel("gemini-3-flash-preview"),
		WithSinks(sink),
	)
	return orch, store, profileStore
}

func TestSendMessageStreamsIntoPlaceholder(t *testing.T) {
	client := newFakeClient("Hel", "lo, ", "world")
	sink := &recordingSink{}
	orch, store, _ := newTestOrchestrator(client, sink)

	threadID, err := orch.SendMessage(context.Background(), "say hello")
	require.NoError(t, err)
	orch.Wait()

	thread, ok := store.Thread(threadID)
	require.True(t, ok)
	require.Len(t, thread.Messages, 2)
	require.Equal(t, conversation.RoleUser, thread.Messages[0].Role)
	require.Equal(t, "say hello", thread.Messages[0].Content)
	require.Equal(t, conversation.RoleAssistant, thread.Messages[1].Role)
	require.Equal(t, "Hello, world", thread.Messages[1].Content)
	require.False(t, thread.Messages[1].IsError)

	require.Equal(t, []string{"Hel", "Hello, ", "Hello, world"}, sink.completions(),
		"intermediate states observed in order, never regressing")
	types := sink.types()
	require.Equal(t, events.EventTypeStart, types[0])
	require.Equal(t, events.EventTypeFinal, types[len(types)-1])
}

func TestSendMessageCreatesThreadLazily(t *testing.T) {
	client := newFakeClient("hi")
	orch, store, _ := newTestOrchestrator(client, events.NullSink{})

	_, ok := store.ActiveThreadID()
	require.False(t, ok)

	threadID, err := orch.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	orch.Wait()

	active, ok := store.ActiveThreadID()
	require.True(t, ok)
	require.Equal(t, threadID, active)

	thread, _ := store.Thread(threadID)
	require.Equal(t, "gemini-3-flash-preview", thread.Model)
}

func TestFirstMessageTriggersExactlyOneTitleCall(t *testing.T) {
	client := newFakeClient("ok")
	orch, store, _ := newTestOrchestrator(client, events.NullSink{})

	threadID, err := orch.SendMessage(context.Background(), "what are tides?")
	require.NoError(t, err)
	orch.Wait()

	_, err = orch.SendMessage(context.Background(), "and currents?")
	require.NoError(t, err)
	orch.Wait()

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Equal(t, 1, client.titleCalls)

	thread, _ := store.Thread(threadID)
	require.Equal(t, "Tides Explained", thread.Title)
}

func TestStreamFailureMarksAssistantMessage(t *testing.T) {
	client := newFakeClient("partial ")
	client.failAfter = 1
	client.streamErr = errors.New("connection reset")
	sink := &recordingSink{}
	orch, store, _ := newTestOrchestrator(client, sink)

	threadID, err := orch.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	orch.Wait()

	thread, _ := store.Thread(threadID)
	require.Len(t, thread.Messages, 2)
	require.Equal(t, "hello", thread.Messages[0].Content, "user message is not rolled back")
	require.True(t, thread.Messages[1].IsError)
	require.Equal(t, StreamFailureNotice, thread.Messages[1].Content)

	types := sink.types()
	require.Equal(t, events.EventTypeError, types[len(types)-1])

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Equal(t, 0, client.memoryCalls, "no memory update after a failed turn")
}

func TestStreamOpenFailureMarksAssistantMessage(t *testing.T) {
	client := newFakeClient()
	client.openErr = errors.New("service unavailable")
	orch, store, _ := newTestOrchestrator(client, events.NullSink{})

	threadID, err := orch.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	orch.Wait()

	thread, _ := store.Thread(threadID)
	require.True(t, thread.Messages[1].IsError)
	require.Equal(t, StreamFailureNotice, thread.Messages[1].Content)
}

func TestMemoryUpdateRunsAfterCompletion(t *testing.T) {
	client := newFakeClient("sure, hiking it is")
	client.memoryResult = profiles.UserProfile{
		Name:        profiles.SentinelUnknownName,
		Preferences: "loves hiking",
	}
	orch, _, profileStore := newTestOrchestrator(client, events.NullSink{})
	profileStore.Replace(profiles.UserProfile{Name: "Ayşe"})

	_, err := orch.SendMessage(context.Background(), "I love hiking")
	require.NoError(t, err)
	orch.Wait()

	profile := profileStore.Get()
	require.Equal(t, "Ayşe", profile.Name, "sentinel preserved existing name")
	require.Equal(t, "loves hiking", profile.Preferences)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Equal(t, 1, client.memoryCalls)
	require.Len(t, client.memoryExchange, 2, "user message plus final assistant message")
	require.Equal(t, "I love hiking", client.memoryExchange[0].Content)
	require.Equal(t, "sure, hiking it is", client.memoryExchange[1].Content)
}

func TestConcurrentSendOnSameThreadIsRejected(t *testing.T) {
	client := newFakeClient("slow answer")
	client.unblock = make(chan struct{})
	orch, _, _ := newTestOrchestrator(client, events.NullSink{})

	threadID, err := orch.SendMessage(context.Background(), "first")
	require.NoError(t, err)

	_, err = orch.SendMessage(context.Background(), "second")
	require.ErrorIs(t, err, ErrSendInFlight)

	close(client.unblock)
	orch.Wait()

	// once the stream has drained, the thread accepts sends again
	followUpID, err := orch.SendMessage(context.Background(), "third")
	require.NoError(t, err)
	require.Equal(t, threadID, followUpID)
	orch.Wait()
}

func TestThreadDeletedMidStreamIsAbandoned(t *testing.T) {
	client := newFakeClient("never lands")
	client.unblock = make(chan struct{})
	orch, store, _ := newTestOrchestrator(client, events.NullSink{})

	threadID, err := orch.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	store.DeleteThread(threadID)
	close(client.unblock)
	orch.Wait()

	require.Empty(t, store.Threads())
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Equal(t, 0, client.memoryCalls, "abandoned turns do not update memory")
}

func TestSecondExchangeCarriesHistory(t *testing.T) {
	client := newFakeClient("answer")
	orch, _, _ := newTestOrchestrator(client, events.NullSink{})

	_, err := orch.SendMessage(context.Background(), "one")
	require.NoError(t, err)
	orch.Wait()

	_, err = orch.SendMessage(context.Background(), "two")
	require.NoError(t, err)
	orch.Wait()

	client.mu.Lock()
	defer client.mu.Unlock()
	// prior history (2) + new user message + final assistant message
	require.Len(t, client.memoryExchange, 4)
	require.Equal(t, "one", client.memoryExchange[0].Content)
	require.Equal(t, "answer", client.memoryExchange[1].Content)
	require.Equal(t, "two", client.memoryExchange[2].Content)
}

func TestAttachmentsBecomeMessageParts(t *testing.T) {
	client := newFakeClient("nice picture")
	orch, store, _ := newTestOrchestrator(client, events.NullSink{})

	threadID, err := orch.SendMessage(context.Background(), "look",
		conversation.InlineData{MIMEType: "image/png", Data: []byte{0x89}})
	require.NoError(t, err)
	orch.Wait()

	thread, _ := store.Thread(threadID)
	userMsg := thread.Messages[0]
	require.Len(t, userMsg.Parts, 2)
	require.Equal(t, "look", userMsg.Parts[0].Text)
	require.NotNil(t, userMsg.Parts[1].InlineData)
	require.Equal(t, "image/png", userMsg.Parts[1].InlineData.MIMEType)
}
