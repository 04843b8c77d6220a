package chat

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/inference"
	"github.com/go-go-golems/parley/pkg/profiles"
)

const (
	// DefaultThreadTitle is the placeholder shown until the background
	// title task rewrites it.
	DefaultThreadTitle = "Yeni Sohbet"
	// StreamFailureNotice replaces the assistant message when streaming
	// fails. Shown to the user in-conversation, never retried.
	StreamFailureNotice = "Üzgünüm, isteğinizi işlerken bir hata oluştu."
)

// ErrSendInFlight is returned when a send is issued against a thread whose
// previous response is still streaming.
var ErrSendInFlight = errors.New("a response is already streaming for this thread")

// Orchestrator coordinates one send-message operation: it resolves the
// target thread, appends the user message, streams the assistant response
// into a placeholder message, and fires the detached title and memory
// tasks. The caller does not wait for completion; it observes the
// ThreadStore and the event sinks.
type Orchestrator struct {
	store        *conversation.ThreadStore
	profileStore *profiles.ProfileStore
	client       inference.Client
	sinks        []events.EventSink
	defaultModel string

	mu       sync.Mutex
	inFlight map[conversation.NodeID]bool
	bg       sync.WaitGroup
}

type Option func(*Orchestrator)

// WithSinks registers event sinks that receive the streaming events of
// every turn.
func WithSinks(sinks ...events.EventSink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithDefaultModel sets the model used when a thread has to be created
// lazily on first message.
func WithDefaultModel(model string) Option {
	return func(o *Orchestrator) {
		o.defaultModel = model
	}
}

func NewOrchestrator(
	store *conversation.ThreadStore,
	profileStore *profiles.ProfileStore,
	client inference.Client,
	options ...Option,
) *Orchestrator {
	ret := &Orchestrator{
		store:        store,
		profileStore: profileStore,
		client:       client,
		inFlight:     map[conversation.NodeID]bool{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// SendMessage runs the synchronous pre-flight of one exchange (thread
// resolution, user message append, assistant placeholder append) and then
// streams the response in the background. It returns the target thread id
// so callers can follow the turn through the store or the event sinks.
//
// At most one send may be in flight per thread; concurrent sends return
// ErrSendInFlight.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, attachments ...conversation.InlineData) (conversation.NodeID, error) {
	// Resolve the target thread before any asynchronous work so the UI has
	// an immediate target to render into.
	thread, ok := o.store.ActiveThread()
	if !ok {
		thread = o.store.CreateThread(o.defaultModel, DefaultThreadTitle)
	}

	if !o.acquire(thread.ID) {
		return thread.ID, errors.Wrapf(ErrSendInFlight, "thread %s", thread.ID)
	}

	// History prior to the new exchange, captured before the appends below.
	history := thread.Messages
	isFirstMessage := len(history) == 0

	parts := []conversation.MessagePart{conversation.NewTextPart(text)}
	for _, att := range attachments {
		parts = append(parts, conversation.NewInlineDataPart(att.MIMEType, att.Data))
	}
	userMsg := conversation.NewMessage(conversation.RoleUser, text, conversation.WithParts(parts...))

	if err := o.store.AppendMessage(thread.ID, userMsg); err != nil {
		o.release(thread.ID)
		return thread.ID, errors.Wrap(err, "failed to append user message")
	}

	if isFirstMessage {
		o.spawnTitleTask(ctx, thread.ID, text)
	}

	assistantMsg := conversation.NewMessage(conversation.RoleAssistant, "")
	if err := o.store.AppendMessage(thread.ID, assistantMsg); err != nil {
		o.release(thread.ID)
		return thread.ID, errors.Wrap(err, "failed to append assistant placeholder")
	}

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer o.release(thread.ID)
		o.streamResponse(ctx, thread, history, userMsg, assistantMsg, text, attachments)
	}()

	return thread.ID, nil
}

// Wait blocks until all in-flight streams and background tasks have
// finished. Used for graceful shutdown.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

func (o *Orchestrator) streamResponse(
	ctx context.Context,
	thread *conversation.ChatThread,
	history []*conversation.Message,
	userMsg *conversation.Message,
	assistantMsg *conversation.Message,
	text string,
	attachments []conversation.InlineData,
) {
	metadata := events.EventMetadata{
		ID:        uuid.New(),
		ThreadID:  thread.ID.String(),
		MessageID: assistantMsg.ID.String(),
		Model:     thread.Model,
	}

	stream, err := o.client.StreamChat(ctx, inference.ChatRequest{
		Model:       thread.Model,
		History:     history,
		UserInput:   text,
		Profile:     o.profileStore.Get(),
		Attachments: attachments,
	})
	if err != nil {
		log.Warn().Err(err).Str("thread_id", thread.ID.String()).Msg("failed to open chat stream")
		o.failTurn(thread.ID, metadata, err)
		return
	}
	defer stream.Close()

	o.publishEvent(events.NewStartEvent(metadata))

	completion := ""
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Str("thread_id", thread.ID.String()).Msg("chat stream failed mid-response")
			o.failTurn(thread.ID, metadata, err)
			return
		}

		// Monotonic accumulation: the store always receives the full
		// response-so-far, so the visible text never regresses.
		completion += fragment
		if err := o.store.UpdateLastMessageContent(thread.ID, completion); err != nil {
			// Thread deleted mid-stream; abandon the turn quietly.
			log.Debug().Str("thread_id", thread.ID.String()).Msg("thread gone mid-stream, abandoning turn")
			return
		}
		o.publishEvent(events.NewPartialCompletionEvent(metadata, fragment, completion))
	}

	o.publishEvent(events.NewFinalEvent(metadata, completion))

	finalAssistant := assistantMsg.Clone()
	finalAssistant.Content = completion
	exchange := make([]*conversation.Message, 0, len(history)+2)
	exchange = append(exchange, history...)
	exchange = append(exchange, userMsg, finalAssistant)
	o.spawnMemoryTask(ctx, exchange)
}

// failTurn converts a streaming failure into the fixed in-conversation
// error notice. The preceding user message stays in place and nothing is
// retried.
func (o *Orchestrator) failTurn(threadID conversation.NodeID, metadata events.EventMetadata, cause error) {
	if err := o.store.MarkLastMessageError(threadID, StreamFailureNotice); err != nil {
		log.Debug().Err(err).Str("thread_id", threadID.String()).Msg("could not mark failed turn, thread gone")
	}
	o.publishEvent(events.NewErrorEvent(metadata, cause))
}

// spawnTitleTask derives a short thread title from the first user message.
// Detached from the main flow; a thread deleted in the meantime makes the
// title write a silent no-op.
func (o *Orchestrator) spawnTitleTask(ctx context.Context, threadID conversation.NodeID, firstUserMessage string) {
	taskCtx := context.WithoutCancel(ctx)
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		title := o.client.GenerateTitle(taskCtx, firstUserMessage)
		o.store.UpdateTitle(threadID, title)
	}()
}

// spawnMemoryTask reconciles the user profile from the completed exchange.
// Failures are silent and leave the profile unchanged.
func (o *Orchestrator) spawnMemoryTask(ctx context.Context, exchange []*conversation.Message) {
	taskCtx := context.WithoutCancel(ctx)
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		current := o.profileStore.Get()
		updated := o.client.UpdateMemory(taskCtx, exchange, current)
		if o.profileStore.Replace(updated) {
			log.Debug().Msg("user profile updated from conversation memory")
		}
	}()
}

func (o *Orchestrator) acquire(threadID conversation.NodeID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[threadID] {
		return false
	}
	o.inFlight[threadID] = true
	return true
}

func (o *Orchestrator) release(threadID conversation.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, threadID)
}

func (o *Orchestrator) publishEvent(event events.Event) {
	for _, sink := range o.sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("Failed to publish event to sink")
		}
	}
}
