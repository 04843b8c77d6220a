package conversation

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrThreadEmpty    = errors.New("thread has no messages")
)

// ThreadStore owns the collection of chat threads and the active-thread
// pointer. It is the only legal writer of thread state: every mutation goes
// through one of its operations under the store lock, so the main send path
// and detached background tasks (title generation, memory extraction) can
// touch the collection without corrupting it.
//
// Reads return clones. Callers never share mutable state with the store.
type ThreadStore struct {
	mu       sync.RWMutex
	threads  []*ChatThread
	activeID *NodeID
	onChange func()
}

type ThreadStoreOption func(*ThreadStore)

// WithThreads seeds the store with an existing collection, selecting the
// first thread as active. Used when restoring a persisted snapshot.
func WithThreads(threads []*ChatThread) ThreadStoreOption {
	return func(s *ThreadStore) {
		s.threads = threads
		if len(threads) > 0 {
			id := threads[0].ID
			s.activeID = &id
		}
	}
}

// WithOnChange registers a hook invoked after every successful mutation,
// outside the store lock. Used to flush snapshots to persistence.
func WithOnChange(fn func()) ThreadStoreOption {
	return func(s *ThreadStore) {
		s.onChange = fn
	}
}

func NewThreadStore(options ...ThreadStoreOption) *ThreadStore {
	ret := &ThreadStore{}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// CreateThread inserts a fresh thread at the head of the collection and
// selects it as active.
func (s *ThreadStore) CreateThread(model string, title string) *ChatThread {
	thread := NewChatThread(model, title)

	s.mu.Lock()
	s.threads = append([]*ChatThread{thread.Clone()}, s.threads...)
	id := thread.ID
	s.activeID = &id
	s.mu.Unlock()

	log.Debug().Str("thread_id", thread.ID.String()).Str("model", model).Msg("created thread")
	s.notify()
	return thread
}

// DeleteThread removes the thread. If it was active, selection falls back to
// the new head of the collection, or to nothing if the collection is empty.
// Deleting an unknown thread is a no-op.
func (s *ThreadStore) DeleteThread(id NodeID) {
	s.mu.Lock()
	filtered := make([]*ChatThread, 0, len(s.threads))
	found := false
	for _, t := range s.threads {
		if t.ID == id {
			found = true
			continue
		}
		filtered = append(filtered, t)
	}
	if !found {
		s.mu.Unlock()
		return
	}
	s.threads = filtered
	if s.activeID != nil && *s.activeID == id {
		if len(filtered) > 0 {
			newActive := filtered[0].ID
			s.activeID = &newActive
		} else {
			s.activeID = nil
		}
	}
	s.mu.Unlock()

	log.Debug().Str("thread_id", id.String()).Msg("deleted thread")
	s.notify()
}

// SelectThread makes the identified thread active.
func (s *ThreadStore) SelectThread(id NodeID) error {
	s.mu.Lock()
	if s.lookup(id) == nil {
		s.mu.Unlock()
		return errors.Wrapf(ErrThreadNotFound, "select %s", id)
	}
	s.activeID = &id
	s.mu.Unlock()

	s.notify()
	return nil
}

// AppendMessage appends a message to the identified thread. A missing thread
// indicates a stale reference held by the caller; it is logged and reported
// but does not mutate anything.
func (s *ThreadStore) AppendMessage(threadID NodeID, msg *Message) error {
	s.mu.Lock()
	thread := s.lookup(threadID)
	if thread == nil {
		s.mu.Unlock()
		log.Error().Str("thread_id", threadID.String()).Msg("append to unknown thread, stale reference?")
		return errors.Wrapf(ErrThreadNotFound, "append to %s", threadID)
	}
	thread.Messages = append(thread.Messages, msg.Clone())
	s.mu.Unlock()

	s.notify()
	return nil
}

// UpdateLastMessageContent replaces the content of the final message in the
// identified thread. This is how streaming deltas land in the in-progress
// assistant message: the orchestrator passes the full accumulated text, so
// the visible content only ever grows.
func (s *ThreadStore) UpdateLastMessageContent(threadID NodeID, content string) error {
	return s.updateLast(threadID, func(m *Message) {
		m.Content = content
	})
}

// MarkLastMessageError replaces the final message's content with the given
// failure notice and flags it as an error.
func (s *ThreadStore) MarkLastMessageError(threadID NodeID, notice string) error {
	return s.updateLast(threadID, func(m *Message) {
		m.Content = notice
		m.IsError = true
	})
}

func (s *ThreadStore) updateLast(threadID NodeID, fn func(*Message)) error {
	s.mu.Lock()
	thread := s.lookup(threadID)
	if thread == nil {
		s.mu.Unlock()
		return errors.Wrapf(ErrThreadNotFound, "update last message of %s", threadID)
	}
	if len(thread.Messages) == 0 {
		s.mu.Unlock()
		return errors.Wrapf(ErrThreadEmpty, "update last message of %s", threadID)
	}
	fn(thread.Messages[len(thread.Messages)-1])
	s.mu.Unlock()

	s.notify()
	return nil
}

// UpdateTitle rewrites the thread title. Unknown threads are a silent no-op
// so that the background title task tolerates deletion mid-flight.
func (s *ThreadStore) UpdateTitle(threadID NodeID, title string) {
	s.mu.Lock()
	thread := s.lookup(threadID)
	if thread == nil {
		s.mu.Unlock()
		log.Debug().Str("thread_id", threadID.String()).Msg("title update for deleted thread, dropping")
		return
	}
	thread.Title = title
	s.mu.Unlock()

	s.notify()
}

// Thread returns a clone of the identified thread.
func (s *ThreadStore) Thread(id NodeID) (*ChatThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread := s.lookup(id)
	if thread == nil {
		return nil, false
	}
	return thread.Clone(), true
}

// Threads returns a clone of the full collection, newest-first.
func (s *ThreadStore) Threads() []*ChatThread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ChatThread, len(s.threads))
	for i, t := range s.threads {
		out[i] = t.Clone()
	}
	return out
}

// ActiveThreadID returns the id of the active thread, if any.
func (s *ThreadStore) ActiveThreadID() (NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == nil {
		return NodeID{}, false
	}
	return *s.activeID, true
}

// ActiveThread returns a clone of the active thread, if any.
func (s *ThreadStore) ActiveThread() (*ChatThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == nil {
		return nil, false
	}
	thread := s.lookup(*s.activeID)
	if thread == nil {
		return nil, false
	}
	return thread.Clone(), true
}

// lookup must be called with the lock held.
func (s *ThreadStore) lookup(id NodeID) *ChatThread {
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *ThreadStore) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
