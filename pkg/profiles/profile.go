package profiles

import (
	"sync"
)

// Sentinel values the memory-extraction model emits when a field was not
// mentioned in the conversation window. They mean "keep the current value",
// never "erase it".
const (
	SentinelUnknownName = "Unknown"
	SentinelNoPrefs     = "None"
)

// UserProfile is the small persisted memory used to personalize future
// system prompts. Empty fields mean "not learned yet".
type UserProfile struct {
	Name        string `json:"name,omitempty"`
	Preferences string `json:"preferences,omitempty"`
}

func (p UserProfile) IsZero() bool {
	return p.Name == "" && p.Preferences == ""
}

func (p UserProfile) Equal(other UserProfile) bool {
	return p.Name == other.Name && p.Preferences == other.Preferences
}

// Merge folds a freshly extracted profile into the current one. Sentinel
// values and empty strings preserve the current field rather than
// overwriting it, so memory only ever accumulates or is rewritten with
// real content.
func Merge(extracted UserProfile, current UserProfile) UserProfile {
	out := current
	if extracted.Name != "" && extracted.Name != SentinelUnknownName {
		out.Name = extracted.Name
	}
	if extracted.Preferences != "" && extracted.Preferences != SentinelNoPrefs {
		out.Preferences = extracted.Preferences
	}
	return out
}

// ProfileStore holds the process-wide user profile. It is written only by
// the orchestrator's memory-update background task and read by every
// streamed chat request, so access is lock-guarded.
type ProfileStore struct {
	mu       sync.RWMutex
	profile  UserProfile
	onChange func()
}

type ProfileStoreOption func(*ProfileStore)

// WithProfile seeds the store, typically from a persisted snapshot.
func WithProfile(profile UserProfile) ProfileStoreOption {
	return func(s *ProfileStore) {
		s.profile = profile
	}
}

// WithProfileOnChange registers a hook invoked after every replacement,
// outside the store lock.
func WithProfileOnChange(fn func()) ProfileStoreOption {
	return func(s *ProfileStore) {
		s.onChange = fn
	}
}

func NewProfileStore(options ...ProfileStoreOption) *ProfileStore {
	ret := &ProfileStore{}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *ProfileStore) Get() UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Replace stores the profile if it differs from the current one. Returns
// true when a change was applied.
func (s *ProfileStore) Replace(profile UserProfile) bool {
	s.mu.Lock()
	if s.profile.Equal(profile) {
		s.mu.Unlock()
		return false
	}
	s.profile = profile
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange()
	}
	return true
}
