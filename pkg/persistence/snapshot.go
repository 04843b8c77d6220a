package persistence

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/profiles"
)

// Fixed keys under which the thread collection and the user profile are
// snapshotted.
const (
	ThreadsKey = "chat_threads"
	ProfileKey = "user_profile"
)

// Snapshotter binds the thread collection and the user profile to a Store.
// Loads treat missing or unparseable data as a cold start; saves are
// best-effort and only logged on failure.
type Snapshotter struct {
	store Store
}

func NewSnapshotter(store Store) *Snapshotter {
	return &Snapshotter{store: store}
}

func (s *Snapshotter) LoadThreads() []*conversation.ChatThread {
	var threads []*conversation.ChatThread
	ok, err := s.store.Load(ThreadsKey, &threads)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load saved threads, starting cold")
		return nil
	}
	if !ok {
		return nil
	}
	log.Debug().Int("thread_count", len(threads)).Msg("restored thread snapshot")
	return threads
}

func (s *Snapshotter) LoadProfile() profiles.UserProfile {
	var profile profiles.UserProfile
	ok, err := s.store.Load(ProfileKey, &profile)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load saved profile, starting cold")
		return profiles.UserProfile{}
	}
	if !ok {
		return profiles.UserProfile{}
	}
	return profile
}

func (s *Snapshotter) SaveThreads(threads []*conversation.ChatThread) {
	if err := s.store.Save(ThreadsKey, threads); err != nil {
		log.Warn().Err(err).Msg("failed to save thread snapshot")
	}
}

func (s *Snapshotter) SaveProfile(profile profiles.UserProfile) {
	if err := s.store.Save(ProfileKey, profile); err != nil {
		log.Warn().Err(err).Msg("failed to save profile snapshot")
	}
}
