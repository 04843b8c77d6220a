package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/profiles"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	require.NoError(t, store.Save("answer", map[string]int{"value": 42}))

	var got map[string]int
	ok, err := store.Load("answer", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42, got["value"])
}

func TestFileStoreMissingKey(t *testing.T) {
	store := NewFileStore(t.TempDir())

	var got map[string]int
	ok, err := store.Load("nothing", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{nope"), 0644))

	var got map[string]int
	_, err := store.Load("bad", &got)
	require.Error(t, err)
}

func TestSnapshotterColdStartOnCorruptData(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ThreadsKey+".json"), []byte("not json"), 0644))

	snap := NewSnapshotter(NewFileStore(dir))

	require.Nil(t, snap.LoadThreads())
	require.True(t, snap.LoadProfile().IsZero())
}

func TestSnapshotterThreadRoundTrip(t *testing.T) {
	snap := NewSnapshotter(NewMemoryStore())

	thread := conversation.NewChatThread("gemini-3-flash-preview", "Yeni Sohbet")
	thread.Messages = append(thread.Messages,
		conversation.NewMessage(conversation.RoleUser, "hi"),
		conversation.NewMessage(conversation.RoleAssistant, "hello"),
	)
	snap.SaveThreads([]*conversation.ChatThread{thread})

	restored := snap.LoadThreads()
	require.Len(t, restored, 1)
	require.Equal(t, thread.ID, restored[0].ID)
	require.Len(t, restored[0].Messages, 2)
	require.Equal(t, "hello", restored[0].Messages[1].Content)
}

func TestSnapshotterProfileRoundTrip(t *testing.T) {
	snap := NewSnapshotter(NewMemoryStore())

	snap.SaveProfile(profiles.UserProfile{Name: "Ayşe", Preferences: "tea"})

	got := snap.LoadProfile()
	require.Equal(t, "Ayşe", got.Name)
	require.Equal(t, "tea", got.Preferences)
}
