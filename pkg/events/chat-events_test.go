package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewEventFromJsonDispatchesPartial(t *testing.T) {
	metadata := EventMetadata{ID: uuid.New(), ThreadID: "t1", MessageID: "m1", Model: "flash"}
	payload, err := json.Marshal(NewPartialCompletionEvent(metadata, "lo, ", "Hello, "))
	require.NoError(t, err)

	decoded, err := NewEventFromJson(payload)
	require.NoError(t, err)

	partial, ok := decoded.(*EventPartialCompletion)
	require.True(t, ok)
	require.Equal(t, "lo, ", partial.Delta)
	require.Equal(t, "Hello, ", partial.Completion)
	require.Equal(t, "t1", partial.Metadata().ThreadID)
}

func TestNewEventFromJsonDispatchesError(t *testing.T) {
	payload := []byte(`{"type":"error","error_string":"boom"}`)

	decoded, err := NewEventFromJson(payload)
	require.NoError(t, err)

	errEvent, ok := decoded.(*EventError)
	require.True(t, ok)
	require.Equal(t, "boom", errEvent.ErrorString)
}

func TestNewEventFromJsonRejectsUnknownType(t *testing.T) {
	_, err := NewEventFromJson([]byte(`{"type":"mystery"}`))
	require.Error(t, err)
}
