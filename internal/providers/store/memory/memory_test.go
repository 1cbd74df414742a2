package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/store"
)

func TestStore_UpsertAndGetCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	call := store.Call{ID: "call-1", Status: store.StatusInProgress}
	require.NoError(t, s.UpsertCall(ctx, call))

	got, err := s.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, got.Status)
}

func TestStore_UpsertCall_Overwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertCall(ctx, store.Call{ID: "call-1", Status: store.StatusQueued}))
	require.NoError(t, s.UpsertCall(ctx, store.Call{ID: "call-1", Status: store.StatusCompleted}))

	got, err := s.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
}

func TestStore_GetCall_NotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	_, err := s.GetCall(ctx, "missing")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStore_GetCallByCarrierID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertCall(ctx, store.Call{
		ID:          "call-1",
		Status:      store.StatusQueued,
		CarrierMeta: map[string]string{"carrierCallId": "CA123"},
	}))

	got, err := s.GetCallByCarrierID(ctx, "CA123")
	require.NoError(t, err)
	assert.Equal(t, "call-1", got.ID)
}

func TestStore_GetCallByCarrierID_NotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	_, err := s.GetCallByCarrierID(ctx, "CA999")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStore_AppendAndListMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.AppendMessage(ctx, store.Message{CallID: "call-1", Role: store.RoleUser, Content: "hello"}))
	require.NoError(t, s.AppendMessage(ctx, store.Message{CallID: "call-1", Role: store.RoleAssistant, Content: "hi there"}))

	msgs, err := s.ListMessages(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi there", msgs[1].Content)
}

func TestStore_ListMessages_UnknownCallReturnsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	msgs, err := s.ListMessages(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
