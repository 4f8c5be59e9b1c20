package filestore

import (
	"context"
	"testing"

	"github.com/omegarun/agentcore/internal/state"
	"github.com/stretchr/testify/require"
)

func TestFilestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	st := state.NewAgentState("agent/with slashes", "ship the feature", nil)
	st.AppendTurn(state.Turn{LlmMessage: &state.LlmDecision{Action: state.ActionFinish}})
	require.NoError(t, store.Save(ctx, st))

	loaded, err := store.Load(ctx, "agent/with slashes")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "ship the feature", loaded.Goal)
	require.Len(t, loaded.Turns, 1)

	require.NoError(t, store.Delete(ctx, "agent/with slashes"))
	gone, err := store.Load(ctx, "agent/with slashes")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestFilestoreLoadMissingReturnsNil(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	got, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, got)
}
