package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

func TestSessionStore_PutGet(t *testing.T) {
	st := NewSessionStore()
	require.NoError(t, st.Put(Session{ThreadID: "a", TSG: "one"}))

	got, err := st.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "one", got.TSG)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSessionStore_PutReplaces(t *testing.T) {
	st := NewSessionStore()
	require.NoError(t, st.Put(Session{ThreadID: "a", TSG: "one"}))
	require.NoError(t, st.Put(Session{ThreadID: "b"}))
	require.NoError(t, st.Put(Session{ThreadID: "a", TSG: "two"}))

	got, err := st.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "two", got.TSG)

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ThreadID)
	assert.Equal(t, "b", list[1].ThreadID)
}

func TestSessionStore_RequiresThreadID(t *testing.T) {
	assert.Error(t, NewSessionStore().Put(Session{}))
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	st := NewSessionStore()
	corrected := "fixed"
	require.NoError(t, st.Put(Session{ThreadID: "a", Review: &tsg.Review{
		AccuracyIssues: []string{"x"},
		CorrectedTSG:   &corrected,
	}}))

	got, err := st.Get("a")
	require.NoError(t, err)
	got.Review.AccuracyIssues[0] = "mutated"
	*got.Review.CorrectedTSG = "mutated"

	again, err := st.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Review.AccuracyIssues[0])
	assert.Equal(t, "fixed", *again.Review.CorrectedTSG)
}

func TestSessionStore_Delete(t *testing.T) {
	st := NewSessionStore()
	require.NoError(t, st.Put(Session{ThreadID: "a"}))

	require.NoError(t, st.Delete("a"))
	_, err := st.Get("a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, st.Delete("a"), ErrSessionNotFound)
	assert.Empty(t, st.List())
}
