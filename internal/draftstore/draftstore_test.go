package draftstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionDraft struct {
	SessionName string `json:"session_name"`
	SubjectID   string `json:"subject_id"`
	Notes       string `json:"notes"`
}

func newStore(t *testing.T) (*Store, *test.Hook) {
	logger, hook := test.NewNullLogger()
	store, err := New(t.TempDir(), logger)
	require.NoError(t, err)
	return store, hook
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	draft := sessionDraft{SessionName: "Morning Walk", SubjectID: "subj-1", Notes: "baseline"}

	require.NoError(t, store.Save("session-form", draft))

	var loaded sessionDraft
	found, err := store.Load("session-form", &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, draft, loaded)
}

func TestStore_AbsentDraftIsNormal(t *testing.T) {
	store, _ := newStore(t)

	var loaded sessionDraft
	found, err := store.Load("never-saved", &loaded)

	require.NoError(t, err, "a missing draft is an initial state, not an error")
	assert.False(t, found)
}

func TestStore_MalformedBlobTreatedAsAbsent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dir := t.TempDir()
	store, err := New(dir, logger)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	var loaded sessionDraft
	found, err := store.Load("broken", &loaded)

	require.NoError(t, err)
	assert.False(t, found)

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Save("draft", sessionDraft{SessionName: "x"}))
	require.NoError(t, store.Delete("draft"))
	require.NoError(t, store.Delete("draft"))

	var loaded sessionDraft
	found, err := store.Load("draft", &loaded)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Keys(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Save("a", sessionDraft{}))
	require.NoError(t, store.Save("b", sessionDraft{}))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestStore_KeySanitization(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Save("../escape/attempt", sessionDraft{SessionName: "x"}))

	var loaded sessionDraft
	found, err := store.Load("../escape/attempt", &loaded)
	require.NoError(t, err)
	assert.True(t, found, "sanitized keys must still round-trip")
}
