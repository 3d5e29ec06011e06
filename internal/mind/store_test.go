package mind

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/velvet/datastore"
)

func TestScopeIDModes(t *testing.T) {
	perUser := newTestStore(t, true, 10)
	shared := newTestStore(t, false, 10)

	assert.Equal(t, "u1", perUser.ScopeID("u1"))
	assert.Equal(t, SharedScopeID, shared.ScopeID("u1"))
	assert.Equal(t, SharedScopeID, shared.ScopeID("u2"))
}

func TestAppendTurnTrimsOldestFirst(t *testing.T) {
	s := newTestStore(t, false, 3)
	for i, text := range []string{"one", "two", "three", "four"} {
		s.AppendTurn(SharedScopeID, Turn{Role: RoleUser, Speaker: "ana", Text: text, At: time.Now().Add(time.Duration(i) * time.Second)})
	}

	turns := s.Turns(SharedScopeID)
	require.Len(t, turns, 3)
	assert.Equal(t, "two", turns[0].Text)
	assert.Equal(t, "four", turns[2].Text)
}

func TestRegisterIdentityLabelHistory(t *testing.T) {
	s := newTestStore(t, false, 10)

	s.RegisterIdentity(SharedScopeID, "u1", "Ana")
	s.RegisterIdentity(SharedScopeID, "u1", "Ana")       // no change
	s.RegisterIdentity(SharedScopeID, "u1", "Ana la Ñ") // rename
	s.RegisterIdentity(SharedScopeID, "u1", "Ana")       // rename back
	s.RegisterIdentity(SharedScopeID, "u1", "Ana la Ñ") // and again

	rec := s.Memory(SharedScopeID).Identities["u1"]
	require.NotNil(t, rec)
	assert.Equal(t, "Ana la Ñ", rec.CurrentLabel)
	assert.Equal(t, []string{"Ana", "Ana la Ñ"}, rec.PriorLabels, "prior labels deduplicated")
}

func TestCorruptDocumentsLoadEmpty(t *testing.T) {
	dir := t.TempDir()
	historyPath := filepath.Join(dir, "history.json")
	memoryPath := filepath.Join(dir, "memory.json")
	require.NoError(t, os.WriteFile(historyPath, []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(memoryPath, []byte("also not json]"), 0644))

	history, err := datastore.New(historyPath)
	require.NoError(t, err, "corrupt history must not be fatal")
	memory, err := datastore.New(memoryPath)
	require.NoError(t, err, "corrupt memory must not be fatal")
	t.Cleanup(func() {
		history.Close()
		memory.Close()
	})

	s := NewStore(history, memory, false, 10)
	assert.Empty(t, s.Turns(SharedScopeID))
	mem := s.Memory(SharedScopeID)
	assert.Empty(t, mem.Summaries)
	assert.Empty(t, mem.Facts)
	assert.NotNil(t, mem.Identities)
}

func TestStateSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	history, err := datastore.New(filepath.Join(dir, "history.json"))
	require.NoError(t, err)
	memory, err := datastore.New(filepath.Join(dir, "memory.json"))
	require.NoError(t, err)

	s := NewStore(history, memory, true, 10)
	s.AppendTurn("u1", Turn{Role: RoleUser, Speaker: "Ana", Text: "hello", At: at})
	s.SetMemory("u1", LongTermMemory{
		Summaries:  []string{"Ana said hello"},
		Facts:      []string{"Ana exists"},
		Identities: map[string]*IdentityRecord{"u1": {CurrentLabel: "Ana"}},
	})
	require.NoError(t, history.Close())
	require.NoError(t, memory.Close())

	history2, err := datastore.New(filepath.Join(dir, "history.json"))
	require.NoError(t, err)
	memory2, err := datastore.New(filepath.Join(dir, "memory.json"))
	require.NoError(t, err)
	t.Cleanup(func() {
		history2.Close()
		memory2.Close()
	})

	s2 := NewStore(history2, memory2, true, 10)
	turns := s2.Turns("u1")
	require.Len(t, turns, 1)
	assert.Equal(t, "hello", turns[0].Text)
	assert.True(t, turns[0].At.Equal(at))

	mem := s2.Memory("u1")
	assert.Equal(t, []string{"Ana said hello"}, mem.Summaries)
	assert.Equal(t, "Ana", mem.Identities["u1"].CurrentLabel)
}

func TestNormalizeCapsOverlongState(t *testing.T) {
	dir := t.TempDir()
	historyPath := filepath.Join(dir, "history.json")
	memoryPath := filepath.Join(dir, "memory.json")

	// A previous deployment with larger caps left oversized documents behind.
	require.NoError(t, os.WriteFile(memoryPath, []byte(`{
		"shared": {
			"summaries": ["s1","s2","s3","s4","s5"],
			"facts": ["f1","f2","f3","f4","f5","f6","f7","f8","f9","f10","f11","f12"],
			"identities": {}
		}
	}`), 0644))
	require.NoError(t, os.WriteFile(historyPath, []byte(`{"shared": []}`), 0644))

	history, err := datastore.New(historyPath)
	require.NoError(t, err)
	memory, err := datastore.New(memoryPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		history.Close()
		memory.Close()
	})

	s := NewStore(history, memory, false, 10)
	mem := s.Memory(SharedScopeID)
	assert.Equal(t, []string{"s3", "s4", "s5"}, mem.Summaries)
	assert.Len(t, mem.Facts, MaxFacts)
	assert.Equal(t, "f12", mem.Facts[len(mem.Facts)-1])
}
