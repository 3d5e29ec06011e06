package datastore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/velvet/internal/audit"
)

func newStore(t *testing.T, path string) *DataStore {
	t.Helper()
	cfg := DefaultConfig(path)
	cfg.BackupCount = 0
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestSetGetDelete(t *testing.T) {
	ds := newStore(t, filepath.Join(t.TempDir(), "store.json"))

	ds.Set("a", json.RawMessage(`{"n":1}`))
	v, ok := ds.Get("a")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, string(v))

	ds.Delete("a")
	_, ok = ds.Get("a")
	assert.False(t, ok)

	_, ok = ds.Get("missing")
	assert.False(t, ok)
}

func TestPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	ds := newStore(t, path)
	ds.Set("turns", json.RawMessage(`["uno","dos"]`))
	require.NoError(t, ds.Close())

	ds2 := newStore(t, path)
	v, ok := ds2.Get("turns")
	require.True(t, ok)
	assert.JSONEq(t, `["uno","dos"]`, string(v))
	assert.ElementsMatch(t, []string{"turns"}, ds2.Keys())
}

func TestCorruptFileStartsEmptyAndIsMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"broken":`), 0644))

	ds := newStore(t, path)
	assert.Empty(t, ds.Keys())

	aside, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, aside, 1, "corrupt file preserved for inspection")

	b, err := os.ReadFile(aside[0])
	require.NoError(t, err)
	assert.Equal(t, `{"broken":`, string(b))

	// The store works normally afterwards.
	ds.Set("k", json.RawMessage(`true`))
	require.NoError(t, ds.SaveToFile())
}

func TestWritesIgnoredAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ds := newStore(t, path)

	ds.Set("kept", json.RawMessage(`1`))
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close(), "double close")

	ds.Set("dropped", json.RawMessage(`2`))
	ds.Delete("kept")
	assert.Error(t, ds.SaveToFile())

	ds2 := newStore(t, path)
	_, ok := ds2.Get("kept")
	assert.True(t, ok, "pre-close state survived")
	_, ok = ds2.Get("dropped")
	assert.False(t, ok, "post-close write discarded")
}

func TestUnchangedPayloadSkipsRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ds := newStore(t, path)

	ds.Set("k", json.RawMessage(`"v"`))
	require.NoError(t, ds.SaveToFile())

	before, err := os.Stat(path)
	require.NoError(t, err)

	// No mutation between flushes: the file must not be rewritten.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ds.SaveToFile())

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestOnSaveFiresPerSuccessfulWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	cfg := DefaultConfig(path)
	cfg.BackupCount = 0
	saves := 0
	cfg.OnSave = func() { saves++ }
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)

	ds.Set("k", json.RawMessage(`1`))
	require.NoError(t, ds.SaveToFile())
	assert.Equal(t, 1, saves)

	// Unchanged payload: flush skipped, hook not fired.
	require.NoError(t, ds.SaveToFile())
	assert.Equal(t, 1, saves)

	ds.Set("k", json.RawMessage(`2`))
	require.NoError(t, ds.Close())
	assert.Equal(t, 2, saves, "final flush on close fires the hook")
}

func TestFlushRecordsPersistEvent(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "events.log")
	al := audit.New(auditPath)

	cfg := DefaultConfig(filepath.Join(dir, "store.json"))
	cfg.BackupCount = 0
	cfg.OnSave = func() {
		al.Record(audit.TypePersist, map[string]any{"document": "history"})
	}
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)

	ds.Set("k", json.RawMessage(`true`))
	require.NoError(t, ds.Close())
	al.Close()

	b, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "[PERSIST]")
	assert.Contains(t, string(b), `"document":"history"`)
}

func TestBackupsAreCreatedAndPruned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	cfg := DefaultConfig(path)
	cfg.BackupCount = 1
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	ds.Set("a", json.RawMessage(`1`))
	require.NoError(t, ds.SaveToFile())
	ds.Set("b", json.RawMessage(`2`))
	require.NoError(t, ds.SaveToFile())
	ds.Set("c", json.RawMessage(`3`))
	require.NoError(t, ds.SaveToFile())

	backups, err := filepath.Glob(path + ".backup.*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), 1)
	assert.NotEmpty(t, backups, "latest backup kept")
}
