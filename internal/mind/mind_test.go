package mind

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/keshon/velvet/datastore"
	"github.com/keshon/velvet/internal/ai"
	"github.com/keshon/velvet/internal/audit"
)

// fakeProvider replays scripted results/errors and records every request.
type fakeProvider struct {
	results []*ai.Result
	errs    []error
	calls   []ai.Request
}

func (f *fakeProvider) Generate(_ context.Context, req ai.Request) (*ai.Result, error) {
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) && f.results[i] != nil {
		return f.results[i], nil
	}
	return &ai.Result{Text: "ok"}, nil
}

func textResult(s string) *ai.Result { return &ai.Result{Text: s} }

func newTestStore(t *testing.T, perUser bool, maxTurns int) *Store {
	t.Helper()
	dir := t.TempDir()
	history, err := datastore.New(filepath.Join(dir, "history.json"))
	if err != nil {
		t.Fatal(err)
	}
	memory, err := datastore.New(filepath.Join(dir, "memory.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		history.Close()
		memory.Close()
	})
	return NewStore(history, memory, perUser, maxTurns)
}

func newTestAudit(t *testing.T) *audit.Log {
	t.Helper()
	l := audit.New(filepath.Join(t.TempDir(), "events.log"))
	t.Cleanup(l.Close)
	return l
}
