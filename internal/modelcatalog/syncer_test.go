package modelcatalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
)

type stubLister struct {
	models map[string][]string
	err    error
	calls  []string
}

func (l *stubLister) ListModels(_ context.Context, name, _ string) ([]string, error) {
	l.calls = append(l.calls, name)
	if l.err != nil {
		return nil, l.err
	}
	return l.models[name], nil
}

func TestSyncOnceStoresAvailableProviders(t *testing.T) {
	db := openTestDB(t)
	lister := &stubLister{models: map[string][]string{
		"openai": {"gpt-4", "gpt-3.5-turbo"},
		"ollama": {"llama3.2"},
	}}

	now := time.Now().UTC().Truncate(time.Second)
	syncer := &Syncer{db: db, lister: lister, interval: time.Minute, now: func() time.Time { return now }}

	if errSync := syncer.SyncOnce(context.Background()); errSync != nil {
		t.Fatalf("sync once: %v", errSync)
	}

	// Coming-soon providers are never probed.
	for _, name := range lister.calls {
		info, ok := provider.Lookup(name)
		if !ok {
			t.Fatalf("probed unknown provider %q", name)
		}
		if info.Status != provider.StatusAvailable {
			t.Fatalf("probed coming-soon provider %q", name)
		}
	}

	names, errList := ListModels(context.Background(), db, "openai")
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if len(names) != 2 {
		t.Fatalf("openai names = %v, want 2 entries", names)
	}
}

func TestSyncOnceKeepsSnapshotWhenBackendEmpty(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	if err := StoreModels(context.Background(), db, "ollama", []string{"llama3.2"}, now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// An unreachable local backend reports an empty list; the previous
	// snapshot must survive.
	lister := &stubLister{models: map[string][]string{}}
	syncer := &Syncer{db: db, lister: lister, interval: time.Minute, now: time.Now}
	if errSync := syncer.SyncOnce(context.Background()); errSync != nil {
		t.Fatalf("sync once: %v", errSync)
	}

	names, errList := ListModels(context.Background(), db, "ollama")
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if len(names) != 1 || names[0] != "llama3.2" {
		t.Fatalf("names = %v, want [llama3.2]", names)
	}
}

func TestSyncOnceReportsFirstError(t *testing.T) {
	db := openTestDB(t)
	wantErr := errors.New("backend down")
	syncer := &Syncer{db: db, lister: &stubLister{err: wantErr}, interval: time.Minute, now: time.Now}

	if errSync := syncer.SyncOnce(context.Background()); !errors.Is(errSync, wantErr) {
		t.Fatalf("sync error = %v, want wrapped %v", errSync, wantErr)
	}
}
