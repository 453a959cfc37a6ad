package kvstore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestFileStorePutGet(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	if err := store.Put("tokens", `[]`); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	v, ok, err := store.Get("tokens")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok || v != `[]` {
		t.Errorf("Get = %q, %v; want [] true", v, ok)
	}

	_, ok, err = store.Get("active_token_id")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Error("missing key reported as present")
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json"))

	_, ok, err := store.Get("tokens")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if ok {
		t.Error("missing file reported keys")
	}
}

func TestFileStoreApplyBatch(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	if err := store.Put("active_token_id", "tok1"); err != nil {
		t.Fatal(err)
	}
	err := store.Apply(map[string]string{"tokens": `["a"]`}, []string{"active_token_id"})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if _, ok, _ := store.Get("active_token_id"); ok {
		t.Error("active_token_id should be deleted")
	}
	if v, _, _ := store.Get("tokens"); v != `["a"]` {
		t.Errorf("tokens = %q", v)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	if err := store.Put("k", "v"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := store.Get("k"); ok {
		t.Error("key should be deleted")
	}
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission test not applicable on Windows")
	}

	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err := store.Put("tokens", `[]`); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewFileStore(path)
	if _, _, err := store.Get("tokens"); err == nil {
		t.Error("expected parse error for corrupt state file")
	}
	if err := store.Put("k", "v"); err == nil {
		t.Error("expected Put to refuse rewriting corrupt state")
	}
}

func TestFileStoreWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path)
	if err := store.Put("tokens", `[]`); err != nil {
		t.Fatal(err)
	}

	changed := make(chan struct{}, 1)
	if err := store.Watch(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch error: %v", err)
	}
	defer store.Close()

	// Simulate an external writer replacing the file.
	other := NewFileStore(path)
	if err := other.Put("tokens", `["x"]`); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire after external write")
	}
}

func TestMemStoreFailNext(t *testing.T) {
	store := NewMemStore()
	if err := store.Put("k", "v1"); err != nil {
		t.Fatal(err)
	}

	store.FailNext = os.ErrPermission
	if err := store.Put("k", "v2"); err == nil {
		t.Fatal("expected injected failure")
	}

	v, _, _ := store.Get("k")
	if v != "v1" {
		t.Errorf("failed write mutated state: %q", v)
	}
}
