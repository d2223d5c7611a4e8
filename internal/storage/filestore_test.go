package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(path)

	if _, ok, err := s.Get("session"); err != nil || ok {
		t.Fatalf("expected absent key on fresh store, ok=%v err=%v", ok, err)
	}

	if err := s.Set("session", []byte(`{"is_authenticated":true}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, ok, err := s.Get("session")
	if err != nil || !ok {
		t.Fatalf("Get after Set: ok=%v err=%v", ok, err)
	}
	if string(raw) != `{"is_authenticated":true}` {
		t.Fatalf("unexpected value: %s", raw)
	}

	// A second store over the same file sees the data.
	if raw, ok, err = NewFileStore(path).Get("session"); err != nil || !ok {
		t.Fatalf("reopen: ok=%v err=%v", ok, err)
	}

	if err := s.Delete("session"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ = s.Get("session"); ok {
		t.Fatalf("key survived Delete")
	}
	if err := s.Delete("session"); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}
}

func TestFileStorePermissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)
	if err := s.Set("k", []byte(`"v"`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("state file mode = %o, want 0600", got)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, _, err := NewFileStore(path).Get("k"); err == nil {
		t.Fatalf("expected decode error for corrupt state file")
	}
}

func TestMemStoreCopiesValues(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	val := []byte("abc")
	if err := s.Set("k", val); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val[0] = 'x'
	raw, ok, err := s.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(raw) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %s", raw)
	}
}
