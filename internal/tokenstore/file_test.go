package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "token")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if err := store.Write(ctx, "stored-value\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "stored-value" {
		t.Errorf("Read = %q, want %q", got, "stored-value")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %04o, want 0600", perm)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Read(context.Background()); err == nil {
		t.Error("expected an error reading a missing file")
	}
}

func TestFileStoreInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("value"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Read(context.Background()); err == nil {
		t.Error("expected an error for 0644 permissions")
	}
}

func TestEnvStoreIsReadOnly(t *testing.T) {
	t.Setenv("GRANTLINE_TEST_TOKEN", "from-env")

	store, err := NewEnvStore("GRANTLINE_TEST_TOKEN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-env" {
		t.Errorf("Read = %q", got)
	}

	if err := store.Write(ctx, "new"); err == nil {
		t.Error("expected Write to fail on the env backend")
	}
}
