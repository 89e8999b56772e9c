package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://api.tasvir.ir/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "/uploads/u1/../u1/cat.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "uploads/u1/cat.png" {
		t.Fatalf("unexpected key %q", key)
	}
	data, err := store.Read(ctx, key)
	if err != nil || string(data) != "png" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	u, err := store.URL(key)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if u != "https://api.tasvir.ir/static/uploads/u1/cat.png" {
		t.Fatalf("unexpected url %q", u)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := store.Read(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", " ", "..", "../etc/passwd", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore("  ", ""); err == nil {
		t.Fatal("expected error")
	}
}
