package imagestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/brovar/digimarket-backend/pkg/config"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(config.ImageStoreConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestAttachAndOpen(t *testing.T) {
	store := newStore(t)
	offerID := uuid.New()

	filename, err := store.Attach(context.Background(), offerID, "cover.png", strings.NewReader("fake-png-bytes"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if filename != offerID.String()+".png" {
		t.Fatalf("unexpected filename %q", filename)
	}

	file, err := store.Open(filename)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "fake-png-bytes" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestAttachReplacesPrevious(t *testing.T) {
	store := newStore(t)
	offerID := uuid.New()

	if _, err := store.Attach(context.Background(), offerID, "a.png", strings.NewReader("first")); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	filename, err := store.Attach(context.Background(), offerID, "b.png", strings.NewReader("second"))
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}

	file, err := store.Open(filename)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	content, _ := io.ReadAll(file)
	if string(content) != "second" {
		t.Fatalf("expected replacement, got %q", content)
	}
}

func TestAttachRejectsBadInput(t *testing.T) {
	store := newStore(t)

	if _, err := store.Attach(context.Background(), uuid.New(), "script.exe", strings.NewReader("x")); err == nil {
		t.Fatal("expected extension rejection")
	}
	if _, err := store.Attach(context.Background(), uuid.Nil, "a.png", strings.NewReader("x")); err == nil {
		t.Fatal("expected offer id rejection")
	}
	if _, err := store.Attach(context.Background(), uuid.New(), "a.png", nil); err == nil {
		t.Fatal("expected nil reader rejection")
	}
}

func TestOpenRejectsPathTraversal(t *testing.T) {
	store := newStore(t)
	if _, err := store.Open("../escape.png"); err == nil {
		t.Fatal("expected traversal rejection")
	}
}
