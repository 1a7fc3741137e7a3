package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.so")
	if err := os.WriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}

	changed := make(chan string, 1)
	fw, err := NewFileWatcher(func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}
	defer fw.Close()
	if err := fw.AddFile(path); err != nil {
		t.Fatalf("Failed to watch %s: %v", path, err)
	}
	go fw.Watch()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("Failed to rewrite %s: %v", path, err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Failed to touch %s: %v", path, err)
	}

	select {
	case got := <-changed:
		if got != path {
			t.Errorf("Expected change for %s, got %s", path, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No change reported within 5 seconds")
	}
}

func TestFileWatcherClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.so")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}

	fw, err := NewFileWatcher(func(string) {})
	if err != nil {
		t.Fatalf("Failed to create file watcher: %v", err)
	}
	if err := fw.AddFile(path); err != nil {
		t.Fatalf("Failed to watch %s: %v", path, err)
	}

	done := make(chan struct{})
	go func() {
		fw.Watch()
		close(done)
	}()

	fw.Close()
	fw.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after Close")
	}
}
