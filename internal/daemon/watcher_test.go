package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TestNewFileWatcher verifies that creating a new FileWatcher succeeds.
func TestNewFileWatcher(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if fw.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}
}

// TestFileWatcher_StartStop verifies that the watcher can start and stop cleanly.
func TestFileWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}

	if err := fw.Start(dir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}
	if fw.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", fw.Dir(), dir)
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}

	// Stop is idempotent and channels are closed.
	if err := fw.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
	if _, ok := <-fw.Events(); ok {
		t.Error("Events() should be closed after Stop()")
	}
}

// TestFileWatcher_StartAlreadyRunning verifies that starting an already running watcher fails.
func TestFileWatcher_StartAlreadyRunning(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(dir); err != nil {
		t.Fatalf("First Start() failed: %v", err)
	}
	if err := fw.Start(dir); err == nil {
		t.Error("Second Start() should fail when watcher is already running")
	}
}

// TestFileWatcher_MissingDir verifies that watching a missing directory fails.
func TestFileWatcher_MissingDir(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Start() on a missing directory should fail")
	}
}

func waitFileEvent(t *testing.T, fw *FileWatcher) FileEvent {
	t.Helper()
	select {
	case event := <-fw.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for file event")
	}
	return FileEvent{}
}

// TestFileWatcher_Lifecycle verifies create, modify and delete events for a markdown file.
func TestFileWatcher_Lifecycle(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(dir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	path := filepath.Join(dir, "hello-world.md")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	event := waitFileEvent(t, fw)
	if event.Op != OpCreate {
		t.Errorf("Expected OpCreate, got %v", event.Op)
	}
	if event.Path != path {
		t.Errorf("Expected %s, got %s", path, event.Path)
	}

	if _, err := f.WriteString("# Hi\n"); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	_ = f.Close()

	event = waitFileEvent(t, fw)
	if event.Op != OpModify {
		t.Errorf("Expected OpModify, got %v", event.Op)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	// Drain until the delete arrives; some platforms report extra writes.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-fw.Events():
			if event.Op == OpDelete {
				return
			}
		case <-deadline:
			t.Fatal("Timeout waiting for delete event")
		}
	}
}

// TestFileWatcher_IgnoresNonMarkdown verifies that other files produce no events.
func TestFileWatcher_IgnoresNonMarkdown(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(dir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	select {
	case event := <-fw.Events():
		t.Errorf("Unexpected event: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConvertEvent(t *testing.T) {
	dir := t.TempDir()
	fw := &FileWatcher{dir: dir}

	tests := []struct {
		name   string
		event  fsnotify.Event
		wantOp EventOp
		wantOK bool
	}{
		{"create md", fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Create}, OpCreate, true},
		{"write markdown", fsnotify.Event{Name: filepath.Join(dir, "a.markdown"), Op: fsnotify.Write}, OpModify, true},
		{"upper-case extension", fsnotify.Event{Name: filepath.Join(dir, "A.MD"), Op: fsnotify.Write}, OpModify, true},
		{"remove", fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Remove}, OpDelete, true},
		{"rename", fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Rename}, OpDelete, true},
		{"chmod ignored", fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Chmod}, 0, false},
		{"other extension", fsnotify.Event{Name: filepath.Join(dir, "a.json"), Op: fsnotify.Create}, 0, false},
		{"subdirectory", fsnotify.Event{Name: filepath.Join(dir, "sub", "a.md"), Op: fsnotify.Create}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fw.convertEvent(tt.event)
			if ok != tt.wantOK {
				t.Fatalf("convertEvent() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Op != tt.wantOp {
				t.Errorf("convertEvent() op = %v, want %v", got.Op, tt.wantOp)
			}
		})
	}
}
