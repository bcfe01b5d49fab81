package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func startWatcher(t *testing.T, cfg WatcherConfig) (*atomic.Int32, chan struct{}) {
	t.Helper()
	w, err := NewFileWatcher(cfg, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}

	var count atomic.Int32
	called := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Watch(ctx, func() error {
			count.Add(1)
			select {
			case called <- struct{}{}:
			default:
			}
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &count, called
}

func TestFileWatcher_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	if err := os.WriteFile(path, []byte("policies: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, called := startWatcher(t, WatcherConfig{Path: path, DebounceInterval: 50 * time.Millisecond})
	time.Sleep(50 * time.Millisecond)

	// A sibling file must not trigger a reload.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("policies: [] # edited\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not triggered after the policy file changed")
	}
}

func TestFileWatcher_ReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	if err := os.WriteFile(path, []byte("policies: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, called := startWatcher(t, WatcherConfig{Path: path, DebounceInterval: 50 * time.Millisecond})
	time.Sleep(50 * time.Millisecond)

	tmp := filepath.Join(dir, ".policies.yaml.swp")
	if err := os.WriteFile(tmp, []byte("policies: [] # new\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not triggered after rename")
	}
}

func TestFileWatcher_Debouncing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte("policies: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	count, _ := startWatcher(t, WatcherConfig{Path: path, DebounceInterval: 200 * time.Millisecond})
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		content := "policies: []\n# edit " + string(rune('0'+i)) + "\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)

	got := count.Load()
	if got == 0 {
		t.Error("reload was never called")
	}
	if got > 2 {
		t.Errorf("reload called %d times, want <= 2", got)
	}
}

func TestNewFileWatcher_MissingPath(t *testing.T) {
	if _, err := NewFileWatcher(WatcherConfig{Path: filepath.Join(t.TempDir(), "nope.yaml")}, nil); err == nil {
		t.Fatal("NewFileWatcher() on a missing path should fail")
	}
}

func TestFileWatcher_Relevant(t *testing.T) {
	dirWatcher := &FileWatcher{dir: "/etc/luthien"}
	fileWatcher := &FileWatcher{dir: "/etc/luthien", file: "policies.yaml"}

	tests := []struct {
		name  string
		w     *FileWatcher
		event fsnotify.Event
		want  bool
	}{
		{"dir yaml", dirWatcher, fsnotify.Event{Name: "/etc/luthien/a.yaml", Op: fsnotify.Write}, true},
		{"dir upper YML", dirWatcher, fsnotify.Event{Name: "/etc/luthien/a.YML", Op: fsnotify.Create}, true},
		{"dir txt", dirWatcher, fsnotify.Event{Name: "/etc/luthien/a.txt", Op: fsnotify.Write}, false},
		{"dir hidden", dirWatcher, fsnotify.Event{Name: "/etc/luthien/.a.yaml", Op: fsnotify.Write}, false},
		{"chmod only", dirWatcher, fsnotify.Event{Name: "/etc/luthien/a.yaml", Op: fsnotify.Chmod}, false},
		{"file match", fileWatcher, fsnotify.Event{Name: "/etc/luthien/policies.yaml", Op: fsnotify.Rename}, true},
		{"file sibling", fileWatcher, fsnotify.Event{Name: "/etc/luthien/keys.yaml", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.relevant(tt.event); got != tt.want {
				t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestDebouncer_Trigger(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("callback called %d times, want 1", got)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("callback called %d times after Stop(), want 0", got)
	}
}
