package watcher

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"bundlegraph/internal/module"
	"bundlegraph/internal/slogutil"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventCreate, "create"},
		{EventModify, "modify"},
		{EventDelete, "delete"},
		{EventRename, "rename"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.eventType.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		op     fsnotify.Op
		want   EventType
		wantOK bool
	}{
		{fsnotify.Create, EventCreate, true},
		{fsnotify.Write, EventModify, true},
		{fsnotify.Create | fsnotify.Write, EventCreate, true},
		{fsnotify.Remove, EventDelete, true},
		{fsnotify.Rename, EventRename, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.op)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("Classify(%v) = %v, %v; want %v, %v", tt.op, got, ok, tt.want, tt.wantOK)
		}
		if ok && got.Removes() != (tt.want == EventDelete || tt.want == EventRename) {
			t.Errorf("%v.Removes() = %v", got, got.Removes())
		}
	}
}

func newTestWatcher(t *testing.T, handler Handler) *Watcher {
	t.Helper()
	w, err := New(Config{
		DebounceMs: 20,
		Ignore:     []string{"node_modules", ".git", "*.swp"},
	}, slogutil.NewDiscardLogger(), handler)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func mkfile(t *testing.T, root, name string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIsIgnored(t *testing.T) {
	w := newTestWatcher(t, nil)
	defer w.Close()

	tests := []struct {
		path string
		want bool
	}{
		{"/app/src/index.js", false},
		{"/app/node_modules/react/index.js", true},
		{"/app/.git/HEAD", true},
		{"/app/src/.index.js.swp", true},
		{"/app/src/node_modules_backup.js", false},
	}
	for _, tt := range tests {
		if got := w.IsIgnored(tt.path); got != tt.want {
			t.Errorf("IsIgnored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestUpdate(t *testing.T) {
	root := t.TempDir()
	index := mkfile(t, root, "src/index.js")
	mkfile(t, root, "src/pages/home/page.js")
	mkfile(t, root, "src/pages/node_modules/skip.js")

	w := newTestWatcher(t, nil)
	defer w.Close()

	err := w.Update(Sets{
		Files:    module.NewFileSet(index),
		Contexts: module.NewFileSet(filepath.Join(root, "src", "pages")),
		Missing:  module.NewFileSet(filepath.Join(root, "lib", "deep", "util.js")),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []string{
		root,
		filepath.Join(root, "src"),
		filepath.Join(root, "src", "pages"),
		filepath.Join(root, "src", "pages", "home"),
	}
	if got := w.Watched(); !reflect.DeepEqual(got, want) {
		t.Errorf("Watched() = %v\nwant %v", got, want)
	}

	if !w.Relevant(index) || !w.Relevant(filepath.Join(root, "src", "pages", "new.js")) {
		t.Error("watched file and context paths should be relevant")
	}
	if w.Relevant(filepath.Join(root, "src", "other.js")) {
		t.Error("unrelated siblings should not be relevant")
	}

	if err := w.Update(Sets{Files: module.NewFileSet(index)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := w.Watched(); !reflect.DeepEqual(got, []string{filepath.Join(root, "src")}) {
		t.Errorf("Watched() after shrinking = %v", got)
	}
}

func TestRunDeliversBatches(t *testing.T) {
	root := t.TempDir()
	a := mkfile(t, root, "src/a.js")
	b := mkfile(t, root, "src/b.js")
	mkfile(t, root, "src/unrelated.js")

	var mu sync.Mutex
	var got []ChangeSet
	delivered := make(chan struct{}, 8)
	w := newTestWatcher(t, func(ctx context.Context, changes ChangeSet) error {
		mu.Lock()
		got = append(got, changes)
		mu.Unlock()
		select {
		case delivered <- struct{}{}:
		default:
		}
		return nil
	})
	if err := w.Update(Sets{Files: module.NewFileSet(a, b)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give Run a moment to start reading events.
	time.Sleep(20 * time.Millisecond)

	if err := os.WriteFile(a, []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "unrelated.js"), []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(b); err != nil {
		t.Fatal(err)
	}

	collect := func() (module.FileSet, module.FileSet) {
		mu.Lock()
		defer mu.Unlock()
		modified, removed := module.NewFileSet(), module.NewFileSet()
		for _, c := range got {
			modified.AddAll(c.Modified)
			removed.AddAll(c.Removed)
		}
		return modified, removed
	}

	deadline := time.After(5 * time.Second)
	for {
		modified, removed := collect()
		if modified.Has(a) && removed.Has(b) {
			break
		}
		select {
		case <-delivered:
		case <-deadline:
			t.Fatalf("batches incomplete: modified = %v, removed = %v", modified.Sorted(), removed.Sorted())
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	if modified, _ := collect(); modified.Has(filepath.Join(root, "src", "unrelated.js")) {
		t.Errorf("unrelated file was reported: %v", modified.Sorted())
	}
}

func TestBatcherLastEventWins(t *testing.T) {
	var got []ChangeSet
	b := NewBatcher(time.Hour, func(c ChangeSet) { got = append(got, c) })

	b.Add(Event{Type: EventModify, Path: "/a.js"})
	b.Add(Event{Type: EventDelete, Path: "/a.js"})
	b.Add(Event{Type: EventDelete, Path: "/b.js"})
	b.Add(Event{Type: EventCreate, Path: "/b.js"})
	if b.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", b.Pending())
	}

	b.Flush()
	if len(got) != 1 {
		t.Fatalf("batches = %d, want 1", len(got))
	}
	if !got[0].Removed.Has("/a.js") || !got[0].Modified.Has("/b.js") {
		t.Errorf("batch = %+v", got[0])
	}
	if b.Pending() != 0 {
		t.Error("Flush should empty the batch")
	}
}

func TestBatcherDebounces(t *testing.T) {
	var mu sync.Mutex
	var batches []ChangeSet
	b := NewBatcher(30*time.Millisecond, func(c ChangeSet) {
		mu.Lock()
		batches = append(batches, c)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		b.Add(Event{Type: EventModify, Path: "/a.js"})
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 || len(batches[0].Modified) != 1 {
		t.Errorf("batches = %+v, want a single batch", batches)
	}
}

func TestBatcherCancel(t *testing.T) {
	called := false
	b := NewBatcher(20*time.Millisecond, func(ChangeSet) { called = true })

	b.Add(Event{Type: EventModify, Path: "/a.js"})
	b.Cancel()
	b.Flush()
	time.Sleep(50 * time.Millisecond)

	if called {
		t.Error("a cancelled batch should not be emitted")
	}
}

func TestChangeSetEmpty(t *testing.T) {
	if !(ChangeSet{}).Empty() {
		t.Error("zero ChangeSet should be empty")
	}
	if (ChangeSet{Removed: module.NewFileSet("/a")}).Empty() {
		t.Error("ChangeSet with a removed path is not empty")
	}
}
