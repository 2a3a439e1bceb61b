package watcher

import (
	"sync"
	"time"

	"bundlegraph/internal/module"
)

// ChangeSet is a batch of changed paths
type ChangeSet struct {
	Modified module.FileSet
	Removed  module.FileSet
}

// Empty reports whether the batch holds no path
func (c ChangeSet) Empty() bool {
	return len(c.Modified) == 0 && len(c.Removed) == 0
}

// Batcher collects events and emits them as one ChangeSet once no event arrived for the delay.
// The last event of a path decides whether it counts as modified or removed.
type Batcher struct {
	delay  time.Duration
	timer  *time.Timer
	mu     sync.Mutex
	events map[string]EventType
	emit   func(ChangeSet)
}

// NewBatcher creates a batcher calling emit with each batch
func NewBatcher(delay time.Duration, emit func(ChangeSet)) *Batcher {
	return &Batcher{
		delay:  delay,
		events: make(map[string]EventType),
		emit:   emit,
	}
}

// Add records an event and restarts the quiet period
func (b *Batcher) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.Path] = event.Type

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
}

func (b *Batcher) flush() {
	b.mu.Lock()
	events := b.events
	b.events = make(map[string]EventType)
	b.timer = nil
	b.mu.Unlock()

	if len(events) == 0 || b.emit == nil {
		return
	}
	changes := ChangeSet{Modified: module.NewFileSet(), Removed: module.NewFileSet()}
	for path, typ := range events {
		if typ.Removes() {
			changes.Removed.Add(path)
		} else {
			changes.Modified.Add(path)
		}
	}
	b.emit(changes)
}

// Cancel drops pending events
func (b *Batcher) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.events = make(map[string]EventType)
}

// Flush emits pending events immediately
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.flush()
}

// Pending returns the number of paths waiting to be emitted
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
