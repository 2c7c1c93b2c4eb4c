package procrun

import (
	"sync"

	"spool/internal/outcome"
)

// Entry tracks one running item's subprocess and its pending disposition.
type Entry struct {
	mu       sync.Mutex
	canceled bool
	kind     outcome.Kind
	handle   *Handle
}

// Cancel flags the entry and signals its subprocess.
func (e *Entry) Cancel() {
	e.mu.Lock()
	e.canceled = true
	handle := e.handle
	e.mu.Unlock()
	if handle != nil {
		handle.Kill()
	}
}

// RecordFailure stores a terminal failure kind and kills the subprocess.
// The first recorded kind wins.
func (e *Entry) RecordFailure(kind outcome.Kind) {
	e.mu.Lock()
	if e.kind == "" {
		e.kind = kind
	}
	handle := e.handle
	e.mu.Unlock()
	if handle != nil {
		handle.Kill()
	}
}

// Resolve maps the entry's state at process exit to a result kind.
// Cancellation outranks a recorded failure, which outranks success.
func (e *Entry) Resolve() outcome.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.canceled:
		return outcome.KindCanceled
	case e.kind != "":
		return e.kind
	default:
		return outcome.KindSuccess
	}
}

// Registry maps item identifiers to their live cancellation entries.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register creates the entry for an item before its subprocess spawns.
// The handle may be attached later via Attach once spawning succeeds.
func (r *Registry) Register(itemID string) *Entry {
	entry := &Entry{}
	r.mu.Lock()
	r.entries[itemID] = entry
	r.mu.Unlock()
	return entry
}

// Attach binds the spawned subprocess to the item's entry. A cancel that
// raced ahead of the spawn kills the process immediately.
func (r *Registry) Attach(itemID string, handle *Handle) {
	r.mu.Lock()
	entry := r.entries[itemID]
	r.mu.Unlock()
	if entry == nil {
		handle.Kill()
		return
	}
	entry.mu.Lock()
	entry.handle = handle
	canceled := entry.canceled
	entry.mu.Unlock()
	if canceled {
		handle.Kill()
	}
}

// Lookup returns the live entry for an item, or nil.
func (r *Registry) Lookup(itemID string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[itemID]
}

// Remove drops the item's entry after process exit.
func (r *Registry) Remove(itemID string) {
	r.mu.Lock()
	delete(r.entries, itemID)
	r.mu.Unlock()
}

// Resolve maps the item's entry state to a result kind and reports
// whether an entry existed. A missing entry resolves to KindUnknown.
func (r *Registry) Resolve(itemID string) (outcome.Kind, bool) {
	entry := r.Lookup(itemID)
	if entry == nil {
		return outcome.KindUnknown, false
	}
	return entry.Resolve(), true
}

// Cancel flags the item's entry and signals its subprocess. Returns
// false when no entry exists; repeated calls are no-ops after the first.
func (r *Registry) Cancel(itemID string) bool {
	entry := r.Lookup(itemID)
	if entry == nil {
		return false
	}
	entry.Cancel()
	return true
}
