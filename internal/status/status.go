// Package status holds transient status-bar messages
package status

import "sync"

// Disposable removes a status message when disposed
type Disposable interface {
	Dispose()
}

type entry struct {
	id  uint64
	msg string
}

// Bar is the set of currently shown messages, in the order they were set
type Bar struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry
}

// NewBar creates an empty status bar
func NewBar() *Bar {
	return &Bar{}
}

// Set shows msg until the returned handle is disposed
func (b *Bar) Set(msg string) Disposable {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.entries = append(b.entries, entry{id: b.nextID, msg: msg})
	return &handle{bar: b, id: b.nextID}
}

// Messages returns the messages currently shown
func (b *Bar) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.msg)
	}
	return out
}

func (b *Bar) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

type handle struct {
	bar  *Bar
	id   uint64
	once sync.Once
}

func (h *handle) Dispose() {
	h.once.Do(func() {
		h.bar.remove(h.id)
	})
}
