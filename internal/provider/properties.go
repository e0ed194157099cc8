package provider

import (
	"maps"
	"sync"
)

// ChangeSet maps property names to their new values.
type ChangeSet map[string]any

// Properties tracks the last-announced value of each evented property of
// one provider and delivers coalesced change sets to observers.
//
// Values must be comparable (strings, numbers, bools, durations).
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Observers are invoked without the internal lock held, on the
//     goroutine that ends the outermost batch.
type Properties struct {
	mu        sync.Mutex
	values    map[string]any
	pending   ChangeSet
	depth     int
	observers map[int]func(ChangeSet)
	nextID    int
}

// NewProperties creates an empty property set.
func NewProperties() *Properties {
	return &Properties{
		values:    make(map[string]any),
		observers: make(map[int]func(ChangeSet)),
	}
}

// Init seeds a property value without recording a change.
func (p *Properties) Init(name string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
}

// Get returns the last-announced value of name.
func (p *Properties) Get(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[name]
	return v, ok
}

// Snapshot returns a copy of every last-announced value.
func (p *Properties) Snapshot() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.values)
}

// Set writes value to name. The change is recorded only if it differs from
// the last-announced value, which is updated before Set returns. Outside a
// batch the write is delivered immediately as a one-entry ChangeSet.
func (p *Properties) Set(name string, value any) {
	b := p.BeginBatch()
	defer b.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.values[name]; ok && old == value {
		return
	}
	p.values[name] = value
	if p.pending == nil {
		p.pending = make(ChangeSet)
	}
	p.pending[name] = value
}

// Observe registers fn to receive every delivered ChangeSet.
// Observers must not modify the ChangeSet. The returned function detaches
// the observer.
func (p *Properties) Observe(fn func(ChangeSet)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.observers[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.observers, id)
	}
}

// Batch is an open change-coalescing scope returned by BeginBatch.
type Batch struct {
	props *Properties
	once  sync.Once
}

// BeginBatch opens a batch. Call End exactly once, normally with defer.
func (p *Properties) BeginBatch() *Batch {
	p.mu.Lock()
	p.depth++
	p.mu.Unlock()
	return &Batch{props: p}
}

// End closes the batch. Closing the outermost batch delivers the pending
// ChangeSet, if any. Extra calls are ignored.
func (b *Batch) End() {
	b.once.Do(b.props.endBatch)
}

func (p *Properties) endBatch() {
	p.mu.Lock()
	p.depth--
	if p.depth > 0 || len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}

	changes := p.pending
	p.pending = nil
	observers := make([]func(ChangeSet), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	for _, fn := range observers {
		fn(changes)
	}
}
