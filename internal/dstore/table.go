// ABOUTME: Indexed collection of StoreContexts partitioned into unbound/bound/remoted, with await-for-addressable support.
// ABOUTME: Every id appears in at most one partition; deletion installs a marker so a waiting GetBoundOrRemoted(wait=true) call wakes up instead of hanging forever.

package dstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type partition int

const (
	partitionUnbound partition = iota
	partitionBound
	partitionRemoted
)

// Table is the collection's indexed set of StoreContexts.
type Table struct {
	mu         sync.Mutex
	contexts   map[string]*StoreContext
	partition  map[string]partition
	deletedIDs map[string]struct{}
	waiters    map[string][]chan struct{}
	logger     *slog.Logger
}

// NewTable returns an empty table.
func NewTable(logger *slog.Logger) *Table {
	return &Table{
		contexts:   make(map[string]*StoreContext),
		partition:  make(map[string]partition),
		deletedIDs: make(map[string]struct{}),
		waiters:    make(map[string][]chan struct{}),
		logger:     logger.With("component", "context_table"),
	}
}

// AddUnbound inserts a newly created local context into the unbound
// partition.
func (t *Table) AddUnbound(c *StoreContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.contexts[c.ID()]; exists {
		return newInternalConsistency("add unbound", fmt.Errorf("id %q already present", c.ID()))
	}
	t.contexts[c.ID()] = c
	t.partition[c.ID()] = partitionUnbound
	return nil
}

// AddBoundOrRemoted inserts a context directly into the addressable
// partition: bound for a locally created store whose container is
// detached, remoted for a store built from a remote Attach op.
func (t *Table) AddBoundOrRemoted(c *StoreContext, remote bool) error {
	t.mu.Lock()
	if _, exists := t.contexts[c.ID()]; exists {
		t.mu.Unlock()
		return newInternalConsistency("add bound or remoted", fmt.Errorf("id %q already present", c.ID()))
	}
	t.contexts[c.ID()] = c
	if remote {
		t.partition[c.ID()] = partitionRemoted
	} else {
		t.partition[c.ID()] = partitionBound
	}
	t.mu.Unlock()

	c.setBound()
	t.wake(c.ID())
	return nil
}

// Bind moves a context from the unbound partition to bound, called when a
// local store becomes visible.
func (t *Table) Bind(id string) error {
	t.mu.Lock()
	p, ok := t.partition[id]
	if !ok {
		t.mu.Unlock()
		return newInternalConsistency("bind", fmt.Errorf("id %q not present", id))
	}
	if p != partitionUnbound {
		t.mu.Unlock()
		return newInternalConsistency("bind", fmt.Errorf("id %q is not unbound", id))
	}
	t.partition[id] = partitionBound
	c := t.contexts[id]
	t.mu.Unlock()

	c.setBound()
	t.wake(id)
	return nil
}

// Get returns the context for id regardless of partition, or nil.
func (t *Table) Get(id string) *StoreContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contexts[id]
}

// GetUnbound returns the context for id only if it is currently unbound.
func (t *Table) GetUnbound(id string) *StoreContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.partition[id] != partitionUnbound {
		return nil
	}
	return t.contexts[id]
}

// GetBoundOrRemoted returns the context for id if it is addressable (bound
// or remoted). If not yet addressable and wait is true, it suspends until
// the id becomes addressable or a deletion marker for it is installed, at
// which point it returns nil.
func (t *Table) GetBoundOrRemoted(ctx context.Context, id string, wait bool) (*StoreContext, error) {
	for {
		t.mu.Lock()
		if _, deleted := t.deletedIDs[id]; deleted {
			t.mu.Unlock()
			return nil, nil
		}
		if p, ok := t.partition[id]; ok && (p == partitionBound || p == partitionRemoted) {
			c := t.contexts[id]
			t.mu.Unlock()
			return c, nil
		}
		if !wait {
			t.mu.Unlock()
			return nil, nil
		}
		ch := make(chan struct{})
		t.waiters[id] = append(t.waiters[id], ch)
		t.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// wake closes every waiter channel registered for id.
func (t *Table) wake(id string) {
	t.mu.Lock()
	chans := t.waiters[id]
	delete(t.waiters, id)
	t.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// Delete removes id from the table and installs a deletion marker so any
// in-flight GetBoundOrRemoted(wait=true) call for it returns instead of
// blocking forever.
func (t *Table) Delete(id string) {
	t.mu.Lock()
	delete(t.contexts, id)
	delete(t.partition, id)
	t.deletedIDs[id] = struct{}{}
	t.mu.Unlock()
	t.wake(id)
}

// IsKnown reports whether id is present in the table under any partition.
func (t *Table) IsKnown(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.contexts[id]
	return ok
}

// IsDeleted reports whether id was removed via Delete.
func (t *Table) IsDeleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.deletedIDs[id]
	return ok
}

// Size returns the total number of contexts across all partitions.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.contexts)
}

// NotBoundLength returns the number of contexts still in the unbound
// partition; SummaryBuilder's attach-summary fixed point iterates until
// this stops changing between passes.
func (t *Table) NotBoundLength() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.partition {
		if p == partitionUnbound {
			n++
		}
	}
	return n
}

// Each calls fn for every context currently in the table. fn must not
// mutate the table.
func (t *Table) Each(fn func(*StoreContext)) {
	t.mu.Lock()
	snapshot := make([]*StoreContext, 0, len(t.contexts))
	for _, c := range t.contexts {
		snapshot = append(snapshot, c)
	}
	t.mu.Unlock()
	for _, c := range snapshot {
		fn(c)
	}
}

// EachBound calls fn for every context in the bound partition (not
// remoted, not unbound) — the set SummaryBuilder's attach-summary pass
// operates over.
func (t *Table) EachBound(fn func(*StoreContext)) {
	t.mu.Lock()
	snapshot := make([]*StoreContext, 0)
	for id, p := range t.partition {
		if p == partitionBound {
			snapshot = append(snapshot, t.contexts[id])
		}
	}
	t.mu.Unlock()
	for _, c := range snapshot {
		fn(c)
	}
}

// EachAttached calls fn for every context whose attach state is Attached,
// regardless of partition.
func (t *Table) EachAttached(fn func(*StoreContext)) {
	t.Each(func(c *StoreContext) {
		if c.AttachState() == AttachStateAttached {
			fn(c)
		}
	})
}
