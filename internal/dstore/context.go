// ABOUTME: Per-store state machine: attach state, binding, root/loaded/tombstone/deleted flags, and the lazily-realized channel.
// ABOUTME: Every method that reaches the channel (and AttachData) fails with ErrDeleted once the store has gone through GC sweep; methods that need the channel realize it first.

package dstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Binding is orthogonal to AttachState for a local store before its graph
// is made visible: a store can be Unbound+Detached (just created) or
// Bound+Detached (visible, container itself still detached).
type Binding int

const (
	Unbound Binding = iota
	Bound
)

func (b Binding) String() string {
	if b == Bound {
		return "Bound"
	}
	return "Unbound"
}

// InitialSnapshotDetails is what a freshly realized or newly attaching
// store reports about its own identity.
type InitialSnapshotDetails struct {
	PackagePath []string
	IsRoot      bool
}

// StoreContext is one data store's lifecycle state, independent of its
// content. The collection owns every StoreContext; callers reach the
// underlying Channel only through StoreContext's methods.
type StoreContext struct {
	id          string
	packagePath []string

	mu          sync.Mutex
	attachState AttachState
	binding     Binding
	root        bool
	loaded      bool
	tombstoned  bool
	deleted     bool
	disposed    bool

	channel        Channel
	factory        ChannelFactory
	baseSnapshot   *SnapshotTree
	summarizerNode SummarizerNode
	usedRoutes     []string

	logger *slog.Logger
}

// newStoreContext builds a context that has not yet realized its channel.
// factory is called at most once, the first time realization is needed.
func newStoreContext(id string, packagePath []string, factory ChannelFactory, baseSnapshot *SnapshotTree, logger *slog.Logger) *StoreContext {
	return &StoreContext{
		id:           id,
		packagePath:  append([]string(nil), packagePath...),
		factory:      factory,
		baseSnapshot: baseSnapshot,
		logger:       logger.With("data_store_id", id),
	}
}

// ID returns the store's internal id, immutable for the context's lifetime.
func (c *StoreContext) ID() string { return c.id }

// PackagePath returns the factory path from the registry root that produced
// this store's channel, stable after first assignment.
func (c *StoreContext) PackagePath() []string { return c.packagePath }

// checkUsable rejects an operation against a context that has gone through
// GC sweep (data corruption: the caller addressed a store that no longer
// exists) or past Dispose (the container itself is shutting down).
func (c *StoreContext) checkUsable(op string) error {
	c.mu.Lock()
	deleted := c.deleted
	disposed := c.disposed
	c.mu.Unlock()
	if deleted {
		return newDataCorruption(op, ErrDeleted)
	}
	if disposed {
		return newDataProcessing(op, ErrCollectionDisposed)
	}
	return nil
}

// Realize idempotently materializes the channel, suspending on the first
// call until the factory returns.
func (c *StoreContext) Realize(ctx context.Context) (Channel, error) {
	if err := c.checkUsable("realize"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.loaded {
		ch := c.channel
		c.mu.Unlock()
		return ch, nil
	}
	factory := c.factory
	snapshot := c.baseSnapshot
	path := c.packagePath
	c.mu.Unlock()

	ch, err := factory(ctx, path, snapshot)
	if err != nil {
		return nil, newDataProcessing("realize", err)
	}

	c.mu.Lock()
	if !c.loaded {
		c.channel = ch
		c.loaded = true
		c.root = ch.IsRoot() || c.root
	}
	result := c.channel
	c.mu.Unlock()
	return result, nil
}

func (c *StoreContext) mustRealize(ctx context.Context) (Channel, error) {
	if err := c.checkUsable("channel access"); err != nil {
		return nil, err
	}
	return c.Realize(ctx)
}

// Process delivers a channel op, realizing the store first if needed.
func (c *StoreContext) Process(ctx context.Context, contents OpContents, local bool, localMeta any) error {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return err
	}
	return ch.Process(ctx, contents, local, localMeta)
}

// ProcessSignal delivers a signal, realizing the store first if needed.
func (c *StoreContext) ProcessSignal(ctx context.Context, contents []byte, local bool) error {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return err
	}
	return ch.ProcessSignal(ctx, contents, local)
}

// ApplyStashedOp replays a stashed (previously unacked, offline) op.
func (c *StoreContext) ApplyStashedOp(ctx context.Context, content []byte) error {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return err
	}
	return ch.ApplyStashedOp(ctx, content)
}

// Resubmit re-submits a local op after a reconnection invalidated its
// original sequencing assumptions.
func (c *StoreContext) Resubmit(ctx context.Context, opType string, content []byte, localMeta any) error {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return err
	}
	return ch.Resubmit(ctx, opType, content, localMeta)
}

// Rollback undoes a local op that will never be sequenced.
func (c *StoreContext) Rollback(ctx context.Context, opType string, content []byte, localMeta any) error {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return err
	}
	return ch.Rollback(ctx, opType, content, localMeta)
}

// SetConnectionState forwards connectivity changes to the channel, if
// realized; an unrealized store has nothing to notify.
func (c *StoreContext) SetConnectionState(connected bool, clientID string) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch != nil {
		ch.SetConnectionState(connected, clientID)
	}
}

// AttachState returns the store's current attach state.
func (c *StoreContext) AttachState() AttachState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachState
}

// SetAttachState advances the attach state machine. Transitions are
// monotone: Detached -> Attaching -> Attached. A backward transition is an
// internal-consistency violation; setting the current state again, or
// moving straight from Detached to Attached, is accepted.
func (c *StoreContext) SetAttachState(newState AttachState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if newState < c.attachState {
		return newInternalConsistency("set attach state",
			fmt.Errorf("cannot move from %s back to %s", c.attachState, newState))
	}
	c.attachState = newState
	return nil
}

// revertToDetached undoes an Attaching transition that was never committed,
// used only by AttachCoordinator's rollback path. It bypasses the monotone
// guarantee of SetAttachState deliberately: the store never actually
// reached Attaching as far as anyone else is concerned.
func (c *StoreContext) revertToDetached() {
	c.mu.Lock()
	c.attachState = AttachStateDetached
	c.binding = Unbound
	c.mu.Unlock()
}

// Binding returns Unbound or Bound.
func (c *StoreContext) Binding() Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding
}

func (c *StoreContext) setBound() {
	c.mu.Lock()
	c.binding = Bound
	c.mu.Unlock()
}

// IsRoot reports whether this store is reachable by alias from the
// container.
func (c *StoreContext) IsRoot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// SetInMemoryRoot marks the store root without waiting for anything to
// round-trip; AliasCoordinator calls this the moment an alias commit lands,
// local or remote.
func (c *StoreContext) SetInMemoryRoot() {
	c.mu.Lock()
	c.root = true
	c.mu.Unlock()
}

// IsLoaded reports whether the channel has been realized.
func (c *StoreContext) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// IsTombstoned reports the last tombstone verdict GC computed for this
// store.
func (c *StoreContext) IsTombstoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tombstoned
}

// SetTombstone updates the tombstone flag.
func (c *StoreContext) SetTombstone(tombstoned bool) {
	c.mu.Lock()
	c.tombstoned = tombstoned
	c.mu.Unlock()
}

// IsDeleted reports whether this context has gone through GC sweep.
func (c *StoreContext) IsDeleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleted
}

// delete marks the context terminal. The caller (GCManager) is responsible
// for removing it from the Table.
func (c *StoreContext) delete() {
	c.mu.Lock()
	c.deleted = true
	c.mu.Unlock()
}

// Dispose idempotently transitions this context to a terminal state. Every
// subsequent op against it fails with ErrCollectionDisposed instead of
// succeeding against a container that no longer exists.
func (c *StoreContext) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
}

// IsDisposed reports whether Dispose has been called on this context.
func (c *StoreContext) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// InitialSnapshotDetails reports the store's package and root-ness as known
// before realization; used by the attach summary path for stores that
// haven't loaded yet.
func (c *StoreContext) InitialSnapshotDetails() InitialSnapshotDetails {
	c.mu.Lock()
	defer c.mu.Unlock()
	return InitialSnapshotDetails{
		PackagePath: append([]string(nil), c.packagePath...),
		IsRoot:      c.root,
	}
}

// Summarize produces the store's summary tree and stats, realizing it first.
func (c *StoreContext) Summarize(ctx context.Context, fullTree, trackState bool) (*SummaryTree, SummaryStats, error) {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return nil, SummaryStats{}, err
	}
	return ch.Summarize(ctx, fullTree, trackState)
}

// AttachData produces the store's attach-time snapshot. For a store that
// hasn't loaded, the base snapshot it was created from is reused verbatim
// rather than forcing a realize.
func (c *StoreContext) AttachData(ctx context.Context, includeGC bool) (AttachSummary, error) {
	if err := c.checkUsable("attach data"); err != nil {
		return AttachSummary{}, err
	}
	c.mu.Lock()
	loaded := c.loaded
	base := c.baseSnapshot
	c.mu.Unlock()

	if !loaded && base != nil {
		return AttachSummary{Snapshot: base}, nil
	}

	ch, err := c.mustRealize(ctx)
	if err != nil {
		return AttachSummary{}, err
	}
	return ch.AttachData(ctx, includeGC)
}

// GetGCData produces the store's outbound-reference nodes, realizing it
// first.
func (c *StoreContext) GetGCData(ctx context.Context, fullGC bool) (GCData, error) {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return GCData{}, err
	}
	return ch.GetGCData(ctx, fullGC)
}

// Request forwards a sub-path request to the realized channel.
func (c *StoreContext) Request(ctx context.Context, req RequestMessage) (ResponseMessage, error) {
	ch, err := c.mustRealize(ctx)
	if err != nil {
		return ResponseMessage{}, err
	}
	return ch.Request(ctx, req)
}

// UpdateUsedRoutes records the sub-routes GC found reachable within this
// store, empty when GC found none. The routes are only stored and returned
// by UsedRoutes; neither the collection nor the channel interprets them.
func (c *StoreContext) UpdateUsedRoutes(routes []string) {
	c.mu.Lock()
	c.usedRoutes = append([]string(nil), routes...)
	c.mu.Unlock()
}

// UsedRoutes returns the last set of routes GC reported reachable within
// this store.
func (c *StoreContext) UsedRoutes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.usedRoutes...)
}

// SetSummarizerNode records the handle into the summarizer-node tree that
// AttachCoordinator created for this store.
func (c *StoreContext) SetSummarizerNode(node SummarizerNode) {
	c.mu.Lock()
	c.summarizerNode = node
	c.mu.Unlock()
}

// SummarizerNodeHandle returns the handle set by SetSummarizerNode, or nil.
func (c *StoreContext) SummarizerNodeHandle() SummarizerNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summarizerNode
}
