// ABOUTME: Collection is the single entry point a parent container talks to, wiring the table, id allocator, attach/alias coordinators, GC manager, summary builder, and routers together.
// ABOUTME: Local store creation lives here because it is the one operation that spans the id allocator, the table, and (when the store becomes visible) the attach coordinator.

package dstore

import (
	"context"
	"log/slog"
)

// Registry resolves a package path to a channel factory; the one piece of
// "how do I construct a fresh channel" the collection needs, left to
// caller-supplied factories rather than owned here.
type Registry interface {
	Resolve(packagePath []string) (ChannelFactory, error)
}

// Collection owns every data store in one container.
type Collection struct {
	runtime  Runtime
	registry Registry
	logger   *slog.Logger

	ids     *IDAllocator
	table   *Table
	attach  *AttachCoordinator
	alias   *AliasCoordinator
	gc      *GCManager
	summary *SummaryBuilder
	router  *OpRouter
	request *RequestRouter
}

// CollectionConfig bundles everything Collection needs from its caller.
type CollectionConfig struct {
	Runtime                       Runtime
	Registry                      Registry
	DetectOutboundRoutesViaDDSKey bool
	Logger                        *slog.Logger
}

// NewCollection wires a Collection from cfg.
func NewCollection(cfg CollectionConfig) *Collection {
	logger := cfg.Logger.With("component", "collection")
	table := NewTable(logger)
	gc := NewGCManager(table, cfg.Runtime, logger)

	c := &Collection{
		runtime:  cfg.Runtime,
		registry: cfg.Registry,
		logger:   logger,
		ids:      NewIDAllocator(),
		table:    table,
		gc:       gc,
		summary:  NewSummaryBuilder(table, logger),
	}

	var alias *AliasCoordinator
	c.attach = NewAttachCoordinator(table, cfg.Runtime, gc, c.resolveFactory, func(id string) bool {
		return alias.AlreadyProcessed(id)
	}, logger)
	alias = NewAliasCoordinator(table, cfg.Runtime, c.makeVisible, logger)
	c.alias = alias
	c.router = NewOpRouter(OpRouterConfig{
		Table:                         table,
		Attach:                        c.attach,
		Alias:                         c.alias,
		GC:                            gc,
		Runtime:                       cfg.Runtime,
		Storage:                       cfg.Runtime,
		DetectOutboundRoutesViaDDSKey: cfg.DetectOutboundRoutesViaDDSKey,
		Logger:                        logger,
	})
	c.request = NewRequestRouter(table, c.alias, gc, logger)
	return c
}

// resolveFactory adapts Registry.Resolve into the ChannelFactory signature
// AttachCoordinator wants for remote-store construction: the registry is
// looked up once per remote Attach, by the type carried on the wire.
func (c *Collection) resolveFactory(ctx context.Context, packagePath []string, snapshot *SnapshotTree) (Channel, error) {
	factory, err := c.registry.Resolve(packagePath)
	if err != nil {
		return nil, newUsage(err)
	}
	return factory(ctx, packagePath, snapshot)
}

// Create makes a new local store, Unbound and Detached, with an id drawn
// from the namespace matching the container's attach state at the moment of
// creation: the detached namespace if the container itself is still
// Detached, the runtime-compressor namespace otherwise. The caller must
// later call MakeVisible to bind and (if the container is attached) attach
// it.
func (c *Collection) Create(packagePath []string) (*StoreContext, error) {
	factory, err := c.registry.Resolve(packagePath)
	if err != nil {
		return nil, newUsage(err)
	}

	var id string
	if c.runtime.AttachState() == AttachStateDetached {
		id = c.ids.NextDetachedID()
	} else {
		id = NextAttachedID(c.runtime.GenerateDocumentUniqueID())
	}

	sc := newStoreContext(id, packagePath, factory, nil, c.logger)
	if err := c.table.AddUnbound(sc); err != nil {
		return nil, err
	}
	c.logger.Info("data store created", "data_store_id", id, "package_path", packagePath)
	return sc, nil
}

// MakeVisible binds sc into the addressable partition. If the container is
// attached, this also submits an Attach op and transitions sc to Attaching
// until the op round-trips; if the container is still detached, sc simply
// becomes Bound and is picked up by the next attach summary.
func (c *Collection) MakeVisible(ctx context.Context, sc *StoreContext) error {
	return c.makeVisible(ctx, sc)
}

func (c *Collection) makeVisible(ctx context.Context, sc *StoreContext) error {
	if sc.Binding() == Bound {
		return nil
	}
	if err := c.table.Bind(sc.ID()); err != nil {
		return err
	}
	if c.runtime.AttachState() == AttachStateDetached {
		return nil
	}
	return c.attach.SubmitAttach(ctx, sc)
}

// Alias reserves and submits an alias for internalID. See AliasCoordinator.
func (c *Collection) Alias(ctx context.Context, internalID, desiredAlias string) (<-chan AliasResult, error) {
	return c.alias.Alias(ctx, internalID, desiredAlias)
}

// Process dispatches one inbound container-level message.
func (c *Collection) Process(ctx context.Context, msg ContainerMessage, local bool, localMeta any) error {
	return c.router.Process(ctx, msg, local, localMeta)
}

// ProcessSignal dispatches one inbound signal.
func (c *Collection) ProcessSignal(ctx context.Context, env SignalEnvelope, local bool) error {
	return c.router.ProcessSignal(ctx, env, local)
}

// Request resolves and forwards a "/{alias-or-id}/subpath" request.
func (c *Collection) Request(ctx context.Context, url string, headers RequestHeaders) (ResponseMessage, error) {
	return c.request.Request(ctx, url, headers)
}

// Summarize produces the attached container's operational summary.
func (c *Collection) Summarize(ctx context.Context, fullTree, trackState bool) (CollectionSummary, error) {
	return c.summary.Summarize(ctx, fullTree, trackState)
}

// GetAttachSummary produces the detached container's attach summary.
func (c *Collection) GetAttachSummary(ctx context.Context) (AttachSummaryResult, error) {
	return c.summary.BuildAttachSummary(ctx)
}

// GetGCData collects the outbound-route graph across every attached store.
func (c *Collection) GetGCData(ctx context.Context, fullGC bool) (GCData, error) {
	c.gc.UpdateStateBeforeGC()
	return c.gc.GetGCData(ctx, fullGC)
}

// UpdateUsedRoutes forwards GC's used-routes verdict to every addressed
// store.
func (c *Collection) UpdateUsedRoutes(routes []string) error {
	return c.gc.UpdateUsedRoutes(routes)
}

// UpdateTombstonedRoutes forwards GC's tombstone verdict to every store.
func (c *Collection) UpdateTombstonedRoutes(routes []string) {
	c.gc.UpdateTombstonedRoutes(routes)
}

// DeleteSweepReady deletes every sweep-ready store and returns the routes
// considered deleted.
func (c *Collection) DeleteSweepReady(routes []string) []string {
	return c.gc.DeleteSweepReady(routes)
}

// SetConnectionState forwards a connectivity change to every loaded store.
func (c *Collection) SetConnectionState(connected bool, clientID string) {
	c.table.Each(func(sc *StoreContext) {
		sc.SetConnectionState(connected, clientID)
	})
}

// Dispose transitions the collection to a terminal state: every context in
// the table moves to disposed (further ops on it fail predictably), and
// pending alias futures resolve with ErrCollectionDisposed (or their last
// computed result, if one landed first) with no further reservation
// accepted.
func (c *Collection) Dispose() {
	c.table.Each(func(sc *StoreContext) {
		sc.Dispose()
	})
	c.alias.Dispose()
	c.logger.Info("collection disposed")
}

// Table exposes the underlying context table for callers (tests, the demo
// runtime) that need direct read access beyond Collection's own surface.
func (c *Collection) Table() *Table { return c.table }
