// ABOUTME: Exposes the collection's outbound-route graph and consumes used/tombstoned/sweep-ready route sets on behalf of the container's garbage collector.
// ABOUTME: Deletion only ever happens here, driven by delete_sweep_ready; every other component only reads or marks flags on a StoreContext.

package dstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// rootHandlePath is the synthetic GC node the container itself occupies;
// every aliased (root) data store hangs off it.
const rootHandlePath = "/"

// GCManager tracks the outbound-route graph and drives sweep. It never
// mutates table partitions except via the delete path, which is the sole
// way a context leaves the table.
type GCManager struct {
	table   *Table
	runtime Runtime

	mu             sync.Mutex
	newSinceLastGC map[string]struct{}

	logger *slog.Logger
}

// NewGCManager wires a GCManager against the table it reads and the runtime
// it notifies of discovered edges.
func NewGCManager(table *Table, runtime Runtime, logger *slog.Logger) *GCManager {
	return &GCManager{
		table:          table,
		runtime:        runtime,
		newSinceLastGC: make(map[string]struct{}),
		logger:         logger.With("component", "gc_manager"),
	}
}

// RecordNewSinceLastGC records id as having appeared since the last GC pass;
// AttachCoordinator calls this for every processed Attach, local or remote.
func (g *GCManager) RecordNewSinceLastGC(id string) {
	g.mu.Lock()
	g.newSinceLastGC[id] = struct{}{}
	g.mu.Unlock()
}

// UpdateStateBeforeGC emits an outbound edge from the container handle to
// every new-since-last-gc store that has resolved as root, then clears the
// list. Non-root stores are dropped silently: they simply have no container
// edge until (if ever) they are aliased.
func (g *GCManager) UpdateStateBeforeGC() {
	g.mu.Lock()
	ids := make([]string, 0, len(g.newSinceLastGC))
	for id := range g.newSinceLastGC {
		ids = append(ids, id)
	}
	g.newSinceLastGC = make(map[string]struct{})
	g.mu.Unlock()

	for _, id := range ids {
		sc := g.table.Get(id)
		if sc == nil || !sc.IsRoot() {
			continue
		}
		g.runtime.AddedOutboundReference(rootHandlePath, "/"+id)
	}
}

// GetGCData collects every Attached context's GC nodes, absolutizes their
// ids under /{contextID}, and adds a synthetic root node whose routes are
// every root data store. It fails deterministically if any context is
// Attaching: the summarizer must never run GC collection against local
// uncommitted state.
func (g *GCManager) GetGCData(ctx context.Context, fullGC bool) (GCData, error) {
	var outerErr error
	var roots []string
	nodes := []GCNode{}

	g.table.Each(func(sc *StoreContext) {
		if outerErr != nil {
			return
		}
		if sc.AttachState() == AttachStateAttaching {
			outerErr = newDataProcessing("get gc data", ErrGCDuringAttaching)
			return
		}
		if sc.AttachState() != AttachStateAttached {
			return
		}
		if sc.IsRoot() {
			roots = append(roots, "/"+sc.ID())
		}
		data, err := sc.GetGCData(ctx, fullGC)
		if err != nil {
			outerErr = err
			return
		}
		for _, n := range data.Nodes {
			nodes = append(nodes, GCNode{
				ID:     absoluteNodeID(sc.ID(), n.ID),
				Routes: n.Routes,
			})
		}
	})
	if outerErr != nil {
		return GCData{}, outerErr
	}

	nodes = append(nodes, GCNode{ID: rootHandlePath, Routes: roots})
	return GCData{Nodes: nodes}, nil
}

// absoluteNodeID prefixes a store-relative node id with the store's id so
// the resulting path is absolute from the container root.
func absoluteNodeID(storeID, nodeID string) string {
	if nodeID == "" || nodeID == "/" {
		return "/" + storeID
	}
	if nodeID[0] == '/' {
		return "/" + storeID + nodeID
	}
	return "/" + storeID + "/" + nodeID
}

// UpdateUsedRoutes partitions routes by their first path segment (the
// addressed store) and forwards each store its own sub-routes, empty for a
// store mentioned by none. Returns an error naming any segment that does
// not correspond to a known store.
func (g *GCManager) UpdateUsedRoutes(routes []string) error {
	byStore := make(map[string][]string)
	g.table.Each(func(sc *StoreContext) {
		byStore[sc.ID()] = nil
	})

	for _, route := range routes {
		storeID, _, ok := splitRoute(route)
		if !ok {
			continue
		}
		if _, known := byStore[storeID]; !known {
			return newDataProcessing("update used routes", fmt.Errorf("route %q addresses unknown store %q", route, storeID))
		}
		byStore[storeID] = append(byStore[storeID], route)
	}

	for storeID, sub := range byStore {
		sc := g.table.Get(storeID)
		if sc == nil {
			continue
		}
		sc.UpdateUsedRoutes(sub)
	}
	return nil
}

// UpdateTombstonedRoutes marks a store tombstoned iff its exact /id route
// (two path segments) appears; a sub-route inside the store does not
// tombstone the parent context.
func (g *GCManager) UpdateTombstonedRoutes(routes []string) {
	tombstoned := make(map[string]struct{})
	for _, route := range routes {
		parts := strings.Split(strings.TrimPrefix(route, "/"), "/")
		if len(parts) == 1 && parts[0] != "" {
			tombstoned[parts[0]] = struct{}{}
		}
	}
	g.table.Each(func(sc *StoreContext) {
		_, isTombstoned := tombstoned[sc.ID()]
		sc.SetTombstone(isTombstoned)
	})
}

// DeleteSweepReady deletes every data-store-scoped route (sub-paths within a
// store are ignored) and returns the full input set as "deleted", matching
// the legacy contract: the caller does not need a second read to know what
// happened. Missing contexts are logged, never thrown: at generic severity
// if the store was already deleted, at error severity otherwise, since the
// latter indicates the sweep set disagreed with the table.
func (g *GCManager) DeleteSweepReady(routes []string) []string {
	for _, route := range routes {
		storeID, rest, ok := splitRoute(route)
		if !ok || rest != "" {
			continue
		}
		g.deleteStore(storeID)
	}
	return routes
}

func (g *GCManager) deleteStore(id string) {
	sc := g.table.Get(id)
	if sc == nil {
		if g.table.IsDeleted(id) {
			g.logger.Debug("sweep entry for already-deleted store", "data_store_id", id)
		} else {
			g.logger.Error("sweep entry for unknown store", "data_store_id", id)
		}
		return
	}
	sc.delete()
	g.table.Delete(id)
	g.runtime.DeleteChildSummarizerNode(id)
	g.logger.Info("data store deleted by sweep", "data_store_id", id)
}

// NodeUpdated records a GC-observed activity event against path, fire-and-
// forget: used by the channel-op pipeline, which only needs GC to know the
// node moved, not to gate anything on it.
func (g *GCManager) NodeUpdated(path, reason string) {
	g.logger.Debug("gc node updated", "path", path, "reason", reason, "at", time.Now().UTC())
}

// NodeUpdatedForRequest is the request-path variant: it reports the same
// event but, if storeID (the request's resolved internal id, not the
// alias-or-id the caller typed) is tombstoned and the caller did not set
// allowTombstone, it fails instead of logging. path is the alias-or-id form
// logged against the event.
func (g *GCManager) NodeUpdatedForRequest(path, storeID, reason string, allowTombstone bool) error {
	if sc := g.table.Get(storeID); sc != nil && sc.IsTombstoned() && !allowTombstone {
		return newUsage(fmt.Errorf("data store %q is tombstoned", storeID))
	}
	g.NodeUpdated(path, reason)
	return nil
}

// splitRoute splits an absolute route "/id/sub/path" into its store id and
// remainder ("sub/path", possibly empty). A malformed route (no leading
// slash, or empty) reports ok=false.
func splitRoute(route string) (storeID, rest string, ok bool) {
	if route == "" || route[0] != '/' {
		return "", "", false
	}
	trimmed := route[1:]
	if trimmed == "" {
		return "", "", false
	}
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, "", true
	}
	return trimmed[:idx], trimmed[idx+1:], true
}
