// ABOUTME: Converts a local store becoming visible into an outbound Attach op, and processes inbound Attach ops (local ack or remote creation) into the table.
// ABOUTME: pendingAttach is the reliable in-flight predicate local op submission and its inbound ack agree on; see the localMetadata round-trip this depends on in MessageSubmitter (runtime.go).

package dstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// AttachCoordinator handles local Attach submission and inbound Attach
// processing, local ack or remote creation.
type AttachCoordinator struct {
	table            *Table
	runtime          Runtime
	gc               *GCManager
	newStore         ChannelFactory
	alreadyProcessed func(string) bool

	mu            sync.Mutex
	pendingAttach map[string]struct{}
	sampledOnce   bool

	logger *slog.Logger
}

// NewAttachCoordinator wires an AttachCoordinator against the table it
// mutates, the runtime it submits ops through, the GC manager it reports
// discovered edges and new-since-last-gc ids to, the factory used to build
// remote contexts, and the global uniqueness predicate (shared with
// AliasCoordinator) used to reject a remote Attach whose id collides with
// an existing alias.
func NewAttachCoordinator(table *Table, runtime Runtime, gc *GCManager, newStore ChannelFactory, alreadyProcessed func(string) bool, logger *slog.Logger) *AttachCoordinator {
	return &AttachCoordinator{
		table:            table,
		runtime:          runtime,
		gc:               gc,
		newStore:         newStore,
		alreadyProcessed: alreadyProcessed,
		pendingAttach:    make(map[string]struct{}),
		logger:           logger.With("component", "attach_coordinator"),
	}
}

// IsPending reports whether id has an outstanding local Attach submission.
func (a *AttachCoordinator) IsPending(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pendingAttach[id]
	return ok
}

// PendingIDs returns a snapshot of the ids currently awaiting an Attach ack.
func (a *AttachCoordinator) PendingIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.pendingAttach))
	for id := range a.pendingAttach {
		ids = append(ids, id)
	}
	return ids
}

// SubmitAttach serializes sc's initial state into an Attach message and
// submits it. The caller is responsible for having already bound sc.
func (a *AttachCoordinator) SubmitAttach(ctx context.Context, sc *StoreContext) error {
	summary, err := sc.AttachData(ctx, true)
	if err != nil {
		return err
	}

	path := sc.PackagePath()
	if len(path) == 0 {
		return newUsage(fmt.Errorf("data store %q has no package path", sc.ID()))
	}
	msg := AttachMessage{
		ID:       sc.ID(),
		Type:     path[len(path)-1],
		Snapshot: summary.Snapshot,
	}

	a.mu.Lock()
	a.pendingAttach[sc.ID()] = struct{}{}
	a.mu.Unlock()

	if err := sc.SetAttachState(AttachStateAttaching); err != nil {
		a.mu.Lock()
		delete(a.pendingAttach, sc.ID())
		a.mu.Unlock()
		return err
	}

	sc.SetSummarizerNode(a.runtime.CreateChildSummarizerNode(sc.ID(), SummarizerNodeSourceLocal))

	if err := a.runtime.SubmitMessage(string(ContainerMessageAttach), msg, sc.ID()); err != nil {
		a.Rollback(sc)
		return newDataProcessing("submit attach", err)
	}
	a.logger.Info("attach submitted", "data_store_id", sc.ID(), "type", msg.Type)
	return nil
}

// Rollback undoes an Attach submission that will never be sequenced,
// reverting sc to Unbound+Detached and discarding the summarizer node
// SubmitAttach created for it.
func (a *AttachCoordinator) Rollback(sc *StoreContext) {
	a.mu.Lock()
	delete(a.pendingAttach, sc.ID())
	a.mu.Unlock()
	a.runtime.DeleteChildSummarizerNode(sc.ID())
	sc.revertToDetached()
	a.logger.Info("attach rolled back", "data_store_id", sc.ID())
}

// ProcessAttach handles an inbound Attach op, local ack or remote creation.
func (a *AttachCoordinator) ProcessAttach(ctx context.Context, msg AttachMessage, local bool, storage BlobStorage) error {
	a.fireAttachSample()
	a.gc.RecordNewSinceLastGC(msg.ID)

	if msg.Snapshot != nil {
		for _, entry := range msg.Snapshot.Entries {
			if len(entry.GCRoutes) == 0 {
				continue
			}
			from := fmt.Sprintf("/%s%s", msg.ID, normalizeNodePath(entry.Path))
			for _, target := range entry.GCRoutes {
				a.runtime.AddedOutboundReference(from, target)
			}
		}
	}

	if local {
		a.mu.Lock()
		_, pending := a.pendingAttach[msg.ID]
		if pending {
			delete(a.pendingAttach, msg.ID)
		}
		a.mu.Unlock()
		if !pending {
			return newInternalConsistency("process attach", ErrAttachAckMismatch)
		}
		sc := a.table.Get(msg.ID)
		if sc == nil {
			return newInternalConsistency("process attach", fmt.Errorf("local attach ack for unknown id %q", msg.ID))
		}
		if err := sc.SetAttachState(AttachStateAttached); err != nil {
			return err
		}
		a.logger.Info("attach acked", "data_store_id", msg.ID)
		return nil
	}

	if a.table.IsKnown(msg.ID) || a.alreadyProcessed(msg.ID) {
		return newDataCorruption("process attach", ErrDuplicateDataStore)
	}

	factory := a.newStore
	remoteFactory := func(c context.Context, path []string, snapshot *SnapshotTree) (Channel, error) {
		return factory(c, path, withInlineBlobStorage(snapshot, storage))
	}
	sc := newStoreContext(msg.ID, []string{msg.Type}, remoteFactory, msg.Snapshot, a.logger)
	sc.SetSummarizerNode(a.runtime.CreateChildSummarizerNode(msg.ID, SummarizerNodeSourceFromSummary))
	if err := sc.SetAttachState(AttachStateAttached); err != nil {
		return err
	}
	if err := a.table.AddBoundOrRemoted(sc, true); err != nil {
		return err
	}
	a.logger.Info("remote data store attached", "data_store_id", msg.ID, "type", msg.Type)
	return nil
}

// fireAttachSample fires the one-time-per-container attach sample
// telemetry event on the first processed attach, local or remote.
func (a *AttachCoordinator) fireAttachSample() {
	a.mu.Lock()
	if a.sampledOnce {
		a.mu.Unlock()
		return
	}
	a.sampledOnce = true
	a.mu.Unlock()
	a.logger.Info("first_attach_processed")
}

// normalizeNodePath ensures a flattened snapshot path is rendered as an
// absolute sub-path ("" stays "", "foo" becomes "/foo").
func normalizeNodePath(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	if path[0] == '/' {
		return path
	}
	return "/" + path
}

// withInlineBlobStorage returns snapshot unchanged and ignores the parent's
// storage: a remote context's channel is built from the attach snapshot
// alone, using the blobs inlined in SnapshotEntry.Blob. An entry that
// carries only a BlobID is not fetched from storage.
func withInlineBlobStorage(snapshot *SnapshotTree, _ BlobStorage) *SnapshotTree {
	return snapshot
}
