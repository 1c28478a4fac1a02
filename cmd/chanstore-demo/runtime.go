// ABOUTME: demoRuntime is a synchronous, in-process stand-in for the container runtime collaborator: just enough submit/sequence/compress surface to drive Collection end to end.
// ABOUTME: Submission is synchronous and loopback: SubmitMessage hands the op straight back to the collection's own Process call, mirroring a "processed synchronously to completion" ordering guarantee.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/loomwork/chanstore/internal/dstore"
)

// demoRuntime implements dstore.Runtime for the demo binary.
type demoRuntime struct {
	logger  *slog.Logger
	storage dstore.BlobStorage

	attachState dstore.AttachState
	nextID      atomic.Uint64

	deliver func(ctx context.Context, msg dstore.ContainerMessage, local bool, localMeta any) error

	edges []gcEdge
	nodes map[string]*demoSummarizerNode
}

type gcEdge struct {
	From string
	To   string
}

type demoSummarizerNode struct{ id string }

func (n *demoSummarizerNode) ID() string { return n.id }

func newDemoRuntime(logger *slog.Logger, storage dstore.BlobStorage) *demoRuntime {
	return &demoRuntime{
		logger:      logger.With("component", "demo_runtime"),
		storage:     storage,
		attachState: dstore.AttachStateDetached,
		nodes:       make(map[string]*demoSummarizerNode),
	}
}

// SubmitMessage loops content straight back through deliver as a local op,
// simulating a sequencer that round-trips instantly. localMetadata is
// carried unchanged, matching the causal-ordering guarantee Collection's
// attach/alias bookkeeping depends on.
func (r *demoRuntime) SubmitMessage(msgType string, content any, localMetadata any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshaling submitted message: %w", err)
	}
	msg := dstore.ContainerMessage{Type: dstore.ContainerMessageType(msgType), Content: raw}
	if r.deliver == nil {
		return fmt.Errorf("demo runtime has no deliver hook wired")
	}
	return r.deliver(context.Background(), msg, true, localMetadata)
}

// SubmitSignal is a no-op for the demo: nothing subscribes to signals.
func (r *demoRuntime) SubmitSignal(sigType string, content any, targetClientID string) {
	r.logger.Debug("signal submitted", "type", sigType, "target", targetClientID)
}

// ReadBlob delegates to the wired blob store.
func (r *demoRuntime) ReadBlob(ctx context.Context, id string) ([]byte, error) {
	return r.storage.ReadBlob(ctx, id)
}

// GenerateDocumentUniqueID hands back a monotonically increasing numeric id
// most of the time, and occasionally a UUID, to exercise both id namespaces
// the allocator can draw from.
func (r *demoRuntime) GenerateDocumentUniqueID() dstore.CompressedID {
	n := r.nextID.Add(1)
	if n%5 == 0 {
		return dstore.CompressedID{UUID: uuid.NewString()}
	}
	return dstore.CompressedID{Numeric: n, IsNumeric: true}
}

// AddedOutboundReference records the edge for the demo's own end-of-run
// report; a real container forwards these into its GC sweep planner.
func (r *demoRuntime) AddedOutboundReference(fromHandle, toHandle string) {
	r.edges = append(r.edges, gcEdge{From: fromHandle, To: toHandle})
	r.logger.Debug("outbound reference added", "from", fromHandle, "to", toHandle)
}

// CreateChildSummarizerNode returns an opaque per-store node handle.
func (r *demoRuntime) CreateChildSummarizerNode(id string, _ dstore.SummarizerNodeSource) dstore.SummarizerNode {
	node := &demoSummarizerNode{id: id}
	r.nodes[id] = node
	return node
}

// DeleteChildSummarizerNode drops the node handle for id.
func (r *demoRuntime) DeleteChildSummarizerNode(id string) {
	delete(r.nodes, id)
}

// AttachState reports the container's own attach state.
func (r *demoRuntime) AttachState() dstore.AttachState { return r.attachState }

// SetAttachState drives the demo container through Detached -> Attaching ->
// Attached, the same monotone transition a real container goes through once.
func (r *demoRuntime) SetAttachState(s dstore.AttachState) { r.attachState = s }
