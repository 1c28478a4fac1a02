// ABOUTME: Wire message shapes exchanged with the container's sequenced op stream, and the downstream Channel contract every data store must implement.
// ABOUTME: Wire messages are JSON-shaped per the container protocol; this package never assumes a binary encoding for them.

package dstore

import (
	"context"
	"encoding/json"
)

// ContainerMessageType identifies which of the three container-level
// message kinds an inbound op carries.
type ContainerMessageType string

const (
	ContainerMessageAttach      ContainerMessageType = "Attach"
	ContainerMessageAlias       ContainerMessageType = "Alias"
	ContainerMessageDataStoreOp ContainerMessageType = "DataStoreOp"
)

// ContainerMessage is the envelope every inbound container-level op arrives
// in; Content is re-decoded by OpRouter once the type is known.
type ContainerMessage struct {
	Type    ContainerMessageType `json:"type"`
	Content json.RawMessage      `json:"content"`
}

// AttachMessage is the persisted/wire form of a store's attach op.
type AttachMessage struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Snapshot *SnapshotTree `json:"snapshot,omitempty"`
}

// AliasMessage is the wire form of an alias reservation commit.
type AliasMessage struct {
	Type       string `json:"type"`
	InternalID string `json:"internalId"`
	Alias      string `json:"alias"`
}

// Envelope routes a channel op to the data store addressed by ID.
type Envelope struct {
	Address  string     `json:"address"`
	Contents OpContents `json:"contents"`
}

// OpContents is the per-channel op payload carried inside an Envelope.
type OpContents struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// SignalEnvelope routes a signal to the data store addressed by Address; an
// empty Address means the signal targets the collection itself.
type SignalEnvelope struct {
	Address  string          `json:"address"`
	Contents json.RawMessage `json:"contents"`
}

// SnapshotTree is the flattened, blob-inlined form of a store's initial
// tree, as carried in an Attach message or loaded from a container
// snapshot.
type SnapshotTree struct {
	Entries []SnapshotEntry `json:"entries"`
	GroupID string          `json:"groupId,omitempty"`
}

// SnapshotEntry is one flattened path within a store's tree. GCRoutes, when
// present, are the outbound routes recorded against this node at the time
// the snapshot was produced.
type SnapshotEntry struct {
	Path     string   `json:"path"`
	Blob     []byte   `json:"blob,omitempty"`
	BlobID   string   `json:"blobId,omitempty"`
	GCRoutes []string `json:"gcRoutes,omitempty"`
}

// GCNode is one node in the outbound-reference graph: an absolute id and
// the absolute ids it points to.
type GCNode struct {
	ID     string
	Routes []string
}

// GCData is what a channel reports about its own outbound-reference graph.
type GCData struct {
	Nodes []GCNode
}

// SummaryStats carries the size/count bookkeeping a summarize pass reports
// upward, independent of the actual tree content.
type SummaryStats struct {
	TreeNodeCount int
	BlobNodeCount int
	TotalBlobSize int64
}

// SummaryTree is a generic, recursively-keyed summary tree. A leaf sets Blob
// and leaves Children nil; an interior node sets Children and leaves Blob
// nil.
type SummaryTree struct {
	Blob     []byte
	Children map[string]*SummaryTree
}

// AttachSummary is what a store reports when asked for its attach-time
// snapshot.
type AttachSummary struct {
	Snapshot *SnapshotTree
	GCData   *GCData
}

// RequestMessage is a sub-path request forwarded to a realized channel
// after RequestRouter resolves the owning store.
type RequestMessage struct {
	Path    string
	Query   map[string][]string
	Headers RequestHeaders
}

// RequestHeaders are the per-request options a caller can set.
type RequestHeaders struct {
	Wait           bool
	ViaHandle      bool
	AllowTombstone bool
	AllowInactive  bool
}

// ResponseMessage is what a realized channel hands back for a request.
type ResponseMessage struct {
	Status   int
	MimeType string
	Value    any
}

// Channel is the downstream contract every data-store implementation
// (a DDS-bearing object, in the terminology of this subsystem) must
// satisfy. The collection never interprets channel content; it only
// routes to and reports on it.
type Channel interface {
	Process(ctx context.Context, contents OpContents, local bool, localMeta any) error
	ProcessSignal(ctx context.Context, contents json.RawMessage, local bool) error
	Realize(ctx context.Context) error
	GetGCData(ctx context.Context, fullGC bool) (GCData, error)
	Summarize(ctx context.Context, fullTree bool, trackState bool) (*SummaryTree, SummaryStats, error)
	AttachData(ctx context.Context, includeGC bool) (AttachSummary, error)
	Resubmit(ctx context.Context, opType string, content json.RawMessage, localMeta any) error
	Rollback(ctx context.Context, opType string, content json.RawMessage, localMeta any) error
	ApplyStashedOp(ctx context.Context, content json.RawMessage) error
	Request(ctx context.Context, req RequestMessage) (ResponseMessage, error)
	SetConnectionState(connected bool, clientID string)
	IsRoot() bool
}

// ChannelFactory realizes a channel from its package path and, for a
// remote or reloaded store, a base snapshot to load from. A nil snapshot
// means a freshly created local store with no prior state.
type ChannelFactory func(ctx context.Context, packagePath []string, snapshot *SnapshotTree) (Channel, error)

// serializedHandleType is the wire tag the container protocol uses to mark
// a serialized object handle inside an op payload; see the outbound-
// reference detection rule in ChannelOpPipeline.
const serializedHandleType = "__fluid_handle__"
