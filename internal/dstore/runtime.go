// ABOUTME: Upstream collaborator interfaces consumed by the collection.
// ABOUTME: The container runtime, blob storage, id compressor, GC sink, and summarizer-node tree are all external; this package only declares what it needs from them.

package dstore

import "context"

// AttachState describes where a container or an individual data store sits
// in the attach lifecycle. Transitions are monotone: Detached -> Attaching
// -> Attached, never backwards, except for the dedicated attach-rollback
// path which reverts an uncommitted Attaching store to Detached before it
// was ever observed by anyone else.
type AttachState int

const (
	AttachStateDetached AttachState = iota
	AttachStateAttaching
	AttachStateAttached
)

func (s AttachState) String() string {
	switch s {
	case AttachStateDetached:
		return "Detached"
	case AttachStateAttaching:
		return "Attaching"
	case AttachStateAttached:
		return "Attached"
	default:
		return "Unknown"
	}
}

// MessageSubmitter submits container-level ops and signals to the
// sequencer. localMetadata round-trips back through the inbound stream
// attached to the corresponding op, which is how pending-attach and
// pending-alias bookkeeping confirms a local op was sequenced.
type MessageSubmitter interface {
	SubmitMessage(msgType string, content any, localMetadata any) error
	SubmitSignal(sigType string, content any, targetClientID string)
}

// BlobStorage fetches blobs by id from the container's storage service.
type BlobStorage interface {
	ReadBlob(ctx context.Context, id string) ([]byte, error)
}

// CompressedID is what the id compressor hands back: either a numeric id
// (compactly encodable) or a UUID string, never both.
type CompressedID struct {
	Numeric   uint64
	IsNumeric bool
	UUID      string
}

// IDCompressor generates globally unique ids for newly attached stores.
type IDCompressor interface {
	GenerateDocumentUniqueID() CompressedID
}

// GCSink receives outbound-reference edges as they're discovered, independent
// of the batched get_gc_data() read path.
type GCSink interface {
	AddedOutboundReference(fromHandle, toHandle string)
}

// SummarizerNodeSource distinguishes a freshly attached node from one that
// already carries a base summary to load from.
type SummarizerNodeSource int

const (
	SummarizerNodeSourceLocal SummarizerNodeSource = iota
	SummarizerNodeSourceFromSummary
)

// SummarizerNode is an opaque handle into the summarizer-node tree; this
// package never inspects it beyond the id.
type SummarizerNode interface {
	ID() string
}

// SummarizerNodeFactory creates and deletes the per-store node in the
// summarizer-node tree that backs incremental summarization.
type SummarizerNodeFactory interface {
	CreateChildSummarizerNode(id string, source SummarizerNodeSource) SummarizerNode
	DeleteChildSummarizerNode(id string)
}

// Runtime aggregates every upstream collaborator the collection needs. A
// parent container runtime implements this once; individual components
// accept the narrower interface they actually use.
type Runtime interface {
	MessageSubmitter
	BlobStorage
	IDCompressor
	GCSink
	SummarizerNodeFactory
	AttachState() AttachState
}
