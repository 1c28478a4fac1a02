// ABOUTME: Note is a markdown reference channel: its request path renders stored markdown to HTML via goldmark, exercising RequestRouter's sub-path forwarding end to end.
// ABOUTME: Unlike KV, Note's own content never embeds handles, so its GC data is always a single routeless node; it exists to exercise the render path, not GC.

package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"

	"github.com/loomwork/chanstore/internal/dstore"
)

// NoteOp is the op-content shape Note understands: replace the whole body.
type NoteOp struct {
	Body string `json:"body"`
}

// Note is a reference Channel holding a single markdown document.
type Note struct {
	packagePath []string

	mu     sync.Mutex
	body   string
	isRoot bool
}

// NewNote constructs a Note channel, loading from snapshot if one was
// provided.
func NewNote(_ context.Context, packagePath []string, snapshot *dstore.SnapshotTree) (dstore.Channel, error) {
	n := &Note{packagePath: packagePath}
	attrs := readAttributes(snapshot)
	n.isRoot = attrs.IsRootDataStore

	if snapshot != nil {
		for _, entry := range snapshot.Entries {
			if entry.Path == "body" {
				n.body = string(entry.Blob)
			}
		}
	}
	return n, nil
}

// Process replaces the note's body.
func (n *Note) Process(_ context.Context, contents dstore.OpContents, _ bool, _ any) error {
	var op NoteOp
	if err := json.Unmarshal(contents.Content, &op); err != nil {
		return fmt.Errorf("decoding note op: %w", err)
	}
	n.mu.Lock()
	n.body = op.Body
	n.mu.Unlock()
	return nil
}

// ProcessSignal is a no-op: Note has no signal surface.
func (n *Note) ProcessSignal(context.Context, json.RawMessage, bool) error { return nil }

// Realize is a no-op.
func (n *Note) Realize(context.Context) error { return nil }

// GetGCData reports a single routeless node: markdown text never carries a
// serialized handle in this reference channel.
func (n *Note) GetGCData(context.Context, bool) (dstore.GCData, error) {
	return dstore.GCData{Nodes: []dstore.GCNode{{ID: ""}}}, nil
}

// Summarize renders the body and attributes into a summary tree.
func (n *Note) Summarize(context.Context, bool, bool) (*dstore.SummaryTree, dstore.SummaryStats, error) {
	n.mu.Lock()
	body := n.body
	isRoot := n.isRoot
	n.mu.Unlock()
	tree := &dstore.SummaryTree{Children: map[string]*dstore.SummaryTree{
		"body":         {Blob: []byte(body)},
		attributesPath: {Blob: encodeAttributes(n.packagePath, isRoot)},
	}}
	return tree, dstore.SummaryStats{TreeNodeCount: 2, BlobNodeCount: 2, TotalBlobSize: int64(len(body))}, nil
}

// AttachData flattens the body and attributes into the wire snapshot shape.
func (n *Note) AttachData(ctx context.Context, includeGC bool) (dstore.AttachSummary, error) {
	n.mu.Lock()
	body := n.body
	isRoot := n.isRoot
	n.mu.Unlock()

	snapshot := &dstore.SnapshotTree{Entries: []dstore.SnapshotEntry{
		{Path: "body", Blob: []byte(body)},
		{Path: attributesPath, Blob: encodeAttributes(n.packagePath, isRoot)},
	}}
	summary := dstore.AttachSummary{Snapshot: snapshot}
	if includeGC {
		gc, _ := n.GetGCData(ctx, true)
		summary.GCData = &gc
	}
	return summary, nil
}

// Resubmit replaces the body unchanged.
func (n *Note) Resubmit(ctx context.Context, _ string, content json.RawMessage, localMeta any) error {
	return n.Process(ctx, dstore.OpContents{Type: "replace", Content: content}, true, localMeta)
}

// Rollback is a no-op.
func (n *Note) Rollback(context.Context, string, json.RawMessage, any) error { return nil }

// ApplyStashedOp replays an offline op the same way Process does.
func (n *Note) ApplyStashedOp(ctx context.Context, content json.RawMessage) error {
	return n.Process(ctx, dstore.OpContents{Type: "replace", Content: content}, false, nil)
}

// Request serves GET /render by rendering the stored markdown to HTML via
// goldmark; any other sub-path returns the raw body.
func (n *Note) Request(_ context.Context, req dstore.RequestMessage) (dstore.ResponseMessage, error) {
	n.mu.Lock()
	body := n.body
	n.mu.Unlock()

	if req.Path != "render" {
		return dstore.ResponseMessage{Status: 200, MimeType: "text/plain", Value: body}, nil
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return dstore.ResponseMessage{}, fmt.Errorf("rendering note: %w", err)
	}
	return dstore.ResponseMessage{Status: 200, MimeType: "text/html", Value: buf.String()}, nil
}

// SetConnectionState is a no-op.
func (n *Note) SetConnectionState(bool, string) {}

// IsRoot reports the root flag loaded from this channel's attributes.
func (n *Note) IsRoot() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isRoot
}
