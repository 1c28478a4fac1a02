// ABOUTME: Shared test fixtures: a fake Runtime and a trivial kv-shaped Channel, so dstore's own tests don't depend on internal/channel.
// ABOUTME: fakeRuntime's SubmitMessage loops back synchronously into a caller-supplied deliver hook, mirroring a single-threaded cooperative round trip.

package dstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

type fakeRuntime struct {
	mu           sync.Mutex
	attachState  AttachState
	deliver      func(ctx context.Context, msg ContainerMessage, local bool, localMeta any) error
	edges        []edge
	blobs        map[string][]byte
	nextID       uint64
	createdNodes map[string]SummarizerNodeSource
	deletedNodes []string
}

type edge struct {
	from, to string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{blobs: make(map[string][]byte), createdNodes: make(map[string]SummarizerNodeSource)}
}

func (r *fakeRuntime) SubmitMessage(msgType string, content any, localMetadata any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return r.deliver(context.Background(), ContainerMessage{Type: ContainerMessageType(msgType), Content: raw}, true, localMetadata)
}

func (r *fakeRuntime) SubmitSignal(string, any, string) {}

func (r *fakeRuntime) ReadBlob(_ context.Context, id string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs[id], nil
}

func (r *fakeRuntime) GenerateDocumentUniqueID() CompressedID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return CompressedID{Numeric: r.nextID, IsNumeric: true}
}

func (r *fakeRuntime) AddedOutboundReference(from, to string) {
	r.mu.Lock()
	r.edges = append(r.edges, edge{from, to})
	r.mu.Unlock()
}

func (r *fakeRuntime) CreateChildSummarizerNode(id string, source SummarizerNodeSource) SummarizerNode {
	r.mu.Lock()
	r.createdNodes[id] = source
	r.mu.Unlock()
	return fakeSummarizerNode{id}
}

func (r *fakeRuntime) DeleteChildSummarizerNode(id string) {
	r.mu.Lock()
	r.deletedNodes = append(r.deletedNodes, id)
	r.mu.Unlock()
}

func (r *fakeRuntime) createdNodeSource(id string) SummarizerNodeSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createdNodes[id]
}

func (r *fakeRuntime) AttachState() AttachState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachState
}

func (r *fakeRuntime) setAttachState(s AttachState) {
	r.mu.Lock()
	r.attachState = s
	r.mu.Unlock()
}

func (r *fakeRuntime) edgesSnapshot() []edge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]edge(nil), r.edges...)
}

type fakeSummarizerNode struct{ id string }

func (n fakeSummarizerNode) ID() string { return n.id }

// fakeKVOp is the only op shape fakeChannel understands.
type fakeKVOp struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// fakeChannel is a minimal in-memory Channel used across dstore's own tests.
type fakeChannel struct {
	mu     sync.Mutex
	data   map[string]any
	isRoot bool
}

func newFakeChannelFactory(isRoot bool) ChannelFactory {
	return func(_ context.Context, _ []string, snapshot *SnapshotTree) (Channel, error) {
		ch := &fakeChannel{data: make(map[string]any), isRoot: isRoot}
		if snapshot != nil {
			for _, entry := range snapshot.Entries {
				var v any
				if json.Unmarshal(entry.Blob, &v) == nil {
					ch.data[entry.Path] = v
				}
			}
		}
		return ch, nil
	}
}

func (c *fakeChannel) Process(_ context.Context, contents OpContents, _ bool, _ any) error {
	var op fakeKVOp
	if err := json.Unmarshal(contents.Content, &op); err != nil {
		return err
	}
	c.mu.Lock()
	c.data[op.Key] = op.Value
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) ProcessSignal(context.Context, json.RawMessage, bool) error { return nil }
func (c *fakeChannel) Realize(context.Context) error                             { return nil }

func (c *fakeChannel) GetGCData(context.Context, bool) (GCData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var routes []string
	for _, v := range c.data {
		if m, ok := v.(map[string]any); ok {
			if t, _ := m["type"].(string); t == serializedHandleType {
				if url, ok := m["url"].(string); ok {
					routes = append(routes, url)
				}
			}
		}
	}
	return GCData{Nodes: []GCNode{{ID: "", Routes: routes}}}, nil
}

func (c *fakeChannel) Summarize(context.Context, bool, bool) (*SummaryTree, SummaryStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &SummaryTree{Children: map[string]*SummaryTree{"data": {Blob: c.encode()}}},
		SummaryStats{TreeNodeCount: 1}, nil
}

func (c *fakeChannel) AttachData(_ context.Context, _ bool) (AttachSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AttachSummary{Snapshot: &SnapshotTree{Entries: []SnapshotEntry{{Path: "data", Blob: c.encode()}}}}, nil
}

func (c *fakeChannel) encode() []byte {
	b, _ := json.Marshal(c.data)
	return b
}

func (c *fakeChannel) Resubmit(ctx context.Context, _ string, content json.RawMessage, localMeta any) error {
	return c.Process(ctx, OpContents{Content: content}, true, localMeta)
}

func (c *fakeChannel) Rollback(context.Context, string, json.RawMessage, any) error { return nil }

func (c *fakeChannel) ApplyStashedOp(ctx context.Context, content json.RawMessage) error {
	return c.Process(ctx, OpContents{Content: content}, false, nil)
}

func (c *fakeChannel) Request(_ context.Context, req RequestMessage) (ResponseMessage, error) {
	c.mu.Lock()
	v, ok := c.data[req.Path]
	c.mu.Unlock()
	if !ok {
		return ResponseMessage{Status: 404}, nil
	}
	return ResponseMessage{Status: 200, Value: v}, nil
}

func (c *fakeChannel) SetConnectionState(bool, string) {}
func (c *fakeChannel) IsRoot() bool                     { return c.isRoot }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
