// ABOUTME: KV is a minimal key/value reference channel: enough state-machine surface to drive process/summarize/attach-data/GC-data through the collection in tests and the demo.
// ABOUTME: Values may themselves be serialized handles; KV's own GetGCData scans its stored values the same way the collection's op pipeline scans op payloads.

package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/loomwork/chanstore/internal/dstore"
)

// KVOp is the op-content shape KV understands.
type KVOp struct {
	Type  string `json:"type"` // "set" | "delete"
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// KV is a reference Channel backed by an in-memory map.
type KV struct {
	packagePath []string

	mu     sync.Mutex
	data   map[string]any
	isRoot bool
}

// NewKV constructs a KV channel, loading from snapshot if one was provided
// (a remote or reloaded store); snapshot == nil means a freshly created
// local store with no prior state.
func NewKV(_ context.Context, packagePath []string, snapshot *dstore.SnapshotTree) (dstore.Channel, error) {
	kv := &KV{packagePath: packagePath, data: make(map[string]any)}
	attrs := readAttributes(snapshot)
	kv.isRoot = attrs.IsRootDataStore

	if snapshot != nil {
		for _, entry := range snapshot.Entries {
			if entry.Path == attributesPath || entry.Path == "" {
				continue
			}
			var v any
			if err := json.Unmarshal(entry.Blob, &v); err == nil {
				kv.data[entry.Path] = v
			}
		}
	}
	return kv, nil
}

// Process applies a set or delete op.
func (k *KV) Process(_ context.Context, contents dstore.OpContents, _ bool, _ any) error {
	var op KVOp
	if err := json.Unmarshal(contents.Content, &op); err != nil {
		return fmt.Errorf("decoding kv op: %w", err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	switch op.Type {
	case "set":
		k.data[op.Key] = op.Value
	case "delete":
		delete(k.data, op.Key)
	default:
		return fmt.Errorf("unknown kv op type %q", op.Type)
	}
	return nil
}

// ProcessSignal is a no-op: KV has no signal surface.
func (k *KV) ProcessSignal(context.Context, json.RawMessage, bool) error { return nil }

// Realize is a no-op: KV has no lazy sub-state to load beyond construction.
func (k *KV) Realize(context.Context) error { return nil }

// GetGCData scans every stored value for serialized handles and reports
// them as this channel's own outbound routes, rooted at its own empty path.
func (k *KV) GetGCData(context.Context, bool) (dstore.GCData, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var routes []string
	for _, v := range k.data {
		routes = append(routes, scanHandles(v)...)
	}
	return dstore.GCData{Nodes: []dstore.GCNode{{ID: "", Routes: routes}}}, nil
}

// Summarize renders the current map into a single-blob summary tree keyed
// "kv", plus the attributes entry.
func (k *KV) Summarize(_ context.Context, _ bool, _ bool) (*dstore.SummaryTree, dstore.SummaryStats, error) {
	k.mu.Lock()
	blob, err := json.Marshal(k.sortedData())
	isRoot := k.isRoot
	k.mu.Unlock()
	if err != nil {
		return nil, dstore.SummaryStats{}, err
	}
	tree := &dstore.SummaryTree{Children: map[string]*dstore.SummaryTree{
		"kv":           {Blob: blob},
		attributesPath: {Blob: encodeAttributes(k.packagePath, isRoot)},
	}}
	return tree, dstore.SummaryStats{TreeNodeCount: 2, BlobNodeCount: 2, TotalBlobSize: int64(len(blob))}, nil
}

// AttachData flattens the current map into the wire snapshot shape used for
// both the outbound Attach op and the detached attach summary.
func (k *KV) AttachData(_ context.Context, includeGC bool) (dstore.AttachSummary, error) {
	k.mu.Lock()
	blob, err := json.Marshal(k.sortedData())
	isRoot := k.isRoot
	k.mu.Unlock()
	if err != nil {
		return dstore.AttachSummary{}, err
	}

	snapshot := &dstore.SnapshotTree{Entries: []dstore.SnapshotEntry{
		{Path: "kv", Blob: blob},
		{Path: attributesPath, Blob: encodeAttributes(k.packagePath, isRoot)},
	}}
	summary := dstore.AttachSummary{Snapshot: snapshot}
	if includeGC {
		gc, _ := k.GetGCData(context.Background(), true)
		summary.GCData = &gc
	}
	return summary, nil
}

func (k *KV) sortedData() map[string]any {
	out := make(map[string]any, len(k.data))
	keys := make([]string, 0, len(k.data))
	for key := range k.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out[key] = k.data[key]
	}
	return out
}

// Resubmit re-applies a local op unchanged; KV's ops carry no sequencing
// assumptions that a reconnect could invalidate.
func (k *KV) Resubmit(ctx context.Context, _ string, content json.RawMessage, localMeta any) error {
	return k.Process(ctx, dstore.OpContents{Type: "set", Content: content}, true, localMeta)
}

// Rollback is a no-op: a KV op that never sequenced never mutated state,
// since Process is only called once an op is delivered through the router.
func (k *KV) Rollback(context.Context, string, json.RawMessage, any) error { return nil }

// ApplyStashedOp replays an offline op the same way Process does.
func (k *KV) ApplyStashedOp(ctx context.Context, content json.RawMessage) error {
	return k.Process(ctx, dstore.OpContents{Type: "set", Content: content}, false, nil)
}

// Request serves GET /{key} by returning the stored value, or a 404-shaped
// response for an unknown key.
func (k *KV) Request(_ context.Context, req dstore.RequestMessage) (dstore.ResponseMessage, error) {
	k.mu.Lock()
	v, ok := k.data[req.Path]
	k.mu.Unlock()
	if !ok {
		return dstore.ResponseMessage{Status: 404}, nil
	}
	return dstore.ResponseMessage{Status: 200, MimeType: "application/json", Value: v}, nil
}

// SetConnectionState is a no-op: KV has no connection-dependent state.
func (k *KV) SetConnectionState(bool, string) {}

// IsRoot reports the root flag loaded from this channel's attributes.
func (k *KV) IsRoot() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.isRoot
}
