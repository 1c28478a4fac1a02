// ABOUTME: Shared helpers for the reference Channel implementations: snapshot attribute encoding and outbound-handle scanning.
// ABOUTME: Both reference channels persist {pkg, isRootDataStore} into an .attributes entry, matching the persisted-layout rule every summary/attach-data path expects.

package channel

import (
	"encoding/json"

	"github.com/loomwork/chanstore/internal/dstore"
)

// attributesPath is the reserved entry every reference channel's snapshot
// carries its pkg/isRootDataStore pair under.
const attributesPath = ".attributes"

type attributes struct {
	Pkg             []string `json:"pkg"`
	IsRootDataStore bool     `json:"isRootDataStore"`
}

// handleRef is the serialized-handle shape the container protocol uses to
// mark an object handle inside an op or snapshot payload.
type handleRef struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

const handleType = "__fluid_handle__"

// readAttributes recovers pkg/isRootDataStore from a loaded snapshot, if
// present; a freshly created channel with no base snapshot has none.
func readAttributes(snapshot *dstore.SnapshotTree) attributes {
	if snapshot == nil {
		return attributes{}
	}
	for _, entry := range snapshot.Entries {
		if entry.Path == attributesPath {
			var a attributes
			if err := json.Unmarshal(entry.Blob, &a); err == nil {
				return a
			}
		}
	}
	return attributes{}
}

func encodeAttributes(pkg []string, isRoot bool) []byte {
	b, _ := json.Marshal(attributes{Pkg: pkg, IsRootDataStore: isRoot})
	return b
}

// scanHandles walks a decoded JSON value for every {"type": "__fluid_handle__",
// "url": ...} shape, returning the discovered urls in traversal order.
func scanHandles(v any) []string {
	var out []string
	walkHandles(v, &out)
	return out
}

func walkHandles(v any, out *[]string) {
	switch node := v.(type) {
	case map[string]any:
		if t, ok := node["type"].(string); ok && t == handleType {
			if url, ok := node["url"].(string); ok {
				*out = append(*out, url)
			}
		}
		for _, child := range node {
			walkHandles(child, out)
		}
	case []any:
		for _, child := range node {
			walkHandles(child, out)
		}
	}
}
