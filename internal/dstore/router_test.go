// ABOUTME: Tests for OpRouter: container-message dispatch by type, drop-on-deleted-store, and order-preserving outbound-handle detection.

package dstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newRouterHarness(t *testing.T) (*Table, *fakeRuntime, *OpRouter) {
	t.Helper()
	table := NewTable(discardLogger())
	runtime := newFakeRuntime()
	gc := NewGCManager(table, runtime, discardLogger())
	attach := NewAttachCoordinator(table, runtime, gc, newFakeChannelFactory(false), func(string) bool { return false }, discardLogger())
	alias := NewAliasCoordinator(table, runtime, func(ctx context.Context, sc *StoreContext) error {
		return table.Bind(sc.ID())
	}, discardLogger())
	router := NewOpRouter(OpRouterConfig{
		Table:   table,
		Attach:  attach,
		Alias:   alias,
		GC:      gc,
		Runtime: runtime,
		Storage: runtime,
		Logger:  discardLogger(),
	})
	return table, runtime, router
}

func envelopeMessage(t *testing.T, env Envelope) ContainerMessage {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return ContainerMessage{Type: ContainerMessageDataStoreOp, Content: raw}
}

func TestOpRouterProcessDataStoreOpDetectsSingleHandle(t *testing.T) {
	table, runtime, router := newRouterHarness(t)
	sc := newTestContext("1")
	require.NoError(t, table.AddBoundOrRemoted(sc, false))

	env := Envelope{
		Address: "1",
		Contents: OpContents{
			Type: "op",
			Content: rawJSON(t, map[string]any{
				"type":    "set",
				"key":     "x",
				"address": "dds0",
				"handle":  map[string]string{"type": "__fluid_handle__", "url": "/2/dds1"},
			}),
		},
	}
	require.NoError(t, router.Process(context.Background(), envelopeMessage(t, env), false, nil))

	edges := runtime.edgesSnapshot()
	require.Len(t, edges, 1)
	require.Equal(t, "/1/dds0", edges[0].from)
	require.Equal(t, "/2/dds1", edges[0].to)
}

func TestOpRouterProcessDataStoreOpDetectsMultipleHandlesInOrder(t *testing.T) {
	table, runtime, router := newRouterHarness(t)
	sc := newTestContext("1")
	require.NoError(t, table.AddBoundOrRemoted(sc, false))

	// The address field appears twice; the first one wins. The two handles
	// appear in a fixed source-text order and must be reported in that same
	// order regardless of Go's map iteration randomization.
	raw := []byte(`{
		"type": "set",
		"address": "first-address",
		"handles": [
			{"type": "__fluid_handle__", "url": "/h/one"},
			{"type": "__fluid_handle__", "url": "/h/two"}
		],
		"nested": {"address": "second-address", "type": "__fluid_handle__", "url": "/h/three"}
	}`)
	env := Envelope{Address: "1", Contents: OpContents{Type: "op", Content: raw}}
	require.NoError(t, router.Process(context.Background(), envelopeMessage(t, env), false, nil))

	edges := runtime.edgesSnapshot()
	require.Len(t, edges, 3)
	for _, e := range edges {
		require.Equal(t, "/1/first-address", e.from)
	}
	require.Equal(t, "/h/one", edges[0].to)
	require.Equal(t, "/h/two", edges[1].to)
	require.Equal(t, "/h/three", edges[2].to)
}

func TestOpRouterProcessDataStoreOpDetectionIsDeterministicAcrossRuns(t *testing.T) {
	raw := []byte(`{
		"address": "addr",
		"a": {"type": "__fluid_handle__", "url": "/h/a"},
		"b": {"type": "__fluid_handle__", "url": "/h/b"},
		"c": {"type": "__fluid_handle__", "url": "/h/c"},
		"d": {"type": "__fluid_handle__", "url": "/h/d"}
	}`)
	for i := 0; i < 20; i++ {
		table, runtime, router := newRouterHarness(t)
		require.NoError(t, table.AddBoundOrRemoted(newTestContext("1"), false))
		env := Envelope{Address: "1", Contents: OpContents{Type: "op", Content: raw}}
		require.NoError(t, router.Process(context.Background(), envelopeMessage(t, env), false, nil))

		edges := runtime.edgesSnapshot()
		require.Len(t, edges, 4)
		got := []string{edges[0].to, edges[1].to, edges[2].to, edges[3].to}
		require.Equal(t, []string{"/h/a", "/h/b", "/h/c", "/h/d"}, got)
	}
}

func TestOpRouterProcessDataStoreOpDropsOpToDeletedStore(t *testing.T) {
	table, runtime, router := newRouterHarness(t)
	require.NoError(t, table.AddBoundOrRemoted(newTestContext("1"), false))
	table.Delete("1")

	env := Envelope{Address: "1", Contents: OpContents{Type: "set", Content: rawJSON(t, map[string]any{"type": "set"})}}
	err := router.Process(context.Background(), envelopeMessage(t, env), false, nil)
	require.NoError(t, err)
	require.Empty(t, runtime.edgesSnapshot())
}

func TestOpRouterProcessUnknownMessageTypeIsInternalConsistency(t *testing.T) {
	_, _, router := newRouterHarness(t)
	err := router.Process(context.Background(), ContainerMessage{Type: "bogus"}, false, nil)
	require.Error(t, err)
	var consistency *InternalConsistencyError
	require.ErrorAs(t, err, &consistency)
}

func TestOpRouterProcessSignalToUnknownStoreIsTransient(t *testing.T) {
	_, _, router := newRouterHarness(t)
	err := router.ProcessSignal(context.Background(), SignalEnvelope{Address: "nope"}, false)
	require.Error(t, err)
	var transient *TransientError
	require.ErrorAs(t, err, &transient)
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
