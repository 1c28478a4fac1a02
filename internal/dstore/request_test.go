// ABOUTME: Tests for RequestRouter: alias resolution, the wait/viaHandle and allowTombstone/allowInactive header gating, and sub-path tombstone override.

package dstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRequestHarness(t *testing.T) (*Table, *AliasCoordinator, *RequestRouter) {
	t.Helper()
	table := NewTable(discardLogger())
	runtime := newFakeRuntime()
	runtime.setAttachState(AttachStateAttached)
	makeVisible := func(ctx context.Context, sc *StoreContext) error {
		return table.Bind(sc.ID())
	}
	alias := NewAliasCoordinator(table, runtime, makeVisible, discardLogger())
	runtime.deliver = func(ctx context.Context, msg ContainerMessage, local bool, localMeta any) error {
		var aliasMsg AliasMessage
		if err := json.Unmarshal(msg.Content, &aliasMsg); err != nil {
			return err
		}
		return alias.ProcessAlias(aliasMsg, local)
	}
	gc := NewGCManager(table, runtime, discardLogger())
	router := NewRequestRouter(table, alias, gc, discardLogger())
	return table, alias, router
}

func TestRequestResolvesAliasAndForwardsSubPath(t *testing.T) {
	table, alias, router := newRequestHarness(t)
	sc := newTestContext("1")
	require.NoError(t, table.AddBoundOrRemoted(sc, false))
	ch, err := alias.Alias(context.Background(), "1", "root")
	require.NoError(t, err)
	require.Equal(t, AliasSuccess, <-ch)

	opContent, err := json.Marshal(fakeKVOp{Key: "greeting", Value: "hi"})
	require.NoError(t, err)
	require.NoError(t, sc.Process(context.Background(), OpContents{Content: opContent}, false, nil))

	resp, err := router.Request(context.Background(), "/root/greeting", RequestHeaders{})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "hi", resp.Value)
}

func TestRequestUnknownIDReturnsNotFound(t *testing.T) {
	_, _, router := newRequestHarness(t)
	_, err := router.Request(context.Background(), "/missing", RequestHeaders{})
	require.Error(t, err)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRequestViaHandleWaitsForBindLikeWait(t *testing.T) {
	table, _, router := newRequestHarness(t)
	sc := newTestContext("1")
	require.NoError(t, table.AddUnbound(sc))

	done := make(chan error, 1)
	go func() {
		_, err := router.Request(context.Background(), "/1", RequestHeaders{ViaHandle: true})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, table.Bind("1"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("request with ViaHandle never woke up after Bind")
	}
}

func TestRequestWithoutWaitOrViaHandleMissesUnboundStore(t *testing.T) {
	table, _, router := newRequestHarness(t)
	require.NoError(t, table.AddUnbound(newTestContext("1")))

	_, err := router.Request(context.Background(), "/1", RequestHeaders{})
	require.Error(t, err)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRequestTombstonedRootRejectedWithoutAllowHeader(t *testing.T) {
	table, _, router := newRequestHarness(t)
	sc := newTestContext("1")
	require.NoError(t, table.AddBoundOrRemoted(sc, false))
	sc.SetTombstone(true)

	_, err := router.Request(context.Background(), "/1", RequestHeaders{})
	require.Error(t, err)
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
}

func TestRequestTombstonedRootAllowedWithAllowInactive(t *testing.T) {
	table, _, router := newRequestHarness(t)
	sc := newTestContext("1")
	require.NoError(t, table.AddBoundOrRemoted(sc, false))
	sc.SetTombstone(true)

	_, err := router.Request(context.Background(), "/1", RequestHeaders{AllowInactive: true})
	require.NoError(t, err)
}

func TestRequestTombstonedStoreSubPathAlwaysAllowed(t *testing.T) {
	table, _, router := newRequestHarness(t)
	sc := newTestContext("1")
	require.NoError(t, table.AddBoundOrRemoted(sc, false))
	sc.SetTombstone(true)

	_, err := router.Request(context.Background(), "/1/sub", RequestHeaders{})
	require.NoError(t, err)
}

