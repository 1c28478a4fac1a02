// ABOUTME: Tests for StoreContext's state machine: lazy realization, monotone attach-state transitions, and the deleted/disposed-context failure modes.

package dstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreContextRealizeIsIdempotent(t *testing.T) {
	calls := 0
	factory := func(ctx context.Context, path []string, snap *SnapshotTree) (Channel, error) {
		calls++
		return newFakeChannelFactory(false)(ctx, path, snap)
	}
	sc := newStoreContext("1", []string{"kv"}, factory, nil, discardLogger())

	ch1, err := sc.Realize(context.Background())
	require.NoError(t, err)
	ch2, err := sc.Realize(context.Background())
	require.NoError(t, err)

	require.Same(t, ch1, ch2)
	require.Equal(t, 1, calls)
	require.True(t, sc.IsLoaded())
}

func TestStoreContextSetAttachStateIsMonotone(t *testing.T) {
	sc := newTestContext("1")
	require.NoError(t, sc.SetAttachState(AttachStateAttaching))
	require.NoError(t, sc.SetAttachState(AttachStateAttached))

	err := sc.SetAttachState(AttachStateAttaching)
	require.Error(t, err)
	var consistency *InternalConsistencyError
	require.ErrorAs(t, err, &consistency)
}

func TestStoreContextDeletedOperationsFail(t *testing.T) {
	sc := newTestContext("1")
	sc.delete()

	_, err := sc.Realize(context.Background())
	require.Error(t, err)
	var corruption *DataCorruptionError
	require.ErrorAs(t, err, &corruption)
	require.ErrorIs(t, err, ErrDeleted)
}

func TestStoreContextDisposedOperationsFailPredictably(t *testing.T) {
	sc := newTestContext("1")
	require.False(t, sc.IsDisposed())

	sc.Dispose()
	require.True(t, sc.IsDisposed())

	_, err := sc.Realize(context.Background())
	require.Error(t, err)
	var processing *DataProcessingError
	require.ErrorAs(t, err, &processing)
	require.ErrorIs(t, err, ErrCollectionDisposed)

	_, err = sc.AttachData(context.Background(), true)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCollectionDisposed)

	// Dispose is idempotent.
	sc.Dispose()
	require.True(t, sc.IsDisposed())
}

func TestStoreContextDeletedTakesPrecedenceOverDisposed(t *testing.T) {
	sc := newTestContext("1")
	sc.delete()
	sc.Dispose()

	_, err := sc.Realize(context.Background())
	require.Error(t, err)
	var corruption *DataCorruptionError
	require.ErrorAs(t, err, &corruption)
	require.ErrorIs(t, err, ErrDeleted)
}

func TestCollectionDisposeTransitionsEveryContextToTerminal(t *testing.T) {
	cfg := CollectionConfig{
		Runtime:  newFakeRuntime(),
		Registry: testRegistry{},
		Logger:   discardLogger(),
	}
	coll := NewCollection(cfg)
	sc, err := coll.Create([]string{"kv"})
	require.NoError(t, err)
	require.NoError(t, coll.MakeVisible(context.Background(), sc))

	coll.Dispose()
	require.True(t, sc.IsDisposed())

	_, err = sc.Realize(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCollectionDisposed)
}

type testRegistry struct{}

func (testRegistry) Resolve([]string) (ChannelFactory, error) {
	return newFakeChannelFactory(false), nil
}

func TestStoreContextIsRootSeededFromChannelOnRealize(t *testing.T) {
	sc := newStoreContext("1", []string{"kv"}, newFakeChannelFactory(true), nil, discardLogger())
	require.False(t, sc.IsRoot())

	_, err := sc.Realize(context.Background())
	require.NoError(t, err)
	require.True(t, sc.IsRoot())
}

func TestStoreContextSetInMemoryRootDoesNotNeedRealization(t *testing.T) {
	sc := newTestContext("1")
	require.False(t, sc.IsRoot())
	sc.SetInMemoryRoot()
	require.True(t, sc.IsRoot())
	require.False(t, sc.IsLoaded())
}

func TestStoreContextAttachDataReusesBaseSnapshotWithoutRealizing(t *testing.T) {
	base := &SnapshotTree{Entries: []SnapshotEntry{{Path: "data", Blob: []byte(`{"a":1}`)}}}
	calls := 0
	factory := func(ctx context.Context, path []string, snap *SnapshotTree) (Channel, error) {
		calls++
		return newFakeChannelFactory(false)(ctx, path, snap)
	}
	sc := newStoreContext("1", []string{"kv"}, factory, base, discardLogger())

	summary, err := sc.AttachData(context.Background(), true)
	require.NoError(t, err)
	require.Same(t, base, summary.Snapshot)
	require.Equal(t, 0, calls)
	require.False(t, sc.IsLoaded())
}
