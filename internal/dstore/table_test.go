// ABOUTME: Tests for Table's partitioning and await-for-addressable behavior.

package dstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestContext(id string) *StoreContext {
	return newStoreContext(id, []string{"kv"}, newFakeChannelFactory(false), nil, discardLogger())
}

func TestTableAddUnboundThenBind(t *testing.T) {
	table := NewTable(discardLogger())
	sc := newTestContext("1")

	require.NoError(t, table.AddUnbound(sc))
	notYet, err := table.GetBoundOrRemoted(context.Background(), "1", false)
	require.NoError(t, err)
	require.Nil(t, notYet)
	require.NotNil(t, table.GetUnbound("1"))

	require.NoError(t, table.Bind("1"))
	require.Nil(t, table.GetUnbound("1"))

	got, err := table.GetBoundOrRemoted(context.Background(), "1", false)
	require.NoError(t, err)
	require.Same(t, sc, got)
}

func TestTableAddUnboundDuplicateRejected(t *testing.T) {
	table := NewTable(discardLogger())
	require.NoError(t, table.AddUnbound(newTestContext("1")))
	err := table.AddUnbound(newTestContext("1"))
	require.Error(t, err)
	var consistency *InternalConsistencyError
	require.ErrorAs(t, err, &consistency)
}

func TestTableGetBoundOrRemotedWaitWakesOnBind(t *testing.T) {
	table := NewTable(discardLogger())
	sc := newTestContext("1")
	require.NoError(t, table.AddUnbound(sc))

	type result struct {
		sc  *StoreContext
		err error
	}
	done := make(chan result, 1)
	go func() {
		got, err := table.GetBoundOrRemoted(context.Background(), "1", true)
		done <- result{got, err}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, table.Bind("1"))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Same(t, sc, r.sc)
	case <-time.After(time.Second):
		t.Fatal("GetBoundOrRemoted never woke up after Bind")
	}
}

func TestTableGetBoundOrRemotedWaitWakesOnDelete(t *testing.T) {
	table := NewTable(discardLogger())
	sc := newTestContext("1")
	require.NoError(t, table.AddUnbound(sc))
	require.NoError(t, table.Bind("1"))
	require.NoError(t, table.AddBoundOrRemoted(newTestContext("2"), false))

	done := make(chan *StoreContext, 1)
	go func() {
		got, _ := table.GetBoundOrRemoted(context.Background(), "3", true)
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	table.Delete("3")

	select {
	case got := <-done:
		require.Nil(t, got)
	case <-time.After(time.Second):
		t.Fatal("GetBoundOrRemoted never woke up after Delete")
	}
}

func TestTablePartitionsAreDisjoint(t *testing.T) {
	table := NewTable(discardLogger())
	a := newTestContext("a")
	require.NoError(t, table.AddUnbound(a))
	require.NotNil(t, table.GetUnbound("a"))
	got, _ := table.GetBoundOrRemoted(context.Background(), "a", false)
	require.Nil(t, got, "a must not be addressable while still unbound")

	require.NoError(t, table.Bind("a"))
	require.Nil(t, table.GetUnbound("a"), "a must leave the unbound partition once bound")
}

func TestTableNotBoundLength(t *testing.T) {
	table := NewTable(discardLogger())
	require.NoError(t, table.AddUnbound(newTestContext("1")))
	require.NoError(t, table.AddUnbound(newTestContext("2")))
	require.Equal(t, 2, table.NotBoundLength())

	require.NoError(t, table.Bind("1"))
	require.Equal(t, 1, table.NotBoundLength())
}

func TestTableDeleteRemovesFromEveryPartition(t *testing.T) {
	table := NewTable(discardLogger())
	require.NoError(t, table.AddBoundOrRemoted(newTestContext("1"), false))
	require.True(t, table.IsKnown("1"))

	table.Delete("1")
	require.False(t, table.IsKnown("1"))
	require.True(t, table.IsDeleted("1"))
}
