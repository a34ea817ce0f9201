package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeRemote_RemoteWinsPerID(t *testing.T) {
	local := NewCart([]LineItem{
		{ID: "x", Name: "X", Price: price("10"), Quantity: 1},
		{ID: "only-local", Name: "Local", Price: price("5"), Quantity: 2},
	})
	remote := NewCart([]LineItem{
		{ID: "x", Name: "X", Price: price("10"), Quantity: 5},
		{ID: "only-remote", Name: "Remote", Price: price("7"), Quantity: 1},
	})

	synced := now.Add(time.Second)
	merged := MergeRemote(local, remote, synced)

	require.Len(t, merged.Items, 3)

	x, ok := merged.Find("x")
	require.True(t, ok)
	require.Equal(t, 5, x.Quantity)

	kept, ok := merged.Find("only-local")
	require.True(t, ok)
	require.Equal(t, 2, kept.Quantity)
	require.Equal(t, "Local", kept.Name)

	_, ok = merged.Find("only-remote")
	require.True(t, ok)

	for _, item := range merged.Items {
		require.NotNil(t, item.SyncedAt)
		require.Equal(t, synced, *item.SyncedAt)
	}

	// inputs are untouched
	require.Equal(t, 1, local.Items[0].Quantity)
	require.Nil(t, local.Items[0].SyncedAt)
}

func TestMergeRemote_SkipsInvalidRemoteRows(t *testing.T) {
	local := NewCart([]LineItem{{ID: "x", Quantity: 1}})
	remote := NewCart([]LineItem{
		{ID: "", Quantity: 3},
		{ID: "x", Quantity: 0},
	})

	merged := MergeRemote(local, remote, now)

	require.Len(t, merged.Items, 1)
	require.Equal(t, 1, merged.Items[0].Quantity)
}

func TestMergeRemote_EmptyRemoteKeepsLocal(t *testing.T) {
	local := NewCart([]LineItem{{ID: "x", Quantity: 4}})

	merged := MergeRemote(local, Cart{}, now)

	require.Len(t, merged.Items, 1)
	require.Equal(t, 4, merged.Items[0].Quantity)
}
