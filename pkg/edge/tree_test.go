package edge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/edge"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/rpc"
)

func u32p(v uint32) *uint32 { return &v }

func buildTree() *edge.LocalTree {
	tree := edge.NewLocalTree()
	tree.ApplyChannelTable(rpc.ChannelTable{Channels: []rpc.ChannelSnapshot{
		{ID: 0, Name: "Root"},
		{ID: 1, ParentID: u32p(0), Name: "Lobby", Links: []uint32{2}},
		{ID: 2, ParentID: u32p(0), Name: "Music"},
		{ID: 3, ParentID: u32p(1), Name: "Lobby/Sub"},
	}})
	return tree
}

func TestApplyChannelTableBuildsParentChildAndRoot(t *testing.T) {
	tree := buildTree()
	require.Equal(t, uint32(0), tree.Root())
	require.ElementsMatch(t, []uint32{1, 2, 3}, tree.Descendants(0))
	require.ElementsMatch(t, []uint32{3}, tree.Descendants(1))
	require.ElementsMatch(t, []uint32{2}, tree.Links(1))
}

func TestApplyACLTableScopesEntriesAndGroupsPerChannel(t *testing.T) {
	tree := buildTree()
	tree.ApplyACLTable(rpc.ACLTable{
		Entries: []rpc.ACLEntrySnapshot{
			{ChannelID: 1, Group: "all", ApplyHere: true, Allow: uint64(model.PermissionSpeak)},
		},
		Groups: []rpc.GroupSnapshot{
			{ChannelID: 1, Name: "admins", Add: []uint32{7}},
		},
	})

	ch, ok := tree.Channel(1)
	require.True(t, ok)
	require.Len(t, ch.ACL, 1)
	require.Equal(t, model.PermissionSpeak, ch.ACL[0].Allow)
	require.Contains(t, ch.Groups, "admins")

	other, ok := tree.Channel(2)
	require.True(t, ok)
	require.Empty(t, other.ACL)
}

func TestUpdateChannelAndRemoveChannel(t *testing.T) {
	tree := buildTree()
	tree.UpdateChannel(rpc.ChannelSnapshot{ID: 1, ParentID: u32p(0), Name: "Renamed"})

	snap, ok := tree.Name(1)
	require.True(t, ok)
	require.Equal(t, "Renamed", snap.Name)

	tree.RemoveChannel(3)
	_, ok = tree.Channel(3)
	require.False(t, ok)
}
