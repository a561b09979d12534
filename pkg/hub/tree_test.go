package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/database"
)

func newTestTree(t *testing.T) (*Tree, *database.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	tree, err := NewTree(db)
	require.NoError(t, err)
	return tree, db
}

func TestNewTreeSeedsRootChannel(t *testing.T) {
	tree, _ := newTestTree(t)

	root, ok := tree.Channel(tree.Root())
	require.True(t, ok)
	require.Equal(t, uint32(0), root.ID)
	require.True(t, root.InheritACL)
}

func TestNewTreeIsIdempotentAcrossReopen(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)

	first, err := NewTree(db)
	require.NoError(t, err)
	require.Equal(t, uint32(0), first.Root())

	second, err := NewTree(db)
	require.NoError(t, err)
	require.Equal(t, uint32(0), second.Root())

	_, ok := second.Channel(0)
	require.True(t, ok)
}

func TestTreeWriteACLPersistsEntriesAndGroups(t *testing.T) {
	tree, _ := newTestTree(t)

	uid := int32(7)
	entries := []database.ACLEntry{
		{UserID: &uid, ApplyHere: true, ApplySubs: false, Allow: uint64(1), Deny: 0},
	}
	groups := []struct {
		Group   database.Group
		Members []database.GroupMember
	}{
		{
			Group:   database.Group{ChannelID: 0, Name: "mods", Inherit: true, Inheritable: true},
			Members: []database.GroupMember{{ChannelID: 0, GroupName: "mods", UserID: 7, Kind: database.GroupMemberAdd}},
		},
	}

	require.NoError(t, tree.WriteACL(0, entries, groups))

	ch, ok := tree.Channel(0)
	require.True(t, ok)
	require.Len(t, ch.ACL, 1)
	require.Equal(t, int32(7), *ch.ACL[0].UserID)

	group, ok := ch.Groups["mods"]
	require.True(t, ok)
	_, added := group.Add[7]
	require.True(t, added)
}

func TestChannelSnapshotAndACLSnapshotCoverAllChannels(t *testing.T) {
	tree, db := newTestTree(t)

	tx := db.Tx()
	require.NoError(t, tx.ChannelSave(&database.Channel{ID: 1, ParentID: u32p(0), Name: "Lobby", InheritACL: true}))
	require.NoError(t, tx.Commit())
	require.NoError(t, tree.reload())

	channels := tree.ChannelSnapshot()
	require.Len(t, channels.Channels, 2)

	uid := int32(3)
	require.NoError(t, tree.WriteACL(1, []database.ACLEntry{{UserID: &uid, Allow: 2}}, nil))

	acls := tree.ACLSnapshot()
	require.Len(t, acls.Entries, 1)
	require.Equal(t, uint32(1), acls.Entries[0].ChannelID)
}

func TestChannelReturnsFalseForUnknownID(t *testing.T) {
	tree, _ := newTestTree(t)
	_, ok := tree.Channel(999)
	require.False(t, ok)
}
