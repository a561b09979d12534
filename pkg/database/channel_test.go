package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/database"
)

func TestChannelSaveAndRead(t *testing.T) {
	db, err := NewTestDB()
	require.NoError(t, err)
	tx := db.Tx()
	defer tx.Rollback()

	root := &database.Channel{ID: 0, Name: "Root", InheritACL: true}
	require.NoError(t, tx.ChannelSave(root))

	child := &database.Channel{ID: 1, ParentID: &root.ID, Name: "Lobby", InheritACL: true}
	require.NoError(t, tx.ChannelSave(child))

	channels, err := tx.ChannelRead()
	require.NoError(t, err)
	require.Len(t, channels, 2)
}

func TestChannelLinkIsSymmetric(t *testing.T) {
	db, err := NewTestDB()
	require.NoError(t, err)
	tx := db.Tx()
	defer tx.Rollback()

	require.NoError(t, tx.ChannelLinkAdd(2, 3))

	links, err := tx.ChannelLinksRead()
	require.NoError(t, err)
	require.Len(t, links, 2)

	require.NoError(t, tx.ChannelLinkRemove(2, 3))
	links, err = tx.ChannelLinksRead()
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestChannelDeleteCascadesACLAndGroups(t *testing.T) {
	db, err := NewTestDB()
	require.NoError(t, err)
	tx := db.Tx()
	defer tx.Rollback()

	require.NoError(t, tx.ChannelSave(&database.Channel{ID: 9, Name: "Temp", InheritACL: true}))
	require.NoError(t, tx.ACLWrite(9, []database.ACLEntry{{ApplyHere: true, Allow: 1}}))
	require.NoError(t, tx.GroupWrite(&database.Group{ChannelID: 9, Name: "admin"}, nil))

	require.NoError(t, tx.ChannelDelete(9))

	entries, err := tx.ACLRead(9)
	require.NoError(t, err)
	require.Empty(t, entries)

	groups, err := tx.GroupsRead(9)
	require.NoError(t, err)
	require.Empty(t, groups)
}
