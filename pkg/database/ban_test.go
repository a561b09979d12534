package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/database"
)

func TestBanList(t *testing.T) {
	db, err := NewTestDB()
	require.NoError(t, err)

	tx := db.Tx()
	defer tx.Rollback()

	err = tx.BanWrite([]database.Ban{
		{
			Address:  []byte{127, 0, 0, 1},
			Mask:     32,
			Reason:   "spam",
			Start:    time.Now(),
			Duration: 120,
		},
	})
	require.NoError(t, err)

	list, count, err := tx.BanRead(10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.EqualValues(t, 1, count)
	require.Equal(t, "spam", list[0].Reason)
}

func TestBanWriteReplacesPreviousList(t *testing.T) {
	db, err := NewTestDB()
	require.NoError(t, err)

	tx := db.Tx()
	defer tx.Rollback()

	require.NoError(t, tx.BanWrite([]database.Ban{{Reason: "first"}}))
	require.NoError(t, tx.BanWrite([]database.Ban{{Reason: "second"}}))

	list, count, err := tx.BanRead(10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.EqualValues(t, 1, count)
	require.Equal(t, "second", list[0].Reason)
}
