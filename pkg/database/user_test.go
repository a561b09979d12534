package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/database"
)

func TestUserRegisterAndLookupByCertHash(t *testing.T) {
	db, err := NewTestDB()
	require.NoError(t, err)
	tx := db.Tx()
	defer tx.Rollback()

	require.NoError(t, tx.UserRegister(&database.User{UserID: 1, Name: "alice"}, "deadbeef"))

	u, err := tx.UserByCertHash("deadbeef")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Name)

	require.NoError(t, tx.UserUnregister(1))
	_, err = tx.UserByCertHash("deadbeef")
	require.Error(t, err)
}
