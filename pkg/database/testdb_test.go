package database_test

import (
	"mumble.info/grumble/pkg/database"
)

// NewTestDB opens an in-memory sqlite database migrated with the full
// schema, following the teacher's `NewTestDB`/`NewTestServer` fixture
// convention referenced from ban_test.go.
func NewTestDB() (*database.DB, error) {
	return database.Open("file::memory:?cache=shared")
}
