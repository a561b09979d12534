// Package database implements the Hub's persisted state: channels,
// ACLs, groups, bans, and registered users (§3, §4.17). It follows the
// teacher's gorm + sqlite convention (`pkg/database/ban.go`), extended
// from a single `Ban` table to the full persisted entity set the
// Hub owns. Session directories and the Edge registry are explicitly
// in-memory (§4.17) and live in pkg/session/pkg/cluster instead.
package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB wraps the Hub's gorm handle.
type DB struct {
	db   *gorm.DB
	path string
}

// Open creates or attaches to a sqlite database file at path and runs
// AutoMigrate for every persisted entity.
func Open(path string) (*DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", path, err)
	}

	if err := gdb.AutoMigrate(
		&Channel{},
		&ChannelLink{},
		&ACLEntry{},
		&Group{},
		&GroupMember{},
		&User{},
		&UserCertHash{},
		&Ban{},
	); err != nil {
		return nil, fmt.Errorf("database: migrate: %w", err)
	}

	return &DB{db: gdb, path: path}, nil
}

// Path returns the sqlite file backing this handle, used by the backup
// scheduler (§4.17 backupInterval).
func (d *DB) Path() string {
	return d.path
}

// Tx starts a new transaction. Callers must Commit or Rollback.
func (d *DB) Tx() *DbTx {
	return &DbTx{db: d.db.Begin()}
}

// DbTx is a single transactional unit of work against the Hub
// database, mirroring the teacher's `DbTx` receiver convention on
// every persistence method.
type DbTx struct {
	db *gorm.DB
}

// Commit finalizes the transaction.
func (d *DbTx) Commit() error {
	return d.db.Commit().Error
}

// Rollback discards the transaction. Safe to call after Commit (it
// becomes a no-op in that case, matching gorm's own semantics).
func (d *DbTx) Rollback() error {
	return d.db.Rollback().Error
}
