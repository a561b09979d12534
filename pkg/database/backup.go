package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// BackupScheduler runs a periodic copy of the Hub's sqlite file to a
// timestamped path, grounded on the teacher's scheduled-job absence
// (grumble had none) filled in from the pack's gocron/v2 usage (§4.17
// "Scheduled backups every backupInterval").
type BackupScheduler struct {
	scheduler gocron.Scheduler
	db        *DB
	destDir   string
}

// NewBackupScheduler wires a gocron scheduler that, every interval,
// copies the database file into destDir.
func NewBackupScheduler(db *DB, destDir string, interval time.Duration) (*BackupScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("database: new scheduler: %w", err)
	}

	b := &BackupScheduler{scheduler: s, db: db, destDir: destDir}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(b.runOnce),
	)
	if err != nil {
		return nil, fmt.Errorf("database: schedule backup job: %w", err)
	}
	return b, nil
}

// Start begins running scheduled backups in the background.
func (b *BackupScheduler) Start() {
	b.scheduler.Start()
}

// Stop drains the scheduler, waiting for any in-flight backup.
func (b *BackupScheduler) Stop(ctx context.Context) error {
	return b.scheduler.Shutdown()
}

func (b *BackupScheduler) runOnce() {
	_ = b.backupNow(time.Now())
}

func (b *BackupScheduler) backupNow(at time.Time) error {
	if err := os.MkdirAll(b.destDir, 0o750); err != nil {
		return err
	}

	src, err := os.Open(b.db.Path())
	if err != nil {
		return err
	}
	defer src.Close()

	destPath := fmt.Sprintf("%s/backup-%s.sqlite", b.destDir, at.UTC().Format("20060102-150405"))
	tmpPath := destPath + ".tmp"

	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, destPath)
}
