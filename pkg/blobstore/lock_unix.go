// Copyright (c) 2011 The Grumble Authors
// The use of this source code is goverened by a BSD-style
// license that can be found in the LICENSE-file.

//go:build unix

package blobstore

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// AcquireLockFile acquires a PID-stamped lockfile at path, guarding
// against two Hub processes sharing one data directory. If a stale
// lockfile is found (its PID no longer alive) it is replaced.
func AcquireLockFile(path string) error {
	dir, fn := filepath.Split(path)
	lockfn := filepath.Join(dir, fn)

	lockfile, err := os.OpenFile(lockfn, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if os.IsExist(err) {
		content, readErr := os.ReadFile(lockfn)
		if readErr != nil {
			return readErr
		}

		pid, parseErr := strconv.Atoi(string(content))
		if parseErr == nil {
			if syscall.Kill(pid, 0) == nil {
				return ErrLocked
			}
		}

		replacement, tmpErr := os.CreateTemp(dir, "lock")
		if tmpErr != nil {
			return tmpErr
		}

		if _, err := replacement.WriteString(strconv.Itoa(os.Getpid())); err != nil {
			replacement.Close()
			os.Remove(replacement.Name())
			return ErrLockAcquirement
		}

		tmpName := replacement.Name()
		if err := replacement.Close(); err != nil {
			os.Remove(tmpName)
			return err
		}
		if err := os.Rename(tmpName, lockfn); err != nil {
			os.Remove(tmpName)
			return ErrLockAcquirement
		}
		return nil
	} else if err != nil {
		return err
	}

	if _, err := lockfile.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		lockfile.Close()
		return err
	}
	return lockfile.Close()
}

// ReleaseLockFile releases a lockfile acquired by AcquireLockFile.
func ReleaseLockFile(path string) error {
	return os.Remove(path)
}
