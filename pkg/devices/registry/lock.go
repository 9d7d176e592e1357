// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LockMode selects the flock mode requested.
type LockMode int

const (
	// Shared allows any number of concurrent shared holders and
	// excludes only an exclusive holder.
	Shared LockMode = iota
	// Exclusive excludes every other holder, shared or exclusive.
	Exclusive
)

// Lock is the advisory whole-file lock on the sibling lockfile
// described in §4.2: a single process-local handle, reentrant at the
// same mode, backed by flock(2) for cross-process exclusion.
type Lock struct {
	path  string
	file  *os.File
	mode  LockMode
	depth int
}

// NewLock returns a Lock for the devices file at devicesPath, backed by
// a sibling lockfile named D_<basename> under lockDir.
func NewLock(lockDir, devicesPath string) *Lock {
	return &Lock{path: filepath.Join(lockDir, "D_"+filepath.Base(devicesPath))}
}

// Acquire takes the lock at mode. When block is false and the lock is
// already held elsewhere, it returns ErrLockBusy immediately instead of
// waiting.
//
// held reports whether this call was a no-op re-entry into a lock this
// same Lock value already holds at the same mode, per §4.2's
// reentrancy rule; the caller must still pair every Acquire with a
// Release, but only the outermost Release actually unlocks.
func (l *Lock) Acquire(mode LockMode, block bool) (held bool, err error) {
	if l.file != nil {
		if l.mode != mode {
			return false, fmt.Errorf("devices lock: re-entrant acquire at different mode")
		}
		l.depth++
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, err
	}

	flags := unix.LOCK_SH
	if mode == Exclusive {
		flags = unix.LOCK_EX
	}
	if !block {
		flags |= unix.LOCK_NB
	}

	if err := unix.Flock(int(f.Fd()), flags); err != nil {
		f.Close()
		if !block {
			return false, ErrLockBusy
		}
		return false, err
	}

	l.file = f
	l.mode = mode
	l.depth = 1
	return false, nil
}

// TryExclusive is Acquire(Exclusive, block=false), named for the
// validation-update pattern of §4.2.
func (l *Lock) TryExclusive() (held bool, err error) {
	return l.Acquire(Exclusive, false)
}

// Release drops one level of the reentrant lock. Only the outermost
// Release actually unlocks and closes the lockfile handle.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	l.depth--
	if l.depth > 0 {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	return err
}

// Held reports whether this Lock value currently holds the lock.
func (l *Lock) Held() bool {
	return l.file != nil
}
