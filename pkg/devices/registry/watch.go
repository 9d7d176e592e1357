// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/kata-containers/lvmdevices/pkg/devices/api"
)

// Watcher generalises §4.4's sentinel-invalidation rule ("removed by
// any event that introduces a new device") from a check performed at
// the start of the next command to a push model: a long-running
// embedder watches the sysfs device-enumeration root and the devices
// file's directory, and has the sentinel cleared the moment a new
// block device subtree appears, rather than only on the next command
// invocation.
//
// The one-shot CLI collaborator this module is otherwise modeled
// against has no use for this; it is additive for embedders that keep
// the registry resident between operator actions.
type Watcher struct {
	fsw    *fsnotify.Watcher
	runDir string
}

// NewWatcher starts watching watchPaths (typically the sysfs block
// enumeration directory and the devices file's parent directory) and
// will remove the sentinel under runDir whenever an entry is created,
// removed or renamed in any of them. Writes to existing files and
// permission changes are ignored.
func NewWatcher(runDir string, watchPaths ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range watchPaths {
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return &Watcher{fsw: fsw, runDir: runDir}, nil
}

// Run processes events until ctx is cancelled. It is meant to run in
// its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := RemoveSentinel(w.runDir); err != nil {
				api.Logger().WithError(err).Warn("failed to invalidate rename-search sentinel")
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			api.Logger().WithError(err).Warn("device watch error")
		}
	}
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
