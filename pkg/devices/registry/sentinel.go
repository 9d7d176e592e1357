// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import (
	"os"
	"path/filepath"
)

// sentinelName is the zero-length marker file that suppresses repeated
// fruitless rename searches for the system devices file (§4.4, §6). It
// never applies to alternate (devicesfile=) files.
const sentinelName = "searched_devnames"

// SentinelPath returns the sentinel's path under runDir.
func SentinelPath(runDir string) string {
	return filepath.Join(runDir, sentinelName)
}

// SentinelExists reports whether a prior command has already searched
// for renamed devices and found nothing.
func SentinelExists(runDir string) bool {
	_, err := os.Stat(SentinelPath(runDir))
	return err == nil
}

// TouchSentinel creates the zero-length sentinel file. Called only
// when a rename search finds nothing for any wanted PVID and nothing
// was added elsewhere in the same command (§4.4).
func TouchSentinel(runDir string) error {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(SentinelPath(runDir), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// RemoveSentinel deletes the sentinel, invalidating any prior fruitless
// search. Called by Watcher when an entry is created, removed or
// renamed in a watched directory; adding or changing a registry entry
// does not call it.
func RemoveSentinel(runDir string) error {
	err := os.Remove(SentinelPath(runDir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
