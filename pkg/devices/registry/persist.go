// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kata-containers/lvmdevices/pkg/devices/api"
)

// Load reads and parses the devices file at path. A missing file
// yields ErrFileMissing, matching §4.2's "the absence of the file
// means feature disabled on this host" unless the caller applies the
// implicit-creation rule via LoadOrCreate.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrFileMissing)
		}
		return nil, err
	}
	defer f.Close()

	reg, err := Parse(f)
	if err != nil && !errors.Is(err, ErrFileUnparseable) {
		return nil, err
	}
	reg.Path = path
	return reg, err
}

// LoadOrCreate implements §4.2's implicit-creation rule: if the file
// does not exist and allowCreate is true (the caller is a first-PV
// creation operation and the scan has seen no existing PVs on this
// host), a fresh empty registry is returned instead of ErrFileMissing.
// Otherwise the absence of the file is left as a hard refusal.
func LoadOrCreate(path, localSystemID string, allowCreate bool) (*Registry, error) {
	reg, err := Load(path)
	if err == nil || !errors.Is(err, ErrFileMissing) {
		return reg, err
	}
	if !allowCreate {
		return nil, err
	}
	reg = New(localSystemID)
	reg.Path = path
	reg.Dirty = true
	return reg, nil
}

// CheckSystemID compares the file's recorded system id against the
// local one, warning but never failing on a mismatch (§4.2).
func CheckSystemID(reg *Registry, localSystemID string) {
	if reg.SystemID != "" && reg.SystemID != localSystemID {
		api.Logger().WithFields(map[string]interface{}{
			"file_system_id":  reg.SystemID,
			"local_system_id": localSystemID,
		}).Warn("devices file was written on a different system")
	}
}

// CheckVersion returns ErrVersionTooNew when reg's major version
// exceeds what this implementation can safely rewrite (§3, §7). Reads
// are unaffected; only writes must check this.
func CheckVersion(reg *Registry) error {
	if reg.Version.Major > SupportedMajor {
		return fmt.Errorf("devices file version %s: %w", reg.Version, ErrVersionTooNew)
	}
	return nil
}

// Save atomically rewrites the devices file at reg.Path: write a fresh
// temp file, fsync it, rename it over the target, then fsync the
// parent directory handle so the rename itself is durable. Under any
// crash the file observed afterwards is either the pre-write content
// or the fully-written new content (§4.2, §5).
//
// The version counter is incremented before writing, so a successful
// Save always strictly advances reg.Version.Counter (§3).
func Save(reg *Registry) error {
	if reg.Path == "" {
		return fmt.Errorf("devices registry has no backing path")
	}
	if err := CheckVersion(reg); err != nil {
		return err
	}

	reg.Version.Counter++

	tmpPath := reg.Path + "_new"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		reg.Version.Counter--
		return err
	}

	if err := Serialize(reg, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		reg.Version.Counter--
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		reg.Version.Counter--
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		reg.Version.Counter--
		return err
	}

	if err := os.Rename(tmpPath, reg.Path); err != nil {
		os.Remove(tmpPath)
		reg.Version.Counter--
		return err
	}

	dir, err := os.Open(filepath.Dir(reg.Path))
	if err != nil {
		return err
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return err
	}

	reg.Dirty = false
	return nil
}
