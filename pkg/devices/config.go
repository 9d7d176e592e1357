// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

// Package devices ties the identity, registry, match and multipath
// packages together into the single Reconcile operation a command-line
// or daemon collaborator calls once per invocation.
package devices

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kata-containers/lvmdevices/pkg/devices/match"
	"github.com/kata-containers/lvmdevices/pkg/devices/multipath"
	"github.com/kata-containers/lvmdevices/pkg/devices/registry"
)

// Config carries the knobs spec.md §6 names, loaded from an optional
// devices.toml so the module can be driven standalone without the real
// CLI collaborator.
type Config struct {
	EnableDevicesFile bool   `toml:"use_devicesfile"`
	DevicesFile       string `toml:"devicesfile"`

	SearchForDevNames string `toml:"search_for_devnames"`
	ScanLVs           bool   `toml:"scan_lvs"`

	MultipathWWIDsFile       string `toml:"multipath_wwids_file"`
	MultipathConfigFile      string `toml:"multipath_conf_file"`
	MultipathConfigDropinDir string `toml:"multipath_conf_dropin_dir"`
	ExternalDeviceInfoSource string `toml:"external_device_info_source"`

	SystemDir string `toml:"system_dir"`
	LockDir   string `toml:"lock_dir"`
	RunDir    string `toml:"run_dir"`
}

// DefaultConfig returns the configuration spec.md §9 recommends as a
// starting point: devices file enabled, rename search off, multipath
// detection using sysfs and the blacklist but no udev lookups.
func DefaultConfig() *Config {
	return &Config{
		EnableDevicesFile:        true,
		SearchForDevNames:        string(match.SearchNone),
		ScanLVs:                  false,
		MultipathConfigFile:      "/etc/multipath.conf",
		MultipathConfigDropinDir: "/etc/multipath/conf.d",
		ExternalDeviceInfoSource: "none",
		SystemDir:                "/etc/lvm",
		LockDir:                  "/run/lock/lvm",
		RunDir:                   "/run/lvm",
	}
}

// LoadConfig reads path, if it exists, on top of DefaultConfig's
// values, following the teacher's pattern of decoding a toml file over
// a struct that already carries its defaults
// (pkg/katautils/config.go's loadConfiguration).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load devices config %s: %w", path, err)
	}
	return cfg, nil
}

// devicesFilePath returns the effective devices file path: the
// configured alternate file if set, otherwise the system file under
// SystemDir.
func (c *Config) devicesFilePath() string {
	if c.DevicesFile != "" {
		return c.DevicesFile
	}
	return filepath.Join(c.SystemDir, "devices", "system.devices")
}

// isAlternateFile reports whether the configured devices file is an
// explicit alternate rather than the system file (§6).
func (c *Config) isAlternateFile() bool {
	return c.DevicesFile != ""
}

// NewMultipathDetector builds a Detector from this configuration's
// blacklist, wwids file and find_multipaths policy (§4.5, §6), ready
// for Reconcile to consult. udev may be nil when
// ExternalDeviceInfoSource is not "udev".
func (c *Config) NewMultipathDetector(udev multipath.UdevLookup) *multipath.Detector {
	// The set strategy 2 consults is the wwids file's entries minus
	// whatever the blacklist (pruned by its exceptions) still excludes
	// (§4.5 condition 2): the wwids file records what multipathd has
	// already grouped, but an operator can blacklist a wwid afterwards
	// without re-running multipathd to drop it from that file.
	blacklisted := multipath.LoadBlacklist(c.MultipathConfigFile, c.MultipathConfigDropinDir)
	members := multipath.ReadWWIDsFile(c.MultipathWWIDsFile)
	for w := range members {
		if blacklisted[w] {
			delete(members, w)
		}
	}

	source := multipath.ExternalInfoNone
	if c.ExternalDeviceInfoSource == "udev" {
		source = multipath.ExternalInfoUdev
	}

	d := multipath.NewDetector(members, source, udev)
	d.FindMultipathsEnabled = multipath.FindMultipathsEnabled(c.MultipathConfigFile)
	return d
}

// WatchForChanges starts a registry.Watcher over the devices file's
// parent directory plus any caller-supplied paths (typically the sysfs
// block enumeration root), invalidating the rename-search sentinel the
// moment an entry is created, removed or renamed in any of them
// (SPEC_FULL §11). The watcher runs in its
// own goroutine until ctx is cancelled or the returned Watcher is
// closed.
func (c *Config) WatchForChanges(ctx context.Context, extraPaths ...string) (*registry.Watcher, error) {
	paths := append([]string{filepath.Dir(c.devicesFilePath())}, extraPaths...)
	w, err := registry.NewWatcher(c.RunDir, paths...)
	if err != nil {
		return nil, fmt.Errorf("watch devices config: %w", err)
	}
	go w.Run(ctx)
	return w, nil
}
