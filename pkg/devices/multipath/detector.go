// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

// Package multipath implements the side-helper that determines whether
// a device is a member of a device-mapper multipath group and
// therefore must be suppressed from the scan pipeline as a first-class
// device (§4.5).
package multipath

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
	"golang.org/x/sys/unix"
)

// SysfsRoot is the root of the sysfs tree the detector reads from. A
// variable, not a constant, so tests can point it at a fake tree.
var SysfsRoot = "/sys"

// memoState is the value stored in the detector's minor-indexed
// memoisation table: 2 for a positive hit, 1 for a checked negative.
type memoState int8

const (
	memoUnknown  memoState = 0
	memoPositive memoState = 2
	memoNegative memoState = 1
)

// ExternalInfoSource selects where Detector looks for udev-sourced
// multipath membership, mirroring Config.ExternalDeviceInfoSource (§6).
type ExternalInfoSource string

const (
	ExternalInfoNone ExternalInfoSource = "none"
	ExternalInfoUdev ExternalInfoSource = "udev"
)

// UdevLookup is implemented by the collaborator that knows how to read
// a device's udev properties, when ExternalInfoSource is udev.
type UdevLookup interface {
	// IsMultipathMember reports whether dev's udev properties mark it
	// as a multipath component directly.
	IsMultipathMember(dev api.Device) bool
}

// Detector reports whether a device is a multipath component. It
// memoises its sysfs-holders result per device minor to amortise
// repeated calls in one scan (§4.5 strategy 1).
type Detector struct {
	// WWIDs is the set of wwids loaded from the multipath wwids file,
	// minus those the multipath.conf blacklist (after its exceptions)
	// still excludes (§4.5's "Blacklist Configuration Ingest"); see
	// Config.NewMultipathDetector. A nil or empty set disables
	// strategy 2 entirely, matching multipath_wwids_file="".
	WWIDs map[string]bool

	// FindMultipathsEnabled mirrors multipath.conf's find_multipaths
	// directive. Strategy 2 (WWID set membership) only infers
	// multipath group membership from a device's wwid when this is
	// true: a disabled find_multipaths policy means multipathd never
	// auto-groups a device on WWID alone, so this detector shouldn't
	// either — only a device already grouped under an active dm-mpath
	// target (strategy 1) or reported directly by udev (strategy 3)
	// still counts as a component.
	FindMultipathsEnabled bool

	ExternalInfoSource ExternalInfoSource
	Udev               UdevLookup

	memo map[int]memoState
}

// NewDetector returns a Detector ready to use.
func NewDetector(wwids map[string]bool, source ExternalInfoSource, udev UdevLookup) *Detector {
	return &Detector{WWIDs: wwids, ExternalInfoSource: source, Udev: udev, memo: make(map[int]memoState)}
}

// IsComponent runs the three detection strategies of §4.5 in order,
// first hit wins.
func (d *Detector) IsComponent(dev api.Device) bool {
	if identity.IsSCSIOrNVMeMajor(dev.Major()) {
		if s, ok := d.memo[dev.Minor()]; ok {
			return s == memoPositive
		}
		if d.sysfsHolders(dev) {
			d.memo[dev.Minor()] = memoPositive
			return true
		}
	}

	if d.FindMultipathsEnabled && len(d.WWIDs) > 0 {
		if wwid, ok := readDeviceWWID(dev.Name()); ok {
			if d.WWIDs[stripTypePrefix(wwid)] {
				if identity.IsSCSIOrNVMeMajor(dev.Major()) {
					d.memo[dev.Minor()] = memoPositive
				}
				return true
			}
		}
	}

	if d.ExternalInfoSource == ExternalInfoUdev && d.Udev != nil && d.Udev.IsMultipathMember(dev) {
		return true
	}

	if identity.IsSCSIOrNVMeMajor(dev.Major()) {
		d.memo[dev.Minor()] = memoNegative
	}
	return false
}

// sysfsHolders implements strategy 1: list /sys/block/<name>/holders/;
// for each holder whose rdev has the DM major, read its dm/uuid and
// test for the mpath- prefix (after stripping a partN- prefix).
func (d *Detector) sysfsHolders(dev api.Device) bool {
	base := filepath.Base(dev.Name())
	holdersDir := filepath.Join(SysfsRoot, "block", base, "holders")
	entries, err := os.ReadDir(holdersDir)
	if err != nil {
		return false
	}
	for _, ent := range entries {
		holder := ent.Name()
		fi, err := os.Stat(filepath.Join("/dev", holder))
		if err != nil {
			continue
		}
		st, ok := fi.Sys().(*syscall.Stat_t)
		if !ok {
			continue
		}
		if int(unix.Major(uint64(st.Rdev))) != identity.DeviceMapperMajor {
			continue
		}
		dmUUID, ok := readSysfsAttr(filepath.Join(SysfsRoot, "block", holder, "dm", "uuid"))
		if !ok {
			continue
		}
		if strings.HasPrefix(identity.StripPartitionPrefix(dmUUID), "mpath-") {
			return true
		}
	}
	return false
}

func readSysfsAttr(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// readDeviceWWID reads /sys/block/<name>/device/wwid for strategy 2.
func readDeviceWWID(name string) (string, bool) {
	return readSysfsAttr(filepath.Join(SysfsRoot, "block", filepath.Base(name), "device", "wwid"))
}

// stripTypePrefix strips a leading "<typestr>." prefix (e.g. "naa.",
// "eui.", "t10.") from a sysfs wwid attribute before comparing it
// against the multipath wwids file's bare identifiers (§4.5 strategy 2).
func stripTypePrefix(wwid string) string {
	if idx := strings.IndexByte(wwid, '.'); idx >= 0 && idx < 8 {
		return wwid[idx+1:]
	}
	return wwid
}
