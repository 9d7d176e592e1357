// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

// Package identity implements the closed enumeration of stable-identity
// schemes a block device can be recognised by, and the sysfs reads that
// back each scheme.
package identity

import (
	"os"
	"path/filepath"
	"strings"
)

// Kind is a stable-identity scheme. The enumeration is closed: callers
// must not invent new values.
type Kind string

const (
	// KindWWID is a SCSI/NVMe World-Wide Identifier read from sysfs.
	KindWWID Kind = "sys_wwid"

	// KindSerial is a SCSI serial number read from sysfs.
	KindSerial Kind = "sys_serial"

	// KindMpathUUID is the DM UUID of a device-mapper multipath device.
	KindMpathUUID Kind = "mpath_uuid"

	// KindCryptUUID is the DM UUID of a device-mapper crypt device.
	KindCryptUUID Kind = "crypt_uuid"

	// KindLVMUUID is the DM UUID of a device-mapper LVM logical volume.
	KindLVMUUID Kind = "lvm_lv_uuid"

	// KindMDUUID is the UUID of a Linux software-RAID array.
	KindMDUUID Kind = "md_uuid"

	// KindLoopFile is the backing-file path of a loop device.
	KindLoopFile Kind = "loop_file"

	// KindDevName is the kernel-assigned device name. It is explicitly
	// unstable and is used only as a last-resort fallback; it is the
	// sole source of the rename problem the matcher and rename search
	// solve.
	KindDevName Kind = "devname"

	// KindDRBD is reserved for DRBD devices. The selection policy never
	// chooses it and the matcher never matches it; it exists only so a
	// file written against a future implementation still parses.
	KindDRBD Kind = "drbd"
)

// knownKinds lists every kind the parser accepts on read.
var knownKinds = map[Kind]bool{
	KindWWID:      true,
	KindSerial:    true,
	KindMpathUUID: true,
	KindCryptUUID: true,
	KindLVMUUID:   true,
	KindMDUUID:    true,
	KindLoopFile:  true,
	KindDevName:   true,
	KindDRBD:      true,
}

// Recognized reports whether tag names a kind this implementation
// understands, for use while parsing the on-disk file.
func Recognized(tag string) bool {
	return knownKinds[Kind(tag)]
}

// Major numbers that identify device-mapper, loop and MD devices on
// Linux. These are fixed by the kernel's allocated-devices list.
const (
	majorDeviceMapper = 253
	majorLoop         = 7
	majorMD           = 9
)

// scsiLikeMajors covers the range of majors the kernel hands out to
// SCSI disk devices (8, and the extended 65-71 range) plus the NVMe
// block major used by modern kernels.
var scsiLikeMajors = map[int]bool{
	8: true, 65: true, 66: true, 67: true, 68: true,
	69: true, 70: true, 71: true,
	259: true, // blkext / NVMe partitions on some kernels
}

// IsSCSIOrNVMeMajor reports whether major belongs to the SCSI/NVMe disk
// range, the precondition for the multipath sysfs-holders detection
// strategy (§4.5 strategy 1).
func IsSCSIOrNVMeMajor(major int) bool {
	return scsiLikeMajors[major]
}

// DeviceMapperMajor is the fixed kernel major number for device-mapper
// devices.
const DeviceMapperMajor = majorDeviceMapper

// Compatible reports whether kind can plausibly apply to a device with
// the given major number. It is the compatibility table referenced in
// §4.1 and §4.3: an mpath-UUID entry is never tried against a SCSI
// disk, a crypt-UUID entry is never tried against a loop device, etc.
func Compatible(kind Kind, major int) bool {
	switch kind {
	case KindMpathUUID, KindCryptUUID, KindLVMUUID:
		return major == majorDeviceMapper
	case KindLoopFile:
		return major == majorLoop
	case KindMDUUID:
		return major == majorMD
	case KindWWID, KindSerial:
		return scsiLikeMajors[major] || major == majorDeviceMapper
	case KindDevName:
		// the unstable fallback applies to anything.
		return true
	case KindDRBD:
		return false
	default:
		return false
	}
}

// sanitize replaces whitespace and control characters in a raw
// identifier read from sysfs with underscores, per §4.1.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}

// readSysfsAttr reads a single-line sysfs attribute file and trims
// trailing whitespace. It returns ok=false for any read error,
// including the common "attribute doesn't exist on this device" case.
func readSysfsAttr(path string) (value string, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// sysfsBlockDir returns <root>/class/block/<name> for a device named
// e.g. sdb, the layout exposed by both whole-disk and partition nodes.
func sysfsBlockDir(root, name string) string {
	return filepath.Join(root, "class", "block", name)
}
