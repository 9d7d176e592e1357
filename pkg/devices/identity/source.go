// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package identity

import (
	"path/filepath"
	"strings"
)

// SysfsRoot is the root of the sysfs tree identity reads are rooted
// at. It is a variable, not a constant, so tests can point it at a
// fake tree, matching the teacher's practice of overriding package
// path variables (config.SysDevPrefix and friends) for testability.
var SysfsRoot = "/sys"

// qemuHarddiskMarker is the substring that marks a WWID as
// QEMU's synthetic, non-unique identifier (§4.1).
const qemuHarddiskMarker = "QEMU HARDDISK"

// ReadWWID reads the WWID from name's own device/wwid sysfs attribute,
// discarding QEMU's non-unique placeholder. A partition's parent disk
// is not consulted.
func ReadWWID(name string) (string, bool) {
	v, ok := readSysfsAttr(filepath.Join(sysfsBlockDir(SysfsRoot, name), "device", "wwid"))
	if !ok || v == "" {
		return "", false
	}
	if strings.Contains(v, qemuHarddiskMarker) {
		return "", false
	}
	return sanitize(v), true
}

// ReadSerial reads the SCSI serial number of name from sysfs.
func ReadSerial(name string) (string, bool) {
	v, ok := readSysfsAttr(filepath.Join(sysfsBlockDir(SysfsRoot, name), "device", "serial"))
	if !ok || v == "" {
		return "", false
	}
	return sanitize(v), true
}

// ReadDMUUID reads the raw DM UUID of a device-mapper device.
func ReadDMUUID(name string) (string, bool) {
	v, ok := readSysfsAttr(filepath.Join(sysfsBlockDir(SysfsRoot, name), "dm", "uuid"))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// StripPartitionPrefix strips a leading "partN-" segment from a DM
// UUID before the prefix test in §4.1 step 3 and §4.5 strategy 1.
func StripPartitionPrefix(dmUUID string) string {
	if !strings.HasPrefix(dmUUID, "part") {
		return dmUUID
	}
	if idx := strings.IndexByte(dmUUID, '-'); idx >= 0 {
		rest := dmUUID[4:idx]
		allDigits := rest != ""
		for _, r := range rest {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return dmUUID[idx+1:]
		}
	}
	return dmUUID
}

// classifyDMUUID matches the dm-uuid prefixes §4.1 step 3 tests in
// order: mpath-, CRYPT-, LVM-.
func classifyDMUUID(dmUUID string) (Kind, string, bool) {
	stripped := StripPartitionPrefix(dmUUID)
	switch {
	case strings.HasPrefix(stripped, "mpath-"):
		return KindMpathUUID, sanitize(stripped), true
	case strings.HasPrefix(stripped, "CRYPT-"):
		return KindCryptUUID, sanitize(stripped), true
	case strings.HasPrefix(stripped, "LVM-"):
		return KindLVMUUID, sanitize(stripped), true
	default:
		return "", "", false
	}
}

// ReadMDUUID reads the array UUID of an MD device from sysfs.
func ReadMDUUID(name string) (string, bool) {
	v, ok := readSysfsAttr(filepath.Join(sysfsBlockDir(SysfsRoot, name), "md", "uuid"))
	if !ok || v == "" {
		return "", false
	}
	return sanitize(v), true
}

// ReadLoopBackingFile reads the backing file path of a loop device,
// discarding the kernel's "(deleted)" suffix marker by returning
// ok=false (§4.1 step 4).
func ReadLoopBackingFile(name string) (string, bool) {
	v, ok := readSysfsAttr(filepath.Join(sysfsBlockDir(SysfsRoot, name), "loop", "backing_file"))
	if !ok || v == "" {
		return "", false
	}
	if strings.Contains(v, "(deleted)") {
		return "", false
	}
	return v, true
}

// Source reads the identity of the given kind for a device, given its
// current kernel name, major number and partition-aware sysfs probe.
// It returns ok=false when the kind is not readable from this device,
// which callers treat as a negative cache entry.
func Source(kind Kind, name string, major int) (string, bool) {
	switch kind {
	case KindWWID:
		return ReadWWID(name)
	case KindSerial:
		return ReadSerial(name)
	case KindMDUUID:
		return ReadMDUUID(name)
	case KindLoopFile:
		return ReadLoopBackingFile(name)
	case KindMpathUUID, KindCryptUUID, KindLVMUUID:
		dmUUID, ok := ReadDMUUID(name)
		if !ok {
			return "", false
		}
		gotKind, gotName, ok := classifyDMUUID(dmUUID)
		if !ok || gotKind != kind {
			return "", false
		}
		return gotName, true
	case KindDevName:
		return name, true
	default:
		return "", false
	}
}
