// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package match

import (
	"os"
	"syscall"

	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"golang.org/x/sys/unix"
)

// dmNameEquivalent implements the device-mapper name-equivalence rule
// of §4.3: when a stored path and a candidate device's current name
// differ but both refer to the same DM device (e.g. /dev/dm-3 vs
// /dev/mapper/foo), a stat of the stored path yielding the same
// major:minor as the candidate's rdev counts as a match. This is the
// only case in which the matcher dereferences a path from the file; a
// compatibility kludge for files authored before DM-aware matching
// existed (§9), kept here for entries that still name a device by its
// /dev/mapper alias.
func dmNameEquivalent(storedPath string, dev api.Device) bool {
	fi, err := os.Stat(storedPath)
	if err != nil {
		return false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	major := int(unix.Major(uint64(st.Rdev)))
	minor := int(unix.Minor(uint64(st.Rdev)))
	return major == dev.Major() && minor == dev.Minor()
}
