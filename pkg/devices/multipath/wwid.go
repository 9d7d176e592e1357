// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package multipath

import (
	"fmt"
	"os"
	"path/filepath"
)

// GroupWWID extracts the representative WWID of a multipath group by
// reading the device/wwid of the first entry in
// /sys/dev/block/M:m/slaves/, per §4.5's closing helper.
func GroupWWID(major, minor int) (string, bool) {
	slavesDir := filepath.Join(SysfsRoot, "dev", "block", fmt.Sprintf("%d:%d", major, minor), "slaves")
	entries, err := os.ReadDir(slavesDir)
	if err != nil || len(entries) == 0 {
		return "", false
	}
	return readDeviceWWID(entries[0].Name())
}
