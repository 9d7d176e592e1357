// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFakeSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	old := SysfsRoot
	SysfsRoot = root
	t.Cleanup(func() { SysfsRoot = old })
	return root
}

func writeAttr(t *testing.T, root, name, attr, value string) {
	t.Helper()
	dir := filepath.Join(sysfsBlockDir(root, name), filepath.Dir(attr))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "class", "block", name, attr), []byte(value), 0644))
}

func TestSelectPrefersWWID(t *testing.T) {
	root := withFakeSysfs(t)
	writeAttr(t, root, "sdb", "device/wwid", "naa.500a0000001\n")

	got := Select(SelectOptions{Name: "sdb", Major: 8})
	assert.Equal(t, KindWWID, got.Kind)
	assert.Equal(t, "naa.500a0000001", got.Name)
}

func TestSelectDiscardsQEMUWWID(t *testing.T) {
	root := withFakeSysfs(t)
	writeAttr(t, root, "sdb", "device/wwid", "QEMU HARDDISK drive0\n")
	writeAttr(t, root, "sdb", "device/serial", "drive0\n")

	got := Select(SelectOptions{Name: "sdb", Major: 8})
	assert.Equal(t, KindSerial, got.Kind)
}

func TestSelectFallsBackToDevName(t *testing.T) {
	withFakeSysfs(t)
	got := Select(SelectOptions{Name: "sdz", Major: 8})
	assert.Equal(t, KindDevName, got.Kind)
	assert.Equal(t, "sdz", got.Name)
}

func TestSelectDMMultipath(t *testing.T) {
	root := withFakeSysfs(t)
	writeAttr(t, root, "dm-3", "dm/uuid", "mpath-36000c29c\n")

	got := Select(SelectOptions{Name: "dm-3", Major: majorDeviceMapper})
	assert.Equal(t, KindMpathUUID, got.Kind)
	assert.Equal(t, "mpath-36000c29c", got.Name)
}

func TestSelectDMPartitionPrefixStripped(t *testing.T) {
	root := withFakeSysfs(t)
	writeAttr(t, root, "dm-4", "dm/uuid", "part1-mpath-36000c29c\n")

	got := Select(SelectOptions{Name: "dm-4", Major: majorDeviceMapper})
	assert.Equal(t, KindMpathUUID, got.Kind)
}

func TestSelectLVMRequiresScanLVs(t *testing.T) {
	root := withFakeSysfs(t)
	writeAttr(t, root, "dm-5", "dm/uuid", "LVM-abcabc\n")

	got := Select(SelectOptions{Name: "dm-5", Major: majorDeviceMapper, ScanLVs: false})
	assert.Equal(t, KindDevName, got.Kind, "LVM identity must not be selected when scan_lvs is disabled")

	got = Select(SelectOptions{Name: "dm-5", Major: majorDeviceMapper, ScanLVs: true})
	assert.Equal(t, KindLVMUUID, got.Kind)
}

func TestSelectLoopBackingFile(t *testing.T) {
	root := withFakeSysfs(t)
	writeAttr(t, root, "loop0", "loop/backing_file", "/data/disk.img\n")

	got := Select(SelectOptions{Name: "loop0", Major: majorLoop})
	assert.Equal(t, KindLoopFile, got.Kind)
	assert.Equal(t, "/data/disk.img", got.Name)
}

func TestSelectLoopBackingFileDeletedDiscarded(t *testing.T) {
	root := withFakeSysfs(t)
	writeAttr(t, root, "loop0", "loop/backing_file", "/data/disk.img (deleted)\n")

	got := Select(SelectOptions{Name: "loop0", Major: majorLoop})
	assert.Equal(t, KindDevName, got.Kind)
}

func TestSanitizeReplacesWhitespaceAndControl(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitize("a b\tc"))
	assert.Equal(t, "x_y", sanitize("\x01x y\x02"))
}

func TestCompatibleTable(t *testing.T) {
	assert.True(t, Compatible(KindMpathUUID, majorDeviceMapper))
	assert.False(t, Compatible(KindMpathUUID, 8))
	assert.True(t, Compatible(KindLoopFile, majorLoop))
	assert.False(t, Compatible(KindLoopFile, 8))
	assert.True(t, Compatible(KindWWID, 8))
	assert.False(t, Compatible(KindDRBD, 8))
	assert.True(t, Compatible(KindDevName, 8))
}
