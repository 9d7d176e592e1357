// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package match

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"golang.org/x/sys/unix"
)

// headerScanSize is the 4 KiB ceiling spec.md §1's Non-goals names as
// the one I/O exception the core performs itself during the rename
// search: "perform device I/O other than 4 KiB-boundary header reads".
const headerScanSize = 4096

// labelSectorSize and labelSectorCount bound where the label can start:
// the volume-manager on-disk label lives in one of the first four
// 512-byte sectors of the device (§4.4 step 4).
const (
	labelSectorSize  = 512
	labelSectorCount = 4
)

var labelMagic = [8]byte{'L', 'A', 'B', 'E', 'L', 'O', 'N', 'E'}

// labelHeader mirrors the fixed-offset fields of the on-disk label this
// module cares about: the 8-byte magic, then the sector number and
// checksum the real format carries before the PVID. Modelled on
// deploymenttheory-go-apfs's ReadNXSuperblock: a magic-checked,
// fixed-layout header decoded with encoding/binary straight out of a
// raw block read, rather than hand-rolling byte-offset arithmetic.
type labelHeader struct {
	Magic    [8]byte
	Sector   uint64
	Checksum uint32
	Offset   uint32
}

// pread is overridable so tests can exercise RawHeaderScanner without a
// real block device.
var pread = unix.Pread

// RawHeaderScanner is the production api.LabelScanner: it performs the
// positioned 4 KiB read spec.md §4.4 step 4 requires, scanning the
// first four sector-aligned offsets for the label magic and extracting
// the 32-byte PVID that follows the fixed header at the sector it finds
// the magic in. unix.Pread is used, not a seek-then-read pair, so the
// read never disturbs a file offset a concurrent reader of the same fd
// might depend on — the same golang.org/x/sys/unix dependency the
// registry's Flock wrapper and the multipath detector's Major/Minor
// calls already carry into this module.
type RawHeaderScanner struct{}

// ReadPVID opens dev.Name() read-only, reads up to one 4 KiB block, and
// looks for the label magic at each of its first four 512-byte sector
// boundaries.
func (RawHeaderScanner) ReadPVID(dev api.Device) (ok bool, hasPVID bool, pvid [32]byte) {
	f, err := os.Open(dev.Name())
	if err != nil {
		api.Logger().WithError(err).WithField("device", dev.Name()).Debug("rename search: failed to open device for header read")
		return false, false, pvid
	}
	defer f.Close()

	buf := make([]byte, headerScanSize)
	n, err := pread(int(f.Fd()), buf, 0)
	if err != nil || n <= 0 {
		return false, false, pvid
	}
	buf = buf[:n]

	for sector := 0; sector < labelSectorCount; sector++ {
		start := sector * labelSectorSize
		end := start + labelSectorSize
		if end > len(buf) {
			break
		}
		chunk := buf[start:end]

		var hdr labelHeader
		if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, &hdr); err != nil {
			continue
		}
		if hdr.Magic != labelMagic {
			continue
		}

		const pvidOffset = 32
		if pvidOffset+32 > len(chunk) {
			continue
		}
		copy(pvid[:], chunk[pvidOffset:pvidOffset+32])
		return true, !isZeroPVID(pvid), pvid
	}

	return true, false, pvid
}

func isZeroPVID(pvid [32]byte) bool {
	var zero [32]byte
	return pvid == zero
}
