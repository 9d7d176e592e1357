// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package identity

// Selected is the result of running the add-time selection policy
// against a device: the kind chosen and the identifier read for it.
type Selected struct {
	Kind Kind
	Name string
}

// SelectOptions carries the caller-supplied hints and host policy the
// selection algorithm needs.
type SelectOptions struct {
	// CallerKind/CallerName are an explicit choice from the add
	// operation's caller, honoured first when both are usable.
	CallerKind Kind
	CallerName string

	// Name is the device's current kernel name, used for sysfs
	// lookups and as the device-name fallback.
	Name string

	// Major is the device's major number.
	Major int

	// ScanLVs permits LVM- DM UUIDs to be selected; when false, an
	// LVM-backed device falls through to the next rule exactly as if
	// its DM UUID had not classified (§6 scan_lvs).
	ScanLVs bool
}

// Select runs the ordered policy of §4.1 against a device being added
// to the registry and returns the kind and identifier to persist.
func Select(opts SelectOptions) Selected {
	// 1. Caller-supplied kind and name, if both given and the kind is
	// recognised and actually readable from the device.
	if opts.CallerKind != "" && opts.CallerName != "" && Recognized(string(opts.CallerKind)) {
		if name, ok := Source(opts.CallerKind, opts.Name, opts.Major); ok && name == opts.CallerName {
			return Selected{Kind: opts.CallerKind, Name: name}
		}
	}

	// 2. Caller-supplied kind alone, resolved via sysfs.
	if opts.CallerKind != "" && Recognized(string(opts.CallerKind)) {
		if name, ok := Source(opts.CallerKind, opts.Name, opts.Major); ok {
			return Selected{Kind: opts.CallerKind, Name: name}
		}
	}

	// 3. Device-mapper devices: mpath-, then CRYPT-, then LVM-.
	if opts.Major == majorDeviceMapper {
		if dmUUID, ok := ReadDMUUID(opts.Name); ok {
			if kind, name, ok := classifyDMUUID(dmUUID); ok {
				if kind == KindLVMUUID && !opts.ScanLVs {
					// fall through to the generic rules below.
				} else {
					return Selected{Kind: kind, Name: name}
				}
			}
		}
	}

	// 4. Loop devices: backing-file path.
	if opts.Major == majorLoop {
		if name, ok := ReadLoopBackingFile(opts.Name); ok {
			return Selected{Kind: KindLoopFile, Name: name}
		}
	}

	// 5. MD devices: md/uuid.
	if opts.Major == majorMD {
		if name, ok := ReadMDUUID(opts.Name); ok {
			return Selected{Kind: KindMDUUID, Name: name}
		}
	}

	// 6. Otherwise: WWID, then SCSI serial, then device-name fallback.
	if name, ok := ReadWWID(opts.Name); ok {
		return Selected{Kind: KindWWID, Name: name}
	}
	if name, ok := ReadSerial(opts.Name); ok {
		return Selected{Kind: KindSerial, Name: name}
	}
	return Selected{Kind: KindDevName, Name: opts.Name}
}
