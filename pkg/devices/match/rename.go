// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package match

import (
	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
	"github.com/kata-containers/lvmdevices/pkg/devices/registry"
)

// SearchMode mirrors the search_for_devnames configuration knob (§6).
type SearchMode string

const (
	SearchNone SearchMode = "none"
	SearchAuto SearchMode = "auto"
	SearchAll  SearchMode = "all"
)

// RenameOptions carries the rename search's policy inputs.
type RenameOptions struct {
	Mode SearchMode
	// RunDir is where the searched-devnames sentinel lives.
	RunDir string
	// AlternateFile disables the sentinel and, per this module's
	// supplemented default (SPEC_FULL §12), the search itself: the
	// sentinel in §6 applies "for the system file only (not alternate
	// files)", and an alternate file opts into search only by setting
	// Mode to SearchAll explicitly.
	AlternateFile bool
}

// Report aggregates what a rename search accomplished, for a caller to
// render as one summary instead of parsing log lines (SPEC_FULL §12).
type Report struct {
	Renamed   []Renamed
	Ambiguous []Ambiguous
}

// Renamed records one use-entry that was re-paired to a device whose
// kernel name changed since it was listed.
type Renamed struct {
	Entry  *registry.UseEntry
	Device api.Device
}

// Ambiguous records a wanted PVID observed on more than one candidate
// device; none of them are rematched (§7 RenameAmbiguous).
type Ambiguous struct {
	PVID    registry.PVID
	Devices []api.Device
}

// Search implements §4.4's renamed-device search. It looks for a
// device now carrying the PVID of each devname-kinded entry that has
// lost its device, and re-pairs the first unambiguous find.
func Search(reg *registry.Registry, cache api.Cache, scanner api.LabelScanner, filters api.FilterChain, opts RenameOptions) (*Report, error) {
	report := &Report{}

	if scanner == nil {
		scanner = RawHeaderScanner{}
	}

	if opts.Mode == SearchNone {
		return report, nil
	}
	if opts.AlternateFile && opts.Mode != SearchAll {
		return report, nil
	}

	wanted := wantedEntries(reg)
	if len(wanted) == 0 {
		return report, nil
	}

	if !opts.AlternateFile && registry.SentinelExists(opts.RunDir) {
		return report, nil
	}

	candidates := buildCandidates(cache, filters, opts.Mode)

	found := make(map[registry.PVID][]api.Device)
	for _, dev := range candidates {
		ok, hasPVID, pvid := scanner.ReadPVID(dev)
		if !ok || !hasPVID {
			continue
		}
		key := toRegistryPVID(pvid)
		if _, isWanted := wanted[key]; !isWanted {
			continue
		}
		found[key] = append(found[key], dev)
	}

	anyFound := false
	for pvid, e := range wanted {
		devs, ok := found[pvid]
		if !ok {
			continue
		}
		if len(devs) > 1 {
			report.Ambiguous = append(report.Ambiguous, Ambiguous{PVID: pvid, Devices: devs})
			api.Logger().WithField("pvid", pvid).Warn("rename search found the same PVID on multiple devices; none rematched")
			continue
		}

		dev := devs[0]
		e.IDName = dev.Name()
		e.IDNameSet = true
		e.DevName = dev.Name()
		e.Part = dev.PartitionIndex()
		e.SetMatch(dev)
		dev.RememberIdentity(string(identity.KindDevName), dev.Name(), true)
		reg.Dirty = true
		anyFound = true
		report.Renamed = append(report.Renamed, Renamed{Entry: e, Device: dev})
	}

	if !anyFound && len(report.Ambiguous) == 0 && !opts.AlternateFile {
		if err := registry.TouchSentinel(opts.RunDir); err != nil {
			api.Logger().WithError(err).Warn("failed to write rename-search sentinel")
		}
	}

	return report, nil
}

// wantedEntries collects the devname-kinded entries that still carry a
// PVID but have no matched device (§4.4 step: "for each device-name-
// kinded UseEntry that still has a PVID but no matched device").
func wantedEntries(reg *registry.Registry) map[registry.PVID]*registry.UseEntry {
	wanted := make(map[registry.PVID]*registry.UseEntry)
	for _, e := range reg.Entries() {
		if e.IDType == identity.KindDevName && e.PVIDSet && !e.Matched() {
			wanted[e.PVID] = e
		}
	}
	return wanted
}

// buildCandidates collects unmatched devices passing the restricted,
// sysfs-only filter subset, then drops devices whose identity is
// already determinable by a stable kind when the search mode is auto
// — a stable device is not a rename candidate (§4.4 step 3).
func buildCandidates(cache api.Cache, filters api.FilterChain, mode SearchMode) []api.Device {
	var out []api.Device
	for _, dev := range cache.All() {
		if dev.Matched() {
			continue
		}
		if filters != nil && !filters.Apply(api.StageSysfs, dev) {
			continue
		}
		if mode == SearchAuto && hasStableIdentity(dev) {
			continue
		}
		out = append(out, dev)
	}
	return out
}

var stableKinds = []identity.Kind{
	identity.KindWWID,
	identity.KindSerial,
	identity.KindMpathUUID,
	identity.KindCryptUUID,
	identity.KindLVMUUID,
	identity.KindMDUUID,
	identity.KindLoopFile,
}

func hasStableIdentity(dev api.Device) bool {
	for _, k := range stableKinds {
		if !identity.Compatible(k, dev.Major()) {
			continue
		}
		if name, ok := identityFor(dev, k); ok && name != "" {
			return true
		}
	}
	return false
}
