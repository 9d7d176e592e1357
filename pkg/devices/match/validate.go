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

// ValidateOptions carries the one policy knob the validator needs from
// the calling command (§4.4: "the caller is not a startup command").
type ValidateOptions struct {
	IsStartupCommand bool
}

// Validate runs the post-scan reconciliation pass of §4.4 against
// every matched entry in reg, after label scanning has populated each
// device's PVID. It returns the devices that were unmatched as
// impostors, for the caller to wipe from the downstream filter and
// device cache.
//
// Running Validate twice in a row against an unchanged device cache
// performs no further edits (§8's convergence property): every branch
// below only mutates state that already disagrees with what was just
// observed.
func Validate(reg *registry.Registry, opts ValidateOptions) []api.Device {
	var dropped []api.Device

	for _, e := range reg.Entries() {
		dev := e.Dev()
		if dev == nil {
			continue
		}
		if !dev.Scanned() {
			continue
		}
		if dev.Excluded() {
			api.Logger().WithField("entry_devname", e.DevName).Warn("matched device was excluded by a downstream filter; entry is stale")
			continue
		}

		if e.IDType != identity.KindDevName {
			validateStable(reg, e, dev, opts)
			continue
		}

		if unmatched := validateDevName(reg, e, dev); unmatched {
			dropped = append(dropped, dev)
		}
	}

	return dropped
}

func validateStable(reg *registry.Registry, e *registry.UseEntry, dev api.Device, opts ValidateOptions) {
	pvid, hasPVID := dev.PVID()
	switch {
	case hasPVID && (!e.PVIDSet || toRegistryPVID(pvid) != e.PVID):
		e.PVID = toRegistryPVID(pvid)
		e.PVIDSet = true
		reg.Dirty = true
	case !hasPVID && e.PVIDSet:
		e.PVIDSet = false
		reg.Dirty = true
	}

	if dev.Name() != e.DevName && !opts.IsStartupCommand {
		e.DevName = dev.Name()
		reg.Dirty = true
	}
}

// validateDevName runs the devname-kind validation pass. The kind is
// unreliable, so the PVID is the tie-breaker: agreement confirms the
// pairing, disagreement means the name was reused by a different
// device and the entry must be unmatched (§4.4's impostor case).
func validateDevName(reg *registry.Registry, e *registry.UseEntry, dev api.Device) (unmatched bool) {
	pvid, hasPVID := dev.PVID()

	if hasPVID && e.PVIDSet && toRegistryPVID(pvid) == e.PVID {
		if dev.Name() != e.DevName {
			e.DevName = dev.Name()
			reg.Dirty = true
		}
		return false
	}

	e.ClearMatch()
	e.IDNameSet = false
	reg.Dirty = true
	return true
}

func toRegistryPVID(p [32]byte) registry.PVID {
	return registry.PVID(p)
}
