// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

// Package registry implements the in-memory mirror of the persistent
// identity file: UseEntry, the Registry that holds them in file order,
// and the parser/serialiser/lock that move them to and from disk.
package registry

import (
	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
)

// PVID is the 32-byte physical-volume identifier stored in a
// volume-manager on-disk header.
type PVID [32]byte

// UseEntry is one persisted row: a device the operator has listed.
//
// idname absent (IDNameSet == false) means "identity lost" — the
// matcher has nothing left to compare against for this entry until a
// rename search or explicit re-add restores it.
type UseEntry struct {
	IDType  identity.Kind
	IDName  string
	IDNameSet bool

	DevName string // last-known path; a hint only.

	PVID    PVID
	PVIDSet bool

	Part int // partition index; 0 for whole-disk.

	// dev is the non-owning back-reference to the matched device. Set
	// only by the matcher, the validator and the rename search.
	dev api.Device
}

// Dev returns the device this entry is currently matched to, or nil.
func (e *UseEntry) Dev() api.Device { return e.dev }

// Matched reports whether the entry has a paired device.
func (e *UseEntry) Matched() bool { return e.dev != nil }

// SetMatch pairs e and dev, toggling both sides' flags atomically as
// required by the data-model invariant in §3. Called only by the
// matcher, the validator and the rename search.
func (e *UseEntry) SetMatch(dev api.Device) {
	e.dev = dev
	dev.SetMatched(true)
}

// ClearMatch unpairs e from its device, if any, toggling both sides.
func (e *UseEntry) ClearMatch() {
	if e.dev != nil {
		e.dev.SetMatched(false)
		e.dev = nil
	}
}

// Clone returns a copy of e that is not matched to any device, so a
// loaded entry can be mutated without perturbing the original.
func (e *UseEntry) Clone() *UseEntry {
	c := *e
	c.dev = nil
	return &c
}
