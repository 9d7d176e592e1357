// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

// Package match implements the algorithm that pairs persisted
// use-entries to currently-present devices (§4.3), the post-scan
// validator that reconciles the pairing against data read from disk
// (§4.4), and the renamed-device search that recovers entries whose
// kernel name has changed since they were listed (§4.4).
package match

import (
	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
	"github.com/kata-containers/lvmdevices/pkg/devices/registry"
)

// Matcher pairs use-entries to devices. It performs no device I/O:
// only sysfs reads (via the identity package) and name lookups, per
// §4.3's closing constraint.
type Matcher struct{}

// New returns a Matcher.
func New() *Matcher { return &Matcher{} }

// Run pairs every unmatched entry in reg against an unmatched device in
// cache, using the pairing predicate of §4.3. It is idempotent:
// running it again against the same cache produces the same pairings,
// since already-matched entries and devices are skipped.
func (m *Matcher) Run(reg *registry.Registry, cache api.Cache) {
	for _, e := range reg.Entries() {
		if e.Matched() {
			continue
		}
		m.matchOne(e, cache)
	}
}

func (m *Matcher) matchOne(e *registry.UseEntry, cache api.Cache) {
	// 1. Try the device named by devname first (cheap, usually correct).
	if e.DevName != "" {
		if dev, ok := cache.ByName(e.DevName); ok && !dev.Matched() && m.matches(e, dev) {
			pair(e, dev)
			return
		}
	}

	// 2. Fall back to scanning every unmatched device in the cache.
	for _, dev := range cache.All() {
		if dev.Matched() {
			continue
		}
		if m.matches(e, dev) {
			pair(e, dev)
			return
		}
	}
}

// matches is the pairing predicate of §4.3.
func (m *Matcher) matches(e *registry.UseEntry, dev api.Device) bool {
	if !identity.Compatible(e.IDType, dev.Major()) {
		return false
	}
	if dev.PartitionIndex() != e.Part {
		return false
	}

	if e.IDType == identity.KindDevName {
		if !e.IDNameSet {
			return false
		}
		if dev.Name() == e.IDName {
			return true
		}
		return dmNameEquivalent(e.IDName, dev)
	}

	if !e.IDNameSet {
		return false
	}
	name, ok := identityFor(dev, e.IDType)
	return ok && name == e.IDName
}

// pair sets the mutual match between an entry and a device atomically,
// per the invariant in §3: the entry's dev and the device's
// matched-by-identity flag toggle together.
func pair(e *registry.UseEntry, dev api.Device) {
	e.SetMatch(dev)
}

// identityFor returns the identity of kind read from dev, consulting
// the device's memoised identity cache first (§4.3) before touching
// sysfs.
func identityFor(dev api.Device, kind identity.Kind) (string, bool) {
	for _, c := range dev.IdentityCache() {
		if identity.Kind(c.Kind) == kind && c.Checked {
			return c.Name, c.Name != ""
		}
	}
	name, ok := identity.Source(kind, dev.Name(), dev.Major())
	dev.RememberIdentity(string(kind), name, true)
	return name, ok
}

// MatchByName implements §4.3's list-mode variant: when the registry is
// configured from an explicit list of device paths rather than a file,
// pairing is by name lookup only and no identity computation happens.
func MatchByName(paths []string, cache api.Cache) map[string]api.Device {
	out := make(map[string]api.Device, len(paths))
	for _, p := range paths {
		if dev, ok := cache.ByName(p); ok {
			out[p] = dev
		}
	}
	return out
}
