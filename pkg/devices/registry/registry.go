// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import (
	"fmt"

	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
)

// SupportedMajor is the highest on-disk major version this
// implementation knows how to write. A file whose major exceeds this
// may still be read, but writes to it are refused (§3, §7).
const SupportedMajor = 1

// Version is the file's major.minor.counter version line.
type Version struct {
	Major, Minor, Counter int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Counter)
}

// Registry is the process-wide mirror of one devices file: its header
// fields and its entries in file order, plus lock state.
//
// Registry is not safe for concurrent use by multiple goroutines; only
// the advisory file lock serialises access across processes (§5).
type Registry struct {
	SystemID string
	Version  Version

	entries []*UseEntry

	// Path is the file this registry was loaded from, or will be
	// written to. Empty for a registry built purely in memory (the
	// matcher's list-mode variant).
	Path string

	// Dirty is set whenever the validator, the rename search or an
	// explicit edit mutates the registry in a way that must be
	// persisted.
	Dirty bool

	lock *Lock
}

// New returns an empty registry ready to accept entries, as used by
// the implicit-creation rule (§4.2).
func New(systemID string) *Registry {
	return &Registry{
		SystemID: systemID,
		Version:  Version{Major: SupportedMajor, Minor: 1, Counter: 0},
	}
}

// Entries returns the registry's use-entries in file order. The
// returned slice must not be mutated by the caller; use Add/Remove.
func (r *Registry) Entries() []*UseEntry {
	return r.entries
}

// AddOptions carries the on-add conflict-resolution policy of §7/§8.
type AddOptions struct {
	// Force accepts a PVID/identity collision instead of returning
	// ErrIdentityConflict, mirroring the CLI's --yes flag.
	Force bool
}

// Add appends a new use-entry, preserving insertion order (§3). It
// returns ErrUnsupportedKind for kinds the selection policy never
// produces (§9), and is equivalent to AddWithOptions(e, AddOptions{}).
func (r *Registry) Add(e *UseEntry) error {
	return r.AddWithOptions(e, AddOptions{})
}

// AddWithOptions is Add with explicit conflict-resolution control.
// Unless opts.Force is set, it refuses an add that collides with an
// existing entry on PVID or identity (§7's IdentityConflict), except
// when the collision is another partition of the same primary device
// — the same stable identity recorded at a different partition index
// — which §7 accepts silently.
func (r *Registry) AddWithOptions(e *UseEntry, opts AddOptions) error {
	if e.IDType == identity.KindDRBD {
		return fmt.Errorf("add %s: %w", e.DevName, ErrUnsupportedKind)
	}
	if !opts.Force {
		if existing, ok := r.conflictFor(e); ok {
			return fmt.Errorf("add %s: collides with existing entry %s: %w", e.DevName, existing.DevName, ErrIdentityConflict)
		}
	}
	r.entries = append(r.entries, e)
	r.Dirty = true
	return nil
}

// conflictFor reports the existing entry e collides with, if any.
func (r *Registry) conflictFor(e *UseEntry) (*UseEntry, bool) {
	samePrimaryDifferentPartition := func(existing *UseEntry) bool {
		return existing.IDType == e.IDType && existing.IDNameSet && e.IDNameSet &&
			existing.IDName == e.IDName && existing.Part != e.Part
	}

	if e.PVIDSet {
		if existing, ok := r.FindByPVID(e.PVID); ok && !samePrimaryDifferentPartition(existing) {
			return existing, true
		}
	}

	for _, existing := range r.entries {
		if existing.IDType == e.IDType && existing.IDNameSet && e.IDNameSet &&
			existing.IDName == e.IDName && existing.Part == e.Part {
			return existing, true
		}
	}

	return nil, false
}

// Remove deletes the entry from the registry, unmatching it first if
// it was matched.
func (r *Registry) Remove(e *UseEntry) {
	for i, x := range r.entries {
		if x == e {
			x.ClearMatch()
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.Dirty = true
			return
		}
	}
}

// FindByPVID returns the first entry whose persisted PVID matches, if
// any. Used by the identity-conflict check on add.
func (r *Registry) FindByPVID(pvid PVID) (*UseEntry, bool) {
	for _, e := range r.entries {
		if e.PVIDSet && e.PVID == pvid {
			return e, true
		}
	}
	return nil, false
}

// Unmatched returns every entry without a paired device.
func (r *Registry) Unmatched() []*UseEntry {
	var out []*UseEntry
	for _, e := range r.entries {
		if !e.Matched() {
			out = append(out, e)
		}
	}
	return out
}
