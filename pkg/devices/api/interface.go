// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

// Package api defines the contracts the identity registry exports to,
// and imports from, the surrounding volume-management system. Nothing
// in this package performs device I/O itself; it only describes the
// shapes collaborators must satisfy.
package api

import (
	"github.com/sirupsen/logrus"
)

var devLogger = logrus.WithField("subsystem", "devices")

// SetLogger sets the logger used by the devices packages.
func SetLogger(logger *logrus.Entry) {
	fields := devLogger.Data
	devLogger = logger.WithFields(fields)
}

// Logger returns the logger used for identity-registry messages.
func Logger() *logrus.Entry {
	return devLogger
}

// IdentityCacheEntry is one (kind, name) pair a device has already been
// queried for. A set kind with an empty name is a recorded negative:
// "this kind was checked and is not available here".
type IdentityCacheEntry struct {
	Kind string
	Name string
	// Checked is true once a lookup for Kind has been performed,
	// whether or not it produced a Name.
	Checked bool
}

// Device is the minimal view of a block device the registry needs from
// the surrounding device cache. Implementations are owned by the
// collaborator; the registry never constructs one.
type Device interface {
	// Name is the device's current kernel-assigned path, e.g. /dev/sdb.
	Name() string

	// Major and Minor are the device's numbers, used for the
	// compatibility table and for the device-mapper name-equivalence
	// stat comparison.
	Major() int
	Minor() int

	// PartitionIndex is 0 for a whole-disk device, >0 for a partition.
	PartitionIndex() int

	// PrimaryDevice returns the whole-disk device backing a partition,
	// or the device itself when it is already whole-disk.
	PrimaryDevice() Device

	// IdentityCache returns the device's memoised (kind, name) lookups.
	IdentityCache() []IdentityCacheEntry

	// RememberIdentity records a lookup result (positive or negative)
	// in the device's memoised cache.
	RememberIdentity(kind, name string, checked bool)

	// SetMatched toggles the device's matched-by-identity flag in
	// lockstep with the owning UseEntry's dev pointer.
	SetMatched(matched bool)
	Matched() bool

	// Scanned reports whether label scanning has run against this
	// device in the current command.
	Scanned() bool

	// Excluded reports whether a downstream filter stage dropped this
	// device after it was matched.
	Excluded() bool

	// PVID returns the volume identifier read from this device's
	// on-disk header during label scanning, if any.
	PVID() (pvid [32]byte, ok bool)
}

// Cache is the device enumeration the registry matches against. It is
// the identity-filter's only way to discover what devices currently
// exist on the host.
type Cache interface {
	// All returns every device currently known to the cache.
	All() []Device

	// ByName looks a device up by its current kernel name.
	ByName(name string) (Device, bool)

	// Drop removes a device from the cache and from any downstream
	// filter state, used when validation determines a device is an
	// impostor (§4.4).
	Drop(dev Device)
}

// LabelScanner reads the volume-manager on-disk header of a device far
// enough to extract its PVID, without interpreting the rest of the
// header. label_read_pvid in spec terms.
type LabelScanner interface {
	ReadPVID(dev Device) (ok bool, hasPVID bool, pvid [32]byte)
}

// FilterStage names one stage of the surrounding filter chain that the
// rename search and Reconcile's multipath exclusion consult. Stage names are defined by the
// collaborator; the registry only ever passes through strings named in
// its own contract (sysfs, type, usable, mpath, partitioned, signature,
// md, fwraid, persistent).
type FilterStage string

const (
	StageSysfs       FilterStage = "sysfs"
	StageType        FilterStage = "type"
	StageUsable      FilterStage = "usable"
	StageMpath       FilterStage = "mpath"
	StagePartitioned FilterStage = "partitioned"
	StageSignature   FilterStage = "signature"
	StageMD          FilterStage = "md"
	StageFWRaid      FilterStage = "fwraid"
	StagePersistent  FilterStage = "persistent"
)

// FilterChain lets the rename search and Reconcile apply a named
// upstream filter stage to a device without knowing how that stage is
// implemented.
type FilterChain interface {
	Apply(stage FilterStage, dev Device) bool
}

// SystemIdentity returns the local system identifier used by the
// persistence layer's systemid mismatch check (§4.2).
type SystemIdentity interface {
	SystemID() string
}
