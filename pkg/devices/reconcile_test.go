// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package devices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
	"github.com/kata-containers/lvmdevices/pkg/devices/multipath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	name    string
	major   int
	minor   int
	part    int
	matched bool
	scanned bool
	pvid    [32]byte
	hasPVID bool
	idCache []api.IdentityCacheEntry
}

func (d *fakeDevice) Name() string              { return d.name }
func (d *fakeDevice) Major() int                { return d.major }
func (d *fakeDevice) Minor() int                { return d.minor }
func (d *fakeDevice) PartitionIndex() int       { return d.part }
func (d *fakeDevice) PrimaryDevice() api.Device { return d }
func (d *fakeDevice) IdentityCache() []api.IdentityCacheEntry {
	return d.idCache
}
func (d *fakeDevice) RememberIdentity(kind, name string, checked bool) {
	d.idCache = append(d.idCache, api.IdentityCacheEntry{Kind: kind, Name: name, Checked: checked})
}
func (d *fakeDevice) SetMatched(m bool)      { d.matched = m }
func (d *fakeDevice) Matched() bool          { return d.matched }
func (d *fakeDevice) Scanned() bool          { return d.scanned }
func (d *fakeDevice) Excluded() bool         { return false }
func (d *fakeDevice) PVID() ([32]byte, bool) { return d.pvid, d.hasPVID }

type fakeCache struct{ devices []api.Device }

func (c *fakeCache) All() []api.Device { return c.devices }
func (c *fakeCache) ByName(name string) (api.Device, bool) {
	for _, d := range c.devices {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}
func (c *fakeCache) Drop(dev api.Device) {
	for i, d := range c.devices {
		if d == dev {
			c.devices = append(c.devices[:i], c.devices[i+1:]...)
			return
		}
	}
}

type fakeSystem struct{ id string }

func (s fakeSystem) SystemID() string { return s.id }

func pvidOf(s string) [32]byte {
	var p [32]byte
	copy(p[:], s)
	return p
}

func TestReconcileImplicitCreationPersistsFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SystemDir = dir
	cfg.LockDir = filepath.Join(dir, "lock")
	cfg.RunDir = filepath.Join(dir, "run")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "devices"), 0755))

	sda := &fakeDevice{name: "/dev/sda", major: 8, minor: 0, scanned: true, hasPVID: true, pvid: pvidOf("P0001")}
	sda.idCache = []api.IdentityCacheEntry{{Kind: string(identity.KindWWID), Name: "wwid-1", Checked: true}}
	cache := &fakeCache{devices: []api.Device{sda}}

	report, err := Reconcile(ReconcileOptions{
		Config:      cfg,
		Cache:       cache,
		System:      fakeSystem{id: "host-1"},
		AllowCreate: true,
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Saved, "the implicit-creation rule marks a freshly created registry dirty")

	_, err = os.Stat(filepath.Join(dir, "devices", "system.devices"))
	assert.NoError(t, err, "the implicitly created registry is persisted on the same pass")
}

func TestReconcileDisabledSkipsEntirely(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableDevicesFile = false

	report, err := Reconcile(ReconcileOptions{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, &Report{}, report)
}

type stubUdev struct{ positive bool }

func (s stubUdev) IsMultipathMember(api.Device) bool { return s.positive }

func TestReconcileExcludesMultipathComponentsBeforeMatching(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SystemDir = dir
	cfg.LockDir = filepath.Join(dir, "lock")
	cfg.RunDir = filepath.Join(dir, "run")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "devices"), 0755))

	sdb := &fakeDevice{name: "/dev/sdb", major: 8, minor: 16, scanned: true}
	cache := &fakeCache{devices: []api.Device{sdb}}

	mp := multipath.NewDetector(nil, multipath.ExternalInfoUdev, stubUdev{positive: true})

	report, err := Reconcile(ReconcileOptions{
		Config:      cfg,
		Cache:       cache,
		System:      fakeSystem{id: "host-1"},
		MPath:       mp,
		AllowCreate: true,
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Empty(t, cache.devices, "a multipath group member must be dropped from the candidate cache before the matcher runs")
}

func TestReconcileDefaultsMultipathDetectorFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SystemDir = dir
	cfg.LockDir = filepath.Join(dir, "lock")
	cfg.RunDir = filepath.Join(dir, "run")
	cfg.MultipathConfigFile = filepath.Join(dir, "multipath.conf")
	cfg.MultipathConfigDropinDir = filepath.Join(dir, "conf.d")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "devices"), 0755))

	sdb := &fakeDevice{name: "/dev/sdb", major: 8, minor: 0, scanned: true}
	cache := &fakeCache{devices: []api.Device{sdb}}

	// No MPath supplied: Reconcile must build one from cfg rather than
	// skip multipath exclusion entirely.
	report, err := Reconcile(ReconcileOptions{
		Config:      cfg,
		Cache:       cache,
		System:      fakeSystem{id: "host-1"},
		AllowCreate: true,
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Len(t, cache.devices, 1, "no multipath.conf/wwids file means nothing gets excluded here, but the detector must still be built without panicking")
}

func TestReconcileMissingFileWithoutAllowCreateFails(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SystemDir = dir
	cfg.LockDir = filepath.Join(dir, "lock")
	cfg.RunDir = filepath.Join(dir, "run")

	_, err := Reconcile(ReconcileOptions{
		Config: cfg,
		Cache:  &fakeCache{},
		System: fakeSystem{id: "host-1"},
	})
	assert.Error(t, err)
}
