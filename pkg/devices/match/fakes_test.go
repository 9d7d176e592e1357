// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package match

import (
	"github.com/kata-containers/lvmdevices/pkg/devices/api"
)

type fakeDevice struct {
	name     string
	major    int
	minor    int
	part     int
	primary  api.Device
	matched  bool
	scanned  bool
	excluded bool
	pvid     [32]byte
	hasPVID  bool
	idCache  []api.IdentityCacheEntry
}

func (d *fakeDevice) Name() string         { return d.name }
func (d *fakeDevice) Major() int           { return d.major }
func (d *fakeDevice) Minor() int           { return d.minor }
func (d *fakeDevice) PartitionIndex() int  { return d.part }
func (d *fakeDevice) PrimaryDevice() api.Device {
	if d.primary != nil {
		return d.primary
	}
	return d
}
func (d *fakeDevice) IdentityCache() []api.IdentityCacheEntry { return d.idCache }
func (d *fakeDevice) RememberIdentity(kind, name string, checked bool) {
	d.idCache = append(d.idCache, api.IdentityCacheEntry{Kind: kind, Name: name, Checked: checked})
}
func (d *fakeDevice) SetMatched(m bool) { d.matched = m }
func (d *fakeDevice) Matched() bool     { return d.matched }
func (d *fakeDevice) Scanned() bool     { return d.scanned }
func (d *fakeDevice) Excluded() bool    { return d.excluded }
func (d *fakeDevice) PVID() ([32]byte, bool) { return d.pvid, d.hasPVID }

func pvidBytes(s string) [32]byte {
	var p [32]byte
	copy(p[:], s)
	return p
}

type fakeCache struct {
	devices []api.Device
	dropped []api.Device
}

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
	c.dropped = append(c.dropped, dev)
	for i, d := range c.devices {
		if d == dev {
			c.devices = append(c.devices[:i], c.devices[i+1:]...)
			return
		}
	}
}

type fakeScanner struct {
	byName map[string][32]byte
}

func (s *fakeScanner) ReadPVID(dev api.Device) (ok bool, hasPVID bool, pvid [32]byte) {
	p, found := s.byName[dev.Name()]
	if !found {
		return true, false, [32]byte{}
	}
	return true, true, p
}

type allowAllFilter struct{}

func (allowAllFilter) Apply(stage api.FilterStage, dev api.Device) bool { return true }
