// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrFileMissing)
}

func TestLoadOrCreateImplicitCreationRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.devices")

	_, err := LoadOrCreate(path, "hostA", false)
	assert.ErrorIs(t, err, ErrFileMissing, "implicit creation must not apply unless explicitly allowed")

	reg, err := LoadOrCreate(path, "hostA", true)
	require.NoError(t, err)
	assert.Equal(t, "hostA", reg.SystemID)
	assert.True(t, reg.Dirty)
}

func TestSaveIsAtomicAndIncrementsVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.devices")

	reg := New("hostA")
	reg.Path = path
	require.NoError(t, reg.Add(&UseEntry{IDType: identity.KindDevName, IDName: "/dev/sdb", IDNameSet: true, DevName: "/dev/sdb"}))

	require.NoError(t, Save(reg))
	assert.Equal(t, 1, reg.Version.Counter)
	assert.False(t, reg.Dirty)
	assert.NoFileExists(t, path+"_new")

	require.NoError(t, Save(reg))
	assert.Equal(t, 2, reg.Version.Counter)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, reg.Version, reloaded.Version)
}

func TestSaveRefusesTooNewMajor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.devices")
	reg := &Registry{Path: path, Version: Version{Major: SupportedMajor + 1, Minor: 0, Counter: 5}}

	err := Save(reg)
	assert.ErrorIs(t, err, ErrVersionTooNew)
	assert.Equal(t, 5, reg.Version.Counter, "a refused write must not bump the counter")
}

func TestSavePreservesPriorContentOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.devices")

	reg := New("hostA")
	reg.Path = path
	require.NoError(t, Save(reg))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	bad := &Registry{Path: path, Version: Version{Major: SupportedMajor + 1}}
	err = Save(bad)
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCheckSystemIDWarnsButDoesNotFail(t *testing.T) {
	reg := &Registry{SystemID: "hostA"}
	CheckSystemID(reg, "hostB") // must not panic or error; warning only.
	assert.True(t, true)
}

func TestSaveRequiresPath(t *testing.T) {
	err := Save(New("hostA"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrFileMissing))
}
