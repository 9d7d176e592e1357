// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package multipath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConf = `
defaults {
	find_multipaths yes
}

blacklist {
	wwid "3600508b400105df70000e00000ac0000"
	wwid 600508b400105df70000e00000ac0001
	devnode "^hd[a-z]"
}

blacklist_exceptions {
	wwid 600508b400105df70000e00000ac0001
}
`

func TestLoadBlacklistHonoursExceptions(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "multipath.conf")
	require.NoError(t, os.WriteFile(confPath, []byte(sampleConf), 0644))

	set := LoadBlacklist(confPath, filepath.Join(dir, "conf.d"))

	assert.True(t, set["600508b400105df70000e00000ac0000"], "type-3 prefix must be stripped")
	assert.False(t, set["600508b400105df70000e00000ac0001"], "an exception overrides the blacklist")
}

func TestLoadBlacklistMergesConfD(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "multipath.conf")
	require.NoError(t, os.WriteFile(confPath, []byte("blacklist {\n}\n"), 0644))

	dropinDir := filepath.Join(dir, "conf.d")
	require.NoError(t, os.MkdirAll(dropinDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dropinDir, "10-extra.conf"), []byte("blacklist {\n\twwid abc123\n}\n"), 0644))

	set := LoadBlacklist(confPath, dropinDir)
	assert.True(t, set["abc123"])
}

func TestFindMultipathsEnabled(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "multipath.conf")
	require.NoError(t, os.WriteFile(confPath, []byte(sampleConf), 0644))
	assert.True(t, FindMultipathsEnabled(confPath))
}

func TestReadWWIDsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wwids")
	require.NoError(t, os.WriteFile(path, []byte("# multipath wwids\n/3600508b400105df70000e00000ac0000/\n/600508b400105df70000e00000ac0001/\n\n"), 0644))

	set := ReadWWIDsFile(path)
	assert.True(t, set["600508b400105df70000e00000ac0000"], "type-3 prefix stripped same as the blacklist reader")
	assert.True(t, set["600508b400105df70000e00000ac0001"])
	assert.Len(t, set, 2)
}

func TestReadWWIDsFileEmptyPathDisabled(t *testing.T) {
	assert.Empty(t, ReadWWIDsFile(""))
}

func TestReadWWIDsFileMissingFile(t *testing.T) {
	assert.Empty(t, ReadWWIDsFile(filepath.Join(t.TempDir(), "missing")))
}
