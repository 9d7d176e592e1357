// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package multipath

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-ini/ini"
	"github.com/kata-containers/lvmdevices/pkg/devices/api"
)

// DefaultConfigPath and DefaultConfigDropinDir are the standard
// locations multipath-tools reads its configuration from.
const (
	DefaultConfigPath      = "/etc/multipath.conf"
	DefaultConfigDropinDir = "/etc/multipath/conf.d"
)

// blacklistSet accumulates the wwid entries seen inside blacklist{} and
// blacklist_exceptions{} sections across every file ingested.
type blacklistSet struct {
	wwids      map[string]bool
	exceptions map[string]bool
}

// LoadBlacklist parses configPath and every regular file in
// dropinDir, in that order, and returns every blacklisted wwid that is
// not also listed as an exception. Config.NewMultipathDetector removes
// these from the wwids-file set that condition (2) of §4.5 consults.
//
// This is a line-oriented recursive-descent reader, not a general
// brace-language parser: it only tracks enough nesting to know when it
// is inside a blacklist{} or blacklist_exceptions{} block, since that
// is the only structure this module's policy decisions depend on.
func LoadBlacklist(configPath, dropinDir string) map[string]bool {
	set := &blacklistSet{wwids: map[string]bool{}, exceptions: map[string]bool{}}

	paths := []string{configPath}
	if entries, err := os.ReadDir(dropinDir); err == nil {
		var names []string
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			paths = append(paths, filepath.Join(dropinDir, n))
		}
	}

	for _, p := range paths {
		if err := ingestFile(p, set); err != nil && !os.IsNotExist(err) {
			api.Logger().WithError(err).WithField("file", p).Warn("failed to read multipath config file")
		}
	}

	pruned := make(map[string]bool, len(set.wwids))
	for w := range set.wwids {
		if !set.exceptions[w] {
			pruned[w] = true
		}
	}
	return pruned
}

func ingestFile(path string, set *blacklistSet) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var stack []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, "{") {
			name := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			stack = append(stack, name)
			continue
		}
		if line == "}" {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if len(stack) == 0 {
			continue
		}

		section := stack[len(stack)-1]
		if section != "blacklist" && section != "blacklist_exceptions" {
			continue
		}
		value, ok := wwidLineValue(line)
		if !ok {
			continue
		}

		dest := set.wwids
		if section == "blacklist_exceptions" {
			dest = set.exceptions
		}
		dest[value] = true
	}
	return scanner.Err()
}

// wwidLineValue extracts the value of a "wwid <value>" directive
// inside a blacklist section, stripping optional surrounding quotes
// and the SCSI type-3 prefix (§4.5).
func wwidLineValue(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "wwid" {
		return "", false
	}
	v := strings.Join(fields[1:], " ")
	v = strings.Trim(v, `"`)
	v = strings.TrimPrefix(v, "3")
	if v == "" {
		return "", false
	}
	return v, true
}

// ReadWWIDsFile parses the multipath wwids file (§6's
// multipath_wwids_file): one wwid per line, wrapped in slashes
// ("/3600508b400105e210000900000490000/"), blank and "#"-commented
// lines ignored. An empty path returns an empty set, matching §6's
// "empty string disables WWID-based multipath detection".
func ReadWWIDsFile(path string) map[string]bool {
	out := map[string]bool{}
	if path == "" {
		return out
	}

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			api.Logger().WithError(err).WithField("file", path).Warn("failed to read multipath wwids file")
		}
		return out
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.Trim(line, "/")
		line = strings.TrimPrefix(line, "3")
		if line == "" {
			continue
		}
		out[line] = true
	}
	return out
}

// FindMultipathsEnabled reads the flat, non-braced "find_multipaths"
// directive some multipath.conf deployments set at the top of the
// defaults{} section. Unlike the blacklist sections, this single
// key/value directive is read permissively with go-ini rather than the
// brace-aware reader above, since it never needs the section-nesting
// logic the blacklist does (SPEC_FULL §11).
func FindMultipathsEnabled(configPath string) bool {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		Loose:                   true,
		Insensitive:             true,
		AllowNonUniqueSections:  true,
		SkipUnrecognizableLines: true,
		IgnoreInlineComment:     true,
		KeyValueDelimiters:      "= \t",
	}, configPath)
	if err != nil {
		return false
	}
	for _, sec := range cfg.Sections() {
		if !sec.HasKey("find_multipaths") {
			continue
		}
		v := strings.ToLower(strings.TrimSpace(sec.Key("find_multipaths").String()))
		switch v {
		case "yes", "on", "1", "strict", "greedy", "smart":
			return true
		}
	}
	return false
}
