// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"github.com/kata-containers/lvmdevices/pkg/devices/identity"
)

// absent is the literal that denotes "this field is absent" in the
// on-disk format. It must never be confused with a field whose actual
// value happens to be a single dot; no such value is ever produced by
// this implementation's sources.
const absent = "."

// Parse reads the line-oriented devices file format of §4.2. It never
// fails on a malformed entry line — those are skipped with a warning —
// but returns ErrFileUnparseable if the VERSION line is present and
// cannot be parsed as major.minor.counter, matching §4.2's "subsequent
// writes are refused" policy while still allowing the read to proceed.
func Parse(r io.Reader) (*Registry, error) {
	reg := &Registry{}
	sawVersion := false
	var verErr error

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if v, ok := strings.CutPrefix(line, "SYSTEMID="); ok {
			reg.SystemID = v
			continue
		}
		if v, ok := strings.CutPrefix(line, "VERSION="); ok {
			sawVersion = true
			ver, err := parseVersion(v)
			if err != nil {
				verErr = err
				continue
			}
			reg.Version = ver
			continue
		}

		e, ok := parseEntryLine(line)
		if !ok {
			api.Logger().WithField("line", line).Warn("skipping unparseable devices file entry")
			continue
		}
		reg.entries = append(reg.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if sawVersion && verErr != nil {
		return reg, fmt.Errorf("parse VERSION line: %w: %w", verErr, ErrFileUnparseable)
	}
	return reg, nil
}

func parseVersion(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("malformed version %q", s)
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	counter, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Version{}, fmt.Errorf("malformed version %q", s)
	}
	return Version{Major: major, Minor: minor, Counter: counter}, nil
}

// fieldAt locates key in line and reads up to the next whitespace,
// matching §4.2's "each field is parsed by locating its key and
// reading up to the next whitespace" rule: fields may appear in any
// order on the line.
func fieldAt(line, key string) (string, bool) {
	idx := strings.Index(line, key+"=")
	if idx < 0 {
		return "", false
	}
	rest := line[idx+len(key)+1:]
	if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
		rest = rest[:sp]
	}
	return rest, true
}

func parseEntryLine(line string) (*UseEntry, bool) {
	idtype, hasType := fieldAt(line, "IDTYPE")
	idname, hasName := fieldAt(line, "IDNAME")
	if !hasType || !hasName {
		return nil, false
	}
	if !identity.Recognized(idtype) {
		return nil, false
	}

	e := &UseEntry{IDType: identity.Kind(idtype)}
	if idname != absent {
		e.IDName = idname
		e.IDNameSet = true
	}

	if devname, ok := fieldAt(line, "DEVNAME"); ok && devname != absent {
		e.DevName = devname
	}

	if pvidStr, ok := fieldAt(line, "PVID"); ok && pvidStr != absent {
		if pvid, ok := decodePVID(pvidStr); ok {
			e.PVID = pvid
			e.PVIDSet = true
		}
	}

	if partStr, ok := fieldAt(line, "PART"); ok && partStr != absent {
		if n, err := strconv.Atoi(partStr); err == nil {
			e.Part = n
		}
	}

	return e, true
}

// decodePVID stores the on-disk PVID field verbatim, the way LVM keeps
// the PVID as a 32-character ASCII identifier rather than hex-encoded
// binary. Values longer than 32 bytes are rejected; shorter ones are
// zero-padded on the right.
func decodePVID(s string) (PVID, bool) {
	var p PVID
	if len(s) > len(p) {
		return p, false
	}
	copy(p[:], s)
	return p, true
}

func encodePVID(p PVID) string {
	return strings.TrimRight(string(p[:]), "\x00")
}
