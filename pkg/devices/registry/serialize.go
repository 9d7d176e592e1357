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
)

// Serialize writes r's header and entries in the fixed field order
// required of writers by §6: IDTYPE IDNAME DEVNAME PVID [PART].
func Serialize(r *Registry, w io.Writer) error {
	bw := bufio.NewWriter(w)

	systemID := r.SystemID
	if systemID == "" {
		systemID = absent
	}
	if _, err := fmt.Fprintf(bw, "SYSTEMID=%s\n", systemID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "VERSION=%s\n", r.Version); err != nil {
		return err
	}

	for _, e := range r.entries {
		idname := absent
		if e.IDNameSet {
			idname = e.IDName
		}
		devname := absent
		if e.DevName != "" {
			devname = e.DevName
		}
		pvid := absent
		if e.PVIDSet {
			pvid = encodePVID(e.PVID)
		}

		line := fmt.Sprintf("IDTYPE=%s IDNAME=%s DEVNAME=%s PVID=%s", e.IDType, idname, devname, pvid)
		if e.Part != 0 {
			line += fmt.Sprintf(" PART=%d", e.Part)
		}
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}

	return bw.Flush()
}
