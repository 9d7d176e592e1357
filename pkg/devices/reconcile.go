// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package devices

import (
	"errors"
	"fmt"

	"github.com/kata-containers/lvmdevices/pkg/devices/api"
	"github.com/kata-containers/lvmdevices/pkg/devices/match"
	"github.com/kata-containers/lvmdevices/pkg/devices/multipath"
	"github.com/kata-containers/lvmdevices/pkg/devices/registry"
)

func errorsIsFileMissing(err error) bool {
	return errors.Is(err, registry.ErrFileMissing)
}

// ReconcileOptions carries everything Reconcile needs from the
// surrounding command: the already-populated device cache (scanning
// has already run against it), the label scanner used by the rename
// search, the filter chain used by the rename search and by the
// multipath exclusion step, and the local system identity.
type ReconcileOptions struct {
	Config *Config

	Cache   api.Cache
	Scanner api.LabelScanner
	Filters api.FilterChain
	System  api.SystemIdentity
	MPath   *multipath.Detector

	// IsStartupCommand suppresses the devname-tracking update of §4.4
	// for commands that must not touch the filesystem.
	IsStartupCommand bool

	// AllowCreate permits the implicit-creation rule of §4.2 when the
	// devices file does not yet exist.
	AllowCreate bool
}

// Report aggregates everything one Reconcile call accomplished: the
// rename search's outcome, the entries left unmatched at the end of
// the pass, and the devices dropped as impostors, so a caller can
// render one combined summary instead of parsing log lines
// (SPEC_FULL §12).
type Report struct {
	Rename   *match.Report
	Orphaned []*registry.UseEntry
	Dropped  []api.Device
	Saved    bool
}

// Reconcile runs one full pass of parse, match, validate, optional
// rename search and optional write, per the data flow of spec.md §2.
// The label scan itself is the caller's responsibility: by the time
// Reconcile runs, every device in opts.Cache that has been scanned
// this command must already report true from Scanned and, if
// applicable, a PVID.
func Reconcile(opts ReconcileOptions) (*Report, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.EnableDevicesFile {
		return &Report{}, nil
	}

	path := cfg.devicesFilePath()
	alternate := cfg.isAlternateFile()

	// Reconcile follows the "validation-update" lock pattern of §4.2:
	// shared for the initial read, released once parsed, then a
	// non-blocking try-exclusive with a version re-check for the
	// best-effort write at the end.
	readLock := registry.NewLock(cfg.LockDir, path)
	if _, err := readLock.Acquire(registry.Shared, true); err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", path, err)
	}

	localSystemID := ""
	if opts.System != nil {
		localSystemID = opts.System.SystemID()
	}

	reg, loadErr := registry.Load(path)
	freshlyCreated := errorsIsFileMissing(loadErr)
	if freshlyCreated {
		if !opts.AllowCreate {
			readLock.Release()
			return nil, loadErr
		}
		reg = registry.New(localSystemID)
		reg.Path = path
		reg.Dirty = true
	} else if loadErr != nil && !errors.Is(loadErr, registry.ErrFileUnparseable) {
		readLock.Release()
		return nil, loadErr
	}
	readLock.Release()
	readVersion := reg.Version
	registry.CheckSystemID(reg, localSystemID)

	mpath := opts.MPath
	if mpath == nil {
		mpath = cfg.NewMultipathDetector(nil)
	}
	excludeMultipathComponents(opts.Cache, mpath, opts.Filters)

	matcher := match.New()
	matcher.Run(reg, opts.Cache)

	dropped := match.Validate(reg, match.ValidateOptions{IsStartupCommand: opts.IsStartupCommand})
	for _, d := range dropped {
		opts.Cache.Drop(d)
	}

	renameReport, err := match.Search(reg, opts.Cache, opts.Scanner, opts.Filters, match.RenameOptions{
		Mode:          match.SearchMode(cfg.SearchForDevNames),
		RunDir:        cfg.RunDir,
		AlternateFile: alternate,
	})
	if err != nil {
		return nil, err
	}

	saved := false
	if reg.Dirty {
		writeLock := registry.NewLock(cfg.LockDir, path)
		if _, err := writeLock.TryExclusive(); err != nil {
			api.Logger().WithError(err).Debug("devices file busy; deferring write to the next command")
		} else {
			proceed := freshlyCreated
			if !freshlyCreated {
				onDisk, err := registry.Load(path)
				switch {
				case errorsIsFileMissing(err):
					proceed = true
				case err != nil:
					writeLock.Release()
					return nil, err
				case onDisk.Version.Counter != readVersion.Counter:
					api.Logger().Debug("devices file changed since it was read; abandoning this command's write")
				default:
					proceed = true
				}
			}
			if proceed {
				reg.Version.Counter = readVersion.Counter
				if err := registry.Save(reg); err != nil {
					writeLock.Release()
					return nil, fmt.Errorf("reconcile %s: %w", path, err)
				}
				saved = true
			}
			writeLock.Release()
		}
	}

	return &Report{
		Rename:   renameReport,
		Orphaned: reg.Unmatched(),
		Dropped:  dropped,
		Saved:    saved,
	}, nil
}

// IsMultipathComponent is the convenience entry point a filter chain's
// mpath stage calls, wiring the multipath detector into the same
// Reconcile-level configuration (§4.5).
func IsMultipathComponent(detector *multipath.Detector, dev api.Device) bool {
	if detector == nil {
		return false
	}
	return detector.IsComponent(dev)
}

// excludeMultipathComponents drops every multipath-group member from
// the cache before the matcher and rename search ever see it (§4.5): a
// multipath slave must never be treated as a first-class device, so it
// has to be gone from the candidate set the matcher pairs against, not
// merely rejected by a later filter stage. Both the in-module detector
// and the upstream filter chain's own mpath stage are consulted, since
// an embedder's filter chain may know about group membership this
// detector cannot see (e.g. a udev rule this host never scanned).
func excludeMultipathComponents(cache api.Cache, mpath *multipath.Detector, filters api.FilterChain) {
	if cache == nil {
		return
	}
	for _, dev := range append([]api.Device(nil), cache.All()...) {
		if dev.Matched() {
			continue
		}
		if IsMultipathComponent(mpath, dev) {
			cache.Drop(dev)
			continue
		}
		if filters != nil && !filters.Apply(api.StageMpath, dev) {
			cache.Drop(dev)
		}
	}
}
