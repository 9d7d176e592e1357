// Copyright (c) 2017-2018 Intel Corporation
// Copyright (c) 2018 Huawei Corporation
//
// SPDX-License-Identifier: Apache-2.0
//

package registry

import "errors"

// Sentinel errors for the kinds named in §7. Callers compare with
// errors.Is; call sites wrap these with %w to add context.
var (
	// ErrFileMissing is returned when the devices file is absent and
	// no implicit-creation rule applies.
	ErrFileMissing = errors.New("devices file missing")

	// ErrFileUnparseable is returned when the header cannot be parsed.
	// Entry-wise parsing still proceeds with warnings; this error only
	// blocks a subsequent write.
	ErrFileUnparseable = errors.New("devices file header unparseable")

	// ErrVersionTooNew is returned when the file's major version
	// exceeds the version this implementation supports. Reads proceed;
	// writes are refused.
	ErrVersionTooNew = errors.New("devices file version too new")

	// ErrLockBusy is returned by a non-blocking acquire (such as
	// TryExclusive) when the lock cannot be taken, signalling the
	// caller to skip its update. A blocking acquire that fails returns
	// the underlying flock error instead.
	ErrLockBusy = errors.New("devices file lock busy")

	// ErrIdentityConflict is returned when an add collides with an
	// existing entry on PVID or identity.
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrRenameAmbiguous names the condition of a wanted PVID observed
	// on more than one device during a rename search. match.Search does
	// not return it; it reports the case in Report.Ambiguous.
	ErrRenameAmbiguous = errors.New("rename search found duplicate PVID")

	// ErrUnsupportedKind is returned when an add operation is asked to
	// use a kind the selection policy never chooses (currently only
	// KindDRBD, reserved per §9's open question).
	ErrUnsupportedKind = errors.New("unsupported identity kind")
)
