// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by the package tests.
//
// The Must* helpers fail the test immediately instead of returning errors.
// Helpers that mutate process state (MustSetenv, MustChdir, SetConfigHome)
// return a cleanup function and must not be used from parallel tests.
// WriteStep and WritePlan lay out a collection on disk.
package testutil
