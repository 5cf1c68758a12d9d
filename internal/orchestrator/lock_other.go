// SPDX-License-Identifier: MPL-2.0

//go:build !(linux || darwin || freebsd)

package orchestrator

// namespaceLock is a no-op where flock is unavailable. Runs there rely on
// callers not sharing a namespace.
type namespaceLock struct{}

func acquireNamespaceLock(string) (*namespaceLock, error) { return &namespaceLock{}, nil }

// Release is a no-op.
func (l *namespaceLock) Release() {}
