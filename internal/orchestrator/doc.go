// SPDX-License-Identifier: MPL-2.0

// Package orchestrator drives an execution plan one step at a time.
//
// The orchestrator owns the run namespace (a Workspace), seeds its Global
// Store, and launches each allowed step as a child process, blocking until
// it exits. After every successful step it drains the store's pending-append
// queue and splices the requested steps right after the cursor. Steps are
// never run concurrently, which is what makes the store's last-writer-wins
// semantics safe without locks.
package orchestrator
