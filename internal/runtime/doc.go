// SPDX-License-Identifier: MPL-2.0

// Package runtime launches steps as child processes.
//
// A step artifact is resolved inside the collection's steps directory and run
// through an interpreter chosen by its extension (node for .js, sh for .sh,
// python3 for .py); extension-less artifacts are executed directly. Run state
// reaches the child only through its environment: the Handoff is projected
// into PSTAND_* variables, and stale copies inherited from the parent are
// filtered out first. The orchestrator never touches its own process
// environment.
package runtime
