// SPDX-License-Identifier: MPL-2.0

// Package execute composes one run of a collection: it locates and loads the
// collection config, builds the step launcher from application config,
// prepares the workspace for the current host, and wires them into an
// orchestrator. The CLI and the invoke service share it so both run steps
// the same way.
package execute
