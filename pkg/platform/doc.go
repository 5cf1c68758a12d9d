// SPDX-License-Identifier: MPL-2.0

// Package platform describes the host a poststand process runs on.
//
// Two host kinds exist. An ephemeral host is a serverless-style invocation
// whose scratch directory may be recycled between invocations; a local host is
// a developer workstation. The package also owns the names of the environment
// variables used to hand run state from the orchestrator to step processes.
package platform
