// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the pstand CLI.
//
// The root command wires an App, the composition root holding configuration
// loading, I/O streams, and host detection, into cobra subcommands: run and
// step for developers, invoke for the entry pipeline, and globals and secret
// for step processes.
package cmd
