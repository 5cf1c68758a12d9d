// SPDX-License-Identifier: MPL-2.0

// Package plan loads a collection config and exposes its Execution Plan.
//
// A collection is a directory holding a config document
// (_collection_config.yaml, .yml, .toml or .cue) and a steps directory. The
// document names the ordered steps (collection_order, or the deprecated alias
// scripts), the whitelist of steps that may actually launch (allowed_scripts,
// defaulting to the order), and the input and output policies applied by the
// invoke pipeline. Every format is validated against the same embedded CUE
// schema.
package plan
