// SPDX-License-Identifier: MPL-2.0

// Package policy implements the gate between an external caller and the
// Global Store.
//
// The input pass decides which caller-supplied keys may seed the store and
// checks their types. The output pass decides which store keys a caller may
// read back after the run. Both policies are compiled from the collection
// config before any step runs, so an unknown policy value, value type or
// malformed pattern is a configuration error rather than a runtime surprise.
package policy
