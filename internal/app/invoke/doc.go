// SPDX-License-Identifier: MPL-2.0

// Package invoke is the entry pipeline for running a collection on behalf of
// an external caller. An invocation parses the caller's event, validates its
// globals against the input policy, seeds and runs the collection, and
// discloses the globals the caller asked for through the output policy.
//
// Failures are returned as *Error values carrying a kind and a status code
// an adapter can hand back unchanged.
package invoke
