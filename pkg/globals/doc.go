// SPDX-License-Identifier: MPL-2.0

// Package globals implements the Global Store: a flat, file-backed JSON
// object shared by every step of one run.
//
// A run's namespace is a directory holding globals.json. Each operation is a
// full read-modify-write of that file and every write is atomic, so a reader
// never observes a torn document. There is no locking; the orchestrator runs
// steps one at a time, which makes last-writer-wins safe.
//
// The reserved key "nextScripts" holds the queue of step identifiers a step
// asks the orchestrator to run next.
package globals
