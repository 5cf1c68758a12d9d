// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// They cover the hot paths of a run:
//   - collection config loading and schema validation
//   - global store reads and writes
//   - run log encoding
//   - input policy validation
//   - the orchestrator loop, end to end, with real shell steps
//
// To generate a profile, run:
//
//	go test ./internal/benchmark -run '^$' -bench . -cpuprofile default.pgo
package benchmark
