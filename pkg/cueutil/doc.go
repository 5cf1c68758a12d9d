// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE parsing utilities.
//
// Both entry points follow the same flow:
//
//  1. Compile the embedded schema
//  2. Compile (or encode) user data and unify with the schema
//  3. Validate and decode to a Go struct
//
// ParseAndDecode takes CUE source bytes. DecodeValue takes a Go value that was
// decoded from another format (YAML, TOML) so every document format is held to
// the same schema.
//
// # Usage
//
//	//go:embed collection_schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.ParseAndDecode[Collection](
//	    schemaBytes,
//	    userFileBytes,
//	    "#Collection",
//	    cueutil.Filename("_collection_config.cue"),
//	)
package cueutil
