// SPDX-License-Identifier: MPL-2.0

// Package config handles pstand's application configuration using Viper
// with CUE as the file format.
//
// The config file is looked up at the --config path, then
// <user config dir>/poststand/config.cue, then ./pstand.cue. Its contents
// are validated against the embedded config_schema.cue (#Config) and merged
// over the defaults; POSTSTAND_* environment variables override both
// (POSTSTAND_LOG_LEVEL for log.level and so on).
package config
