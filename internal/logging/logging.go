// SPDX-License-Identifier: MPL-2.0

// Package logging builds the process logger. Components receive the
// *log.Logger it returns; the same logger is installed as the slog default so
// code that only has slog at hand writes to the same sink.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// FormatText is the human-readable, colorized format.
	FormatText Format = "text"
	// FormatJSON emits one JSON object per line.
	FormatJSON Format = "json"
	// FormatLogfmt emits key=value lines.
	FormatLogfmt Format = "logfmt"

	// DefaultPrefix is prepended to every line.
	DefaultPrefix = "pstand"
)

// ErrInvalidFormat is the sentinel error wrapped by InvalidFormatError.
var ErrInvalidFormat = errors.New("invalid log format")

type (
	// Format selects the log line encoding.
	Format string

	// InvalidFormatError is returned when a Format is not recognized.
	InvalidFormatError struct {
		Value Format
	}

	// Options configures New.
	Options struct {
		// Out defaults to os.Stderr.
		Out io.Writer
		// Level is a charmbracelet/log level name ("debug", "info", ...).
		// Empty means info.
		Level string
		// Format defaults to FormatText.
		Format Format
		// Prefix defaults to DefaultPrefix.
		Prefix string
	}
)

// Error implements the error interface.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: text, json, logfmt)", e.Value)
}

// Unwrap returns ErrInvalidFormat so callers can use errors.Is for programmatic detection.
func (e *InvalidFormatError) Unwrap() error { return ErrInvalidFormat }

// IsValid returns whether the Format is one of the defined formats.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case FormatText, FormatJSON, FormatLogfmt:
		return true, nil
	default:
		return false, []error{&InvalidFormatError{Value: f}}
	}
}

// New builds a logger from opts.
func New(opts Options) (*log.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	format := opts.Format
	if format == "" {
		format = FormatText
	}
	if ok, errs := format.IsValid(); !ok {
		return nil, errs[0]
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return log.NewWithOptions(out, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Formatter:       formatter(format),
	}), nil
}

// Install makes logger the slog default.
func Install(logger *log.Logger) {
	slog.SetDefault(slog.New(logger))
}

// Discard returns a logger that drops everything. Tests and library callers
// that do not care about output use it.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

func formatter(f Format) log.Formatter {
	switch f {
	case FormatJSON:
		return log.JSONFormatter
	case FormatLogfmt:
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
