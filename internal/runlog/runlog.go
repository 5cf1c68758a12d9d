// SPDX-License-Identifier: MPL-2.0

// Package runlog records the status of every step of a run in a small CSV
// ledger (_run_log.csv) inside the run namespace.
//
// The file is rewritten in full, atomically, on every transition so a reader
// polling it always sees a complete snapshot. Write failures are logged and
// swallowed: the ledger is diagnostic and never fails a run.
package runlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"

	"github.com/dunhampa/poststand-core/pkg/fspath"
)

const (
	// FileName is the ledger file name inside a namespace directory.
	FileName = "_run_log.csv"
	// Header is the first line of every ledger.
	Header = "script,status,durationMs"

	// StatusExecuting marks a step that has been launched and not yet exited.
	StatusExecuting Status = "executing"
	// StatusDone marks a step that exited zero.
	StatusDone Status = "done"
	// StatusError marks a step that exited non-zero.
	StatusError Status = "error"
	// StatusSkipped marks a step that was not in the whitelist.
	StatusSkipped Status = "skipped"
)

var (
	// ErrInvalidStatus is the sentinel error wrapped by InvalidStatusError.
	ErrInvalidStatus = errors.New("invalid run log status")

	// ErrMalformedLog is returned by Read for a file that is not a ledger.
	ErrMalformedLog = errors.New("malformed run log")
)

type (
	// Status is the state of one ledger entry.
	Status string

	// InvalidStatusError is returned when a Status is not recognized.
	InvalidStatusError struct {
		Value Status
	}

	// Entry is one row of the ledger. DurationMs is only meaningful for
	// done and error entries.
	Entry struct {
		Step       string
		Status     Status
		DurationMs int64
	}

	// Log is the in-memory ledger of one run, mirrored to disk.
	Log struct {
		path    string
		logger  *log.Logger
		entries []Entry
	}
)

// Error implements the error interface.
func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid run log status %q (valid: executing, done, error, skipped)", e.Value)
}

// Unwrap returns ErrInvalidStatus so callers can use errors.Is for programmatic detection.
func (e *InvalidStatusError) Unwrap() error { return ErrInvalidStatus }

// IsValid returns whether the Status is one of the defined statuses.
func (s Status) IsValid() (bool, []error) {
	switch s {
	case StatusExecuting, StatusDone, StatusError, StatusSkipped:
		return true, nil
	default:
		return false, []error{&InvalidStatusError{Value: s}}
	}
}

// IsTerminal reports whether the status carries a duration.
func (s Status) IsTerminal() bool { return s == StatusDone || s == StatusError }

// String returns the string representation of the Status.
func (s Status) String() string { return string(s) }

// New creates the ledger for the namespace at dir and writes the header.
func New(dir string, logger *log.Logger) *Log {
	l := &Log{
		path:   filepath.Join(dir, FileName),
		logger: logger,
	}
	l.persist()
	return l
}

// Path returns the ledger file path.
func (l *Log) Path() string { return l.path }

// Begin appends an executing entry for step and returns its index.
func (l *Log) Begin(step string) int {
	l.entries = append(l.entries, Entry{Step: step, Status: StatusExecuting})
	l.persist()
	return len(l.entries) - 1
}

// Finish moves the entry at idx to status and records elapsed.
func (l *Log) Finish(idx int, status Status, elapsed time.Duration) {
	if idx < 0 || idx >= len(l.entries) {
		l.logger.Warn("run log: finish for unknown entry", "index", idx)
		return
	}
	l.entries[idx].Status = status
	l.entries[idx].DurationMs = elapsed.Milliseconds()
	l.persist()
}

// Skip appends a skipped entry for step.
func (l *Log) Skip(step string) {
	l.entries = append(l.entries, Entry{Step: step, Status: StatusSkipped})
	l.persist()
}

// Entries returns a copy of the ledger.
func (l *Log) Entries() []Entry { return slices.Clone(l.entries) }

func (l *Log) persist() {
	if err := fspath.WriteAtomic(l.path, Encode(l.entries), 0o644); err != nil {
		l.logger.Warn("run log: write failed", "path", l.path, "error", err)
	}
}

// Encode renders entries in ledger format. Fields are not quoted.
func Encode(entries []Entry) []byte {
	var b bytes.Buffer
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(e.Step)
		b.WriteByte(',')
		b.WriteString(string(e.Status))
		b.WriteByte(',')
		if e.Status.IsTerminal() {
			b.WriteString(strconv.FormatInt(e.DurationMs, 10))
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Read parses the ledger at path.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses ledger bytes. Step names may contain commas; the last two
// fields of a row are always status and duration.
func Decode(data []byte) ([]Entry, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != Header {
		return nil, fmt.Errorf("%w: missing header %q", ErrMalformedLog, Header)
	}

	var entries []Entry
	line := 1
	for sc.Scan() {
		line++
		row := sc.Text()
		if strings.TrimSpace(row) == "" {
			continue
		}

		durIdx := strings.LastIndexByte(row, ',')
		if durIdx < 0 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLog, line, row)
		}
		statusIdx := strings.LastIndexByte(row[:durIdx], ',')
		if statusIdx < 0 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLog, line, row)
		}

		e := Entry{Step: row[:statusIdx], Status: Status(row[statusIdx+1 : durIdx])}
		if ok, errs := e.Status.IsValid(); !ok {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedLog, line, errs[0])
		}
		if dur := row[durIdx+1:]; dur != "" {
			ms, err := strconv.ParseInt(dur, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad duration %q", ErrMalformedLog, line, dur)
			}
			e.DurationMs = ms
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
