// SPDX-License-Identifier: MPL-2.0

package globals

import (
	"errors"
	"fmt"
)

var (
	// ErrNamespaceNotEstablished is returned when a step process on an
	// ephemeral host cannot find its run namespace in the environment.
	ErrNamespaceNotEstablished = errors.New("global store namespace not established")

	// ErrCorruptStore is the sentinel error wrapped by CorruptStoreError.
	ErrCorruptStore = errors.New("global store is not a valid JSON object")

	// ErrMalformedQueue is returned when the nextScripts value is not a list of strings.
	ErrMalformedQueue = errors.New("malformed step queue")
)

// CorruptStoreError is returned when globals.json exists but cannot be decoded.
type CorruptStoreError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("global store %s is corrupt: %v", e.Path, e.Err)
}

// Unwrap returns ErrCorruptStore so callers can use errors.Is for programmatic detection.
func (e *CorruptStoreError) Unwrap() error { return ErrCorruptStore }
